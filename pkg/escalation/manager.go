// Package escalation provides the Escalation Manager: the runtime engine
// that routes a Decision the Governance Engine converted from allow to
// escalate into a concrete human-approval workflow, tracks its lifecycle,
// handles timeouts, and produces immutable receipts.
package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/google/uuid"
)

// Manager handles the lifecycle of escalation intents.
type Manager struct {
	mu      sync.Mutex
	intents map[string]*contracts.EscalationIntent
	clock   func() time.Time
}

// NewManager creates a new escalation manager.
func NewManager() *Manager {
	return &Manager{
		intents: make(map[string]*contracts.EscalationIntent),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// defaultApproval is used when a Decision carries no approver hint at all.
func defaultApproval() contracts.ApprovalSpec {
	return contracts.ApprovalSpec{
		ApproverRoles:  []string{"operator"},
		Quorum:         1,
		TimeoutSeconds: 300,
		OnTimeout:      "deny",
	}
}

// CreateIntent opens an escalation workflow for a Decision the Governance
// Engine marked RequiresEscalation. approverHint, when non-empty, becomes
// the sole entry in ApproverRoles; an empty hint falls back to the
// "operator" role with a 300s deny-on-timeout default.
func (m *Manager) CreateIntent(ctx context.Context, decision contracts.Decision, reasonCode, approverHint string) (*contracts.EscalationIntent, error) {
	now := m.clock()

	approval := defaultApproval()
	if approverHint != "" {
		approval.ApproverRoles = []string{approverHint}
	}

	intent := &contracts.EscalationIntent{
		IntentID:   decision.IntentID,
		DecisionID: decision.IntentID,
		ReasonCode: reasonCode,
		Approval:   approval,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(approval.TimeoutSeconds) * time.Second),
		Status:     contracts.EscalationStatusPending,
	}

	m.mu.Lock()
	m.intents[intent.IntentID] = intent
	m.mu.Unlock()

	return intent, nil
}

// Approve approves an escalation intent. An approval submitted after
// ExpiresAt resolves the intent as timed-out instead, whatever its
// OnTimeout setting; only CheckTimeouts applies OnTimeout.
func (m *Manager) Approve(ctx context.Context, intentID, approverID string) (*contracts.EscalationReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("escalation: intent %q not found", intentID)
	}
	if intent.Status != contracts.EscalationStatusPending {
		return nil, fmt.Errorf("escalation: intent %q is not pending (status=%s)", intentID, intent.Status)
	}

	now := m.clock()
	if now.After(intent.ExpiresAt) {
		intent.Status = contracts.EscalationStatusTimedOut
		return m.receipt(intent, now), nil
	}

	intent.Status = contracts.EscalationStatusApproved
	receipt := m.receipt(intent, now)
	receipt.ApprovedBy = []string{approverID}
	return receipt, nil
}

// Deny denies an escalation intent.
func (m *Manager) Deny(ctx context.Context, intentID, denierID, reason string) (*contracts.EscalationReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("escalation: intent %q not found", intentID)
	}
	if intent.Status != contracts.EscalationStatusPending {
		return nil, fmt.Errorf("escalation: intent %q is not pending (status=%s)", intentID, intent.Status)
	}

	intent.Status = contracts.EscalationStatusDenied
	receipt := m.receipt(intent, m.clock())
	receipt.DeniedBy = denierID
	receipt.DenyReason = reason
	return receipt, nil
}

// CheckTimeouts scans pending intents and resolves any past their
// ExpiresAt according to OnTimeout, returning a receipt per resolved
// intent.
func (m *Manager) CheckTimeouts(ctx context.Context) ([]*contracts.EscalationReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var receipts []*contracts.EscalationReceipt
	for _, intent := range m.intents {
		if intent.Status != contracts.EscalationStatusPending || !now.After(intent.ExpiresAt) {
			continue
		}
		switch intent.Approval.OnTimeout {
		case "approve":
			intent.Status = contracts.EscalationStatusApproved
		default:
			intent.Status = contracts.EscalationStatusTimedOut
		}
		receipts = append(receipts, m.receipt(intent, now))
	}
	return receipts, nil
}

// GetIntent returns an escalation intent by ID.
func (m *Manager) GetIntent(intentID string) (*contracts.EscalationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("escalation: intent %q not found", intentID)
	}
	return intent, nil
}

// PendingCount returns the number of pending escalations.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, intent := range m.intents {
		if intent.Status == contracts.EscalationStatusPending {
			count++
		}
	}
	return count
}

func (m *Manager) receipt(intent *contracts.EscalationIntent, resolvedAt time.Time) *contracts.EscalationReceipt {
	return &contracts.EscalationReceipt{
		ReceiptID:  uuid.New().String(),
		IntentID:   intent.IntentID,
		Outcome:    intent.Status,
		ResolvedAt: resolvedAt,
		DurationMs: resolvedAt.Sub(intent.CreatedAt).Milliseconds(),
	}
}
