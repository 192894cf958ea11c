package contracts

import "time"

// ApprovalSpec defines who must approve an escalated Decision and what
// happens if nobody does in time. It is how an opaque "approver hint" on a
// capability or constraint becomes an actionable routing instruction.
type ApprovalSpec struct {
	ApproverRoles  []string `json:"approver_roles"`
	Quorum         int      `json:"quorum"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	OnTimeout      string   `json:"on_timeout"` // deny | approve | escalate_further
}

// EscalationStatus tracks the lifecycle of an escalated Decision.
type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "pending"
	EscalationStatusApproved EscalationStatus = "approved"
	EscalationStatusDenied   EscalationStatus = "denied"
	EscalationStatusTimedOut EscalationStatus = "timed_out"
)

// EscalationIntent is a formal, structured request for human judgment on a
// Decision the Governance Engine converted from allow to escalate.
type EscalationIntent struct {
	IntentID   string           `json:"intent_id"`
	DecisionID string           `json:"decision_id"`
	ReasonCode string           `json:"reason_code"`
	Approval   ApprovalSpec     `json:"approval"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	Status     EscalationStatus `json:"status"`
}

// EscalationReceipt is the immutable record of how an escalation resolved.
type EscalationReceipt struct {
	ReceiptID  string           `json:"receipt_id"`
	IntentID   string           `json:"intent_id"`
	Outcome    EscalationStatus `json:"outcome"`
	ApprovedBy []string         `json:"approved_by,omitempty"`
	DeniedBy   string           `json:"denied_by,omitempty"`
	DenyReason string           `json:"deny_reason,omitempty"`
	ResolvedAt time.Time        `json:"resolved_at"`
	DurationMs int64            `json:"duration_ms"`
}
