package governance

import (
	"fmt"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/google/cel-go/cel"
)

// ObligationEvaluator compiles and runs the CEL trigger expressions a
// Bundle's Obligations carry, independent of the AND/OR Rule Evaluator
// used for Policy matching: Obligations are side-effecting ("notify",
// "rotate_credential") rather than access-control decisions, so they get
// the more expressive CEL surface rather than the constrained Rule
// grammar.
type ObligationEvaluator struct {
	env *cel.Env
}

// NewObligationEvaluator builds the shared CEL environment Obligation
// triggers are compiled against: the Decision just rendered, plus the
// Intent and caller context that produced it.
func NewObligationEvaluator() (*ObligationEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("decision", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("intent", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("governance: create CEL env: %w", err)
	}
	return &ObligationEvaluator{env: env}, nil
}

// Fired evaluates every Obligation's trigger expression against the
// rendered Decision and returns the subset whose trigger evaluated true.
func (oe *ObligationEvaluator) Fired(decision contracts.Decision, intent contracts.Intent, callerContext map[string]any, obligations []contracts.Obligation) ([]contracts.Obligation, error) {
	input := map[string]any{
		"decision": map[string]any{
			"action":              string(decision.Action),
			"reason":              decision.Reason,
			"requires_escalation": decision.RequiresEscalation,
			"denial_code":         decision.DenialCode,
		},
		"intent": map[string]any{
			"id":          intent.ID,
			"intent_type": intent.IntentType,
			"tools":       intent.Tools,
			"endpoints":   intent.Endpoints,
		},
		"context": callerContext,
	}

	var fired []contracts.Obligation
	for _, ob := range obligations {
		ast, issues := oe.env.Compile(ob.Trigger)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("governance: compile obligation trigger %q: %w", ob.Trigger, issues.Err())
		}
		prg, err := oe.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("governance: build obligation program %q: %w", ob.Trigger, err)
		}
		out, _, err := prg.Eval(input)
		if err != nil {
			// A trigger that errors at eval time (e.g. a missing field) is
			// treated as not-fired rather than aborting the whole
			// pipeline; Obligations are best-effort side effects, not
			// access-control gates.
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			fired = append(fired, ob)
		}
	}
	return fired, nil
}

// ObligationFiredEvent names the audit event type emitted per fired
// Obligation.
const ObligationFiredEvent = "obligation.fired"

// ToAuditRecord renders a fired Obligation as a standalone AuditRecord. It
// does not carry a sequence number or hash chain link; a caller writing
// through audit.Service should build a RecordInput with the same fields
// instead, so the record takes its place in the tenant's chain.
func ToAuditRecord(tenantID string, intent contracts.Intent, ob contracts.Obligation, now time.Time) contracts.AuditRecord {
	return contracts.AuditRecord{
		TenantID:  tenantID,
		EventType: ObligationFiredEvent,
		Category:  "governance",
		Severity:  contracts.SeverityNotice,
		Actor:     intent.Actor,
		Action:    ob.Action,
		Outcome:   contracts.OutcomeSuccess,
		Metadata: map[string]any{
			"trigger":    ob.Trigger,
			"parameters": ob.Parameters,
		},
		RequestID: intent.RequestID,
		TraceID:   intent.TraceID,
		EventTime: now,
	}
}
