// Package orchestrator wires the governance pipeline together: semantic
// pre-action validation, policy evaluation, capability gating, escalation,
// and audit recording around a single Intent.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/agentgov/substrate/pkg/audit"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/escalation"
	"github.com/agentgov/substrate/pkg/governance"
	"github.com/agentgov/substrate/pkg/manifest"
	"github.com/agentgov/substrate/pkg/observability"
	"github.com/agentgov/substrate/pkg/semantic"
	"github.com/agentgov/substrate/pkg/trust"
	"go.opentelemetry.io/otel/attribute"
)

// PolicyProvider resolves a tenant's currently active, compiled Policy
// set and its bundle's Obligations, satisfied by policyloader.Loader.
type PolicyProvider interface {
	ActivePolicies(tenantID string) []contracts.Policy
	ActiveObligations(tenantID string) []contracts.Obligation
}

// trustCapabilityResolver adapts trust.Service to governance.Engine's
// narrower CapabilityResolver contract.
type trustCapabilityResolver struct {
	trust *trust.Service
}

func (r trustCapabilityResolver) GrantedCapabilities(ctx context.Context, tenantID, actorID string) ([]string, error) {
	profile, err := r.trust.Resolve(ctx, tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve trust profile: %w", err)
	}
	return profile.GrantedCapabilities, nil
}

// Timeouts bounds how long the pre- and post-action semantic phases are
// allowed to run before the Pipeline treats them as failed rather than
// blocking the caller indefinitely.
type Timeouts struct {
	PreAction  time.Duration
	PostAction time.Duration
}

// Pipeline is the Intent -> Decision -> Semantic Validation -> Audit
// governance pipeline.
type Pipeline struct {
	engine     *governance.Engine
	policies   PolicyProvider
	trust      *trust.Service
	semantic   *semantic.Service
	audit      *audit.Service
	escalation *escalation.Manager
	timeouts   Timeouts
	clock      func() time.Time

	// toolArgSchemas maps a tool name to the manifest schema its Intent's
	// Context must satisfy before policy evaluation runs. A tool with no
	// registered schema is passed through unvalidated.
	toolArgSchemas map[string]*manifest.ToolArgSchema

	// telemetry is nil unless WithTelemetry is called, in which case
	// Evaluate and FinalizeAction emit a span and RED metrics per call.
	telemetry *observability.Provider
}

// WithTelemetry attaches an observability.Provider. Pass nil (the
// default) to run the pipeline without tracing or metrics.
func (p *Pipeline) WithTelemetry(provider *observability.Provider) *Pipeline {
	p.telemetry = provider
	return p
}

// track starts a RED-metric-tracked span for name when telemetry is
// configured, returning a no-op closer otherwise.
func (p *Pipeline) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if p.telemetry == nil {
		return ctx, func(error) {}
	}
	return p.telemetry.TrackOperation(ctx, name, attrs...)
}

// WithToolArgSchema registers the argument schema a tool's Intent Context
// must satisfy at the PEP boundary, before the Intent reaches the
// Governance Engine.
func (p *Pipeline) WithToolArgSchema(tool string, schema *manifest.ToolArgSchema) *Pipeline {
	if p.toolArgSchemas == nil {
		p.toolArgSchemas = make(map[string]*manifest.ToolArgSchema)
	}
	p.toolArgSchemas[tool] = schema
	return p
}

// New constructs a Pipeline. New does not attach a capability resolver to
// engine: capability_gate enforcement uses only a resolver engine was
// built with (governance.WithCapabilityResolver). trustSvc is stored on
// the Pipeline and is not wired into engine.
func New(engine *governance.Engine, policies PolicyProvider, trustSvc *trust.Service, semanticSvc *semantic.Service, auditSvc *audit.Service, escalationMgr *escalation.Manager, timeouts Timeouts) *Pipeline {
	return &Pipeline{
		engine:     engine,
		policies:   policies,
		trust:      trustSvc,
		semantic:   semanticSvc,
		audit:      auditSvc,
		escalation: escalationMgr,
		timeouts:   timeouts,
		clock:      time.Now,
	}
}

// PreActionResult bundles the semantic and governance verdicts a caller
// needs before deciding whether to actually perform the requested action.
type PreActionResult struct {
	Decision      contracts.Decision
	SemanticValid bool
	SemanticFail  *semantic.Result
	Escalation    *contracts.EscalationIntent
}

// Evaluate runs the pre-action half of the pipeline: semantic validation
// of the proposed action (when interaction carries one), Policy
// evaluation, capability gating, and — if the resulting Decision requires
// escalation — creation of an escalation intent. Every outcome is
// audited, including deny and escalate verdicts.
func (p *Pipeline) Evaluate(ctx context.Context, intent contracts.Intent, callerContext, environment map[string]any, interaction *semantic.AgentInteraction) (result PreActionResult, err error) {
	ctx, done := p.track(ctx, "governance.evaluate",
		attribute.String("tenant_id", intent.TenantID),
		attribute.String("intent_type", intent.IntentType),
	)
	defer func() { done(err) }()

	if len(intent.Tools) > 0 {
		if schema, ok := p.toolArgSchemas[intent.Tools[0]]; ok {
			if _, err := manifest.ValidateAndCanonicalizeToolArgs(schema, intent.Context); err != nil {
				decision := contracts.Decision{
					IntentID:    intent.ID,
					Action:      contracts.ActionDeny,
					Reason:      "tool_args_rejected: " + err.Error(),
					DenialCode:  "tool_args_rejected",
					EvaluatedAt: p.clock(),
				}
				if auditErr := p.recordDecision(ctx, intent, decision); auditErr != nil {
					return PreActionResult{Decision: decision}, auditErr
				}
				return PreActionResult{Decision: decision}, nil
			}
		}
	}

	if interaction != nil {
		semCtx, cancel := context.WithTimeout(ctx, p.timeoutOrDefault(p.timeouts.PreAction, 500*time.Millisecond))
		defer cancel()

		phase, err := p.semantic.PreActionCheck(semCtx, *interaction)
		if err != nil {
			return PreActionResult{}, fmt.Errorf("orchestrator: pre-action semantic check: %w", err)
		}
		if !phase.Valid {
			decision := contracts.Decision{
				IntentID:    intent.ID,
				Action:      contracts.ActionDeny,
				Reason:      "semantic_validation_failed: " + phase.Reason,
				DenialCode:  "semantic_validation_failed",
				EvaluatedAt: p.clock(),
			}
			res := phase.Result
			if auditErr := p.recordDecision(ctx, intent, decision); auditErr != nil {
				return PreActionResult{Decision: decision, SemanticValid: false, SemanticFail: &res}, auditErr
			}
			return PreActionResult{Decision: decision, SemanticValid: false, SemanticFail: &res}, nil
		}
	}

	policies := p.policies.ActivePolicies(intent.TenantID)
	obligations := p.policies.ActiveObligations(intent.TenantID)
	decision, err := p.engine.Evaluate(ctx, intent, callerContext, environment, policies, obligations)
	if err != nil {
		return PreActionResult{}, fmt.Errorf("orchestrator: evaluate policy: %w", err)
	}

	result = PreActionResult{Decision: decision, SemanticValid: true}

	if decision.RequiresEscalation {
		intentRecord, err := p.escalation.CreateIntent(ctx, decision, decision.DenialCode, decision.ApproverHint)
		if err != nil {
			return result, fmt.Errorf("orchestrator: create escalation intent: %w", err)
		}
		result.Escalation = intentRecord
	}

	for _, ob := range decision.FiredObligations {
		if auditErr := p.recordObligation(ctx, intent, ob); auditErr != nil {
			return result, auditErr
		}
	}

	if auditErr := p.recordDecision(ctx, intent, decision); auditErr != nil {
		return result, auditErr
	}
	return result, nil
}

// FinalizeAction runs the post-action half of the pipeline: validating
// what the agent actually produced against the interaction's output and
// inference records, then auditing the outcome.
func (p *Pipeline) FinalizeAction(ctx context.Context, intent contracts.Intent, interaction semantic.AgentInteraction, outcome contracts.Outcome) (result semantic.Result, err error) {
	ctx, done := p.track(ctx, "governance.finalize_action",
		attribute.String("tenant_id", intent.TenantID),
		attribute.String("intent_type", intent.IntentType),
	)
	defer func() { done(err) }()

	postCtx, cancel := context.WithTimeout(ctx, p.timeoutOrDefault(p.timeouts.PostAction, 2*time.Second))
	defer cancel()

	phase, err := p.semantic.PostActionCheck(postCtx, interaction)
	if err != nil {
		return semantic.Result{}, fmt.Errorf("orchestrator: post-action semantic check: %w", err)
	}

	eventType := "semantic.output_fail"
	effectiveOutcome := outcome
	if phase.Valid {
		eventType = "intent.allowed"
	} else {
		effectiveOutcome = contracts.OutcomeFailure
	}

	_, recErr := p.audit.Record(ctx, audit.RecordInput{
		TenantID:  intent.TenantID,
		EventType: eventType,
		Actor:     intent.Actor,
		Action:    intent.IntentType,
		Outcome:   effectiveOutcome,
		Reason:    phase.Reason,
		TraceID:   intent.TraceID,
		RequestID: intent.RequestID,
	})
	if recErr != nil {
		return phase.Result, contracts.NewTransientStorageError(fmt.Sprintf("audit write failed for intent %s: %v", intent.ID, recErr))
	}
	return phase.Result, nil
}

// recordDecision writes the Decision's audit record. A failure here is
// fatal to the request: the caller must never receive an allow verdict
// that was not durably audited, so the failure is surfaced as a
// retryable transient_storage_error rather than swallowed.
func (p *Pipeline) recordDecision(ctx context.Context, intent contracts.Intent, decision contracts.Decision) error {
	eventType := decisionEventType(decision.Action)
	outcome := contracts.OutcomeSuccess
	if decision.Action == contracts.ActionDeny {
		outcome = contracts.OutcomeFailure
	}

	_, err := p.audit.Record(ctx, audit.RecordInput{
		TenantID:  intent.TenantID,
		EventType: eventType,
		Actor:     intent.Actor,
		Action:    intent.IntentType,
		Outcome:   outcome,
		Reason:    decision.Reason,
		TraceID:   intent.TraceID,
		RequestID: intent.RequestID,
		Metadata: map[string]any{
			"intent_id":   intent.ID,
			"denial_code": decision.DenialCode,
		},
	})
	if err != nil {
		return contracts.NewTransientStorageError(fmt.Sprintf("audit write failed for intent %s: %v", intent.ID, err))
	}
	return nil
}

// recordObligation writes the audit record for one fired Obligation,
// mirroring governance.ToAuditRecord's field mapping but routed through
// audit.Service so it takes its place in the tenant's hash chain like
// every other record, rather than being appended outside the chain.
func (p *Pipeline) recordObligation(ctx context.Context, intent contracts.Intent, ob contracts.Obligation) error {
	_, err := p.audit.Record(ctx, audit.RecordInput{
		TenantID:  intent.TenantID,
		EventType: governance.ObligationFiredEvent,
		Actor:     intent.Actor,
		Action:    ob.Action,
		Outcome:   contracts.OutcomeSuccess,
		Reason:    ob.Trigger,
		TraceID:   intent.TraceID,
		RequestID: intent.RequestID,
		Metadata: map[string]any{
			"trigger":    ob.Trigger,
			"parameters": ob.Parameters,
		},
	})
	if err != nil {
		return contracts.NewTransientStorageError(fmt.Sprintf("audit write failed for obligation %q on intent %s: %v", ob.Action, intent.ID, err))
	}
	return nil
}

func decisionEventType(action contracts.Action) string {
	switch action {
	case contracts.ActionAllow:
		return "intent.allowed"
	case contracts.ActionEscalate:
		return "intent.escalated"
	case contracts.ActionQuarantine:
		return "intent.quarantined"
	default:
		return "intent.denied"
	}
}

func (p *Pipeline) timeoutOrDefault(configured, fallback time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return fallback
}
