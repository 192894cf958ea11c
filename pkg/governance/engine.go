// Package governance implements the Governance Engine: the component that
// evaluates an Intent against a tenant's active Policy set, resolves
// conflicts between matching policies, applies capability gating, converts
// matching escalation_required constraints into an escalate verdict, and
// fires Obligations.
package governance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentgov/substrate/pkg/capabilities"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/patterns"
	"github.com/agentgov/substrate/pkg/rules"
)

// ConflictStrategy is the closed set of ways the Engine resolves multiple
// matching policies that disagree.
type ConflictStrategy string

const (
	DenyOverrides  ConflictStrategy = "deny_overrides"
	AllowOverrides ConflictStrategy = "allow_overrides"
	FirstMatch     ConflictStrategy = "first_match"
	PriorityBased  ConflictStrategy = "priority_based"
)

// CapabilityResolver looks up an actor's granted capability set, so the
// Engine can evaluate capability_gate constraints without owning trust
// state itself.
type CapabilityResolver interface {
	GrantedCapabilities(ctx context.Context, tenantID, actorID string) ([]string, error)
}

// Engine evaluates Intents against a tenant's Policy set.
type Engine struct {
	strategy    ConflictStrategy
	defaultDeny bool
	resolver    CapabilityResolver
	obligations *ObligationEvaluator
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConflictStrategy overrides the default deny_overrides strategy.
func WithConflictStrategy(s ConflictStrategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithDefaultAction controls what the Engine returns when no enabled
// policy matches: deny (default, fail-closed) when allowOnNoMatch is
// false, allow when true.
func WithDefaultAction(allowOnNoMatch bool) Option {
	return func(e *Engine) { e.defaultDeny = !allowOnNoMatch }
}

// WithCapabilityResolver wires capability_gate enforcement.
func WithCapabilityResolver(r CapabilityResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// New constructs an Engine with deny_overrides and fail-closed defaults,
// matching spec's fail-closed posture for anything not explicitly
// permitted.
func New(opts ...Option) (*Engine, error) {
	oe, err := NewObligationEvaluator()
	if err != nil {
		return nil, fmt.Errorf("governance: init obligation evaluator: %w", err)
	}
	e := &Engine{
		strategy:    DenyOverrides,
		defaultDeny: true,
		obligations: oe,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs an Intent against the given Policy set and returns the
// pipeline's verdict. policies need not be pre-sorted; Evaluate sorts a
// local copy by descending priority before evaluation. obligations is the
// active Bundle's Obligation list; as step 3.5 of the algorithm, each
// trigger is evaluated against the rendered Decision once it is final, and
// the subset that fires is recorded on Decision.FiredObligations for the
// caller to audit.
func (e *Engine) Evaluate(ctx context.Context, intent contracts.Intent, callerContext, environment map[string]any, policies []contracts.Policy, obligations []contracts.Obligation) (contracts.Decision, error) {
	start := time.Now()

	ruleCtx, err := rules.BuildContext(intent, callerContext, environment)
	if err != nil {
		return contracts.Decision{}, fmt.Errorf("governance: build rule context: %w", err)
	}

	ordered := make([]contracts.Policy, len(policies))
	copy(ordered, policies)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	var matches []contracts.MatchedPolicy
	var modifications []contracts.Modification
	content := intent.Content
	decision := contracts.Decision{
		IntentID:    intent.ID,
		Action:      contracts.ActionDeny,
		Reason:      "no enabled policy matched",
		EvaluatedAt: start,
	}
	if !e.defaultDeny {
		decision.Action = contracts.ActionAllow
		decision.Reason = "default allow: no enabled policy matched"
	}

	resolved := false
	for _, p := range ordered {
		if !p.Enabled {
			continue
		}
		if !conditionsMatch(p.Conditions, intent) {
			continue
		}

		policyStart := time.Now()
		matched, trace := rules.Evaluate(ruleCtx, p.Rules)
		mp := contracts.MatchedPolicy{
			PolicyID:   p.ID,
			Name:       p.Name,
			Priority:   p.Priority,
			Matched:    matched,
			Effect:     string(p.Effect),
			Rules:      trace,
			DurationMs: time.Since(policyStart).Milliseconds(),
		}
		matches = append(matches, mp)
		if !matched {
			continue
		}

		effectAction := contracts.ActionDeny
		if p.Effect == contracts.EffectAllow {
			effectAction = contracts.ActionAllow
		}

		if !resolved {
			decision.Action = effectAction
			decision.Reason = fmt.Sprintf("matched policy %q", p.ID)
			resolved = true
		} else {
			decision.Action = resolveConflict(e.strategy, decision.Action, effectAction, decision.Reason, p.ID, &decision.Reason)
		}

		if p.SourceConstraint != nil {
			mods, newContent, escalated, approverHint := applyConstraint(*p.SourceConstraint, &decision, content)
			content = newContent
			modifications = append(modifications, mods...)
			if escalated {
				decision.RequiresEscalation = true
				decision.ApproverHint = approverHint
			}
		}

		if e.strategy == FirstMatch && resolved {
			break
		}
	}

	if e.resolver != nil && decision.Action == contracts.ActionAllow {
		if err := e.enforceCapabilityGates(ctx, intent, ordered, &decision); err != nil {
			return contracts.Decision{}, err
		}
	}

	if len(obligations) > 0 {
		fired, err := e.obligations.Fired(decision, intent, callerContext, obligations)
		if err != nil {
			return contracts.Decision{}, fmt.Errorf("governance: evaluate obligations: %w", err)
		}
		decision.FiredObligations = fired
	}

	decision.MatchedPolicies = matches
	decision.Modifications = modifications
	if content != intent.Content {
		decision.ModifiedContent = content
	}
	decision.DurationMs = time.Since(start).Milliseconds()
	return decision, nil
}

func (e *Engine) enforceCapabilityGates(ctx context.Context, intent contracts.Intent, policies []contracts.Policy, decision *contracts.Decision) error {
	var gates []contracts.Constraint
	for _, p := range policies {
		if p.SourceConstraint != nil && p.SourceConstraint.Kind == contracts.ConstraintCapabilityGate && p.SourceConstraint.IsEnabled() {
			gates = append(gates, *p.SourceConstraint)
		}
	}
	if len(gates) == 0 {
		return nil
	}

	granted, err := e.resolver.GrantedCapabilities(ctx, intent.TenantID, intent.Actor.ID)
	if err != nil {
		return fmt.Errorf("governance: resolve granted capabilities: %w", err)
	}

	for _, gate := range gates {
		for _, required := range gate.Values {
			if !capabilities.MatchAny(granted, required) {
				decision.Action = contracts.ActionDeny
				decision.DenialCode = "capability_gate_missing"
				decision.Reason = fmt.Sprintf("actor lacks required capability %q", required)
				return nil
			}
		}
	}
	return nil
}

func conditionsMatch(c *contracts.PolicyConditions, intent contracts.Intent) bool {
	if c == nil {
		return true
	}
	if len(c.IntentTypes) > 0 && !globAny(c.IntentTypes, intent.IntentType) {
		return false
	}
	if len(c.Actions) > 0 {
		matched := false
		for _, tool := range intent.Tools {
			if globAny(c.Actions, tool) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(c.Resources) > 0 {
		matched := false
		for _, ep := range intent.Endpoints {
			if globAny(c.Resources, ep) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func globAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if globMatch(p, value) {
			return true
		}
	}
	return false
}

func globMatch(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(value) >= len(prefix) && value[:len(prefix)] == prefix
	}
	return false
}

// resolveConflict folds a newly-matched effectAction into the accumulated
// decision according to strategy.
func resolveConflict(strategy ConflictStrategy, current, next contracts.Action, currentReason, nextPolicyID string, outReason *string) contracts.Action {
	switch strategy {
	case AllowOverrides:
		if next == contracts.ActionAllow {
			*outReason = fmt.Sprintf("matched policy %q (allow_overrides)", nextPolicyID)
			return contracts.ActionAllow
		}
		return current
	case FirstMatch:
		return current
	case PriorityBased:
		// Policies are pre-sorted by descending priority, so the first
		// match already reflects the highest-priority policy; later
		// matches never override it.
		return current
	case DenyOverrides:
		fallthrough
	default:
		if next == contracts.ActionDeny {
			*outReason = fmt.Sprintf("matched policy %q (deny_overrides)", nextPolicyID)
			return contracts.ActionDeny
		}
		return current
	}
}

// applyConstraint translates a Bundle-sourced Constraint's enforcement
// action into Decision-level side effects: redact/mask constraints rewrite
// content and record a Modification with its real match count,
// escalation_required constraints flip the pending verdict to escalate.
// content is the running content carried across every constraint a single
// Evaluate call applies; applyConstraint returns its possibly-rewritten
// form for the next constraint (or the caller) to see.
func applyConstraint(c contracts.Constraint, decision *contracts.Decision, content string) (mods []contracts.Modification, newContent string, escalate bool, approverHint string) {
	switch c.Kind {
	case contracts.ConstraintEscalationRequired:
		if decision.Action == contracts.ActionAllow {
			decision.Action = contracts.ActionEscalate
		}
		return nil, content, true, c.ApproverHint
	case contracts.ConstraintDataProtection:
		if c.Action == contracts.ActionRedact || c.Action == contracts.ActionMask {
			return applyDataProtection(c, content)
		}
	}
	return nil, content, false, ""
}

// applyDataProtection runs a redact or mask data_protection constraint
// against content, returning the constraint's Modification record (with
// its true match count) and the transformed content. A pattern that
// fails to compile or never matches content is a no-op.
func applyDataProtection(c contracts.Constraint, content string) (mods []contracts.Modification, newContent string, escalate bool, approverHint string) {
	pattern := c.NamedPattern
	if pattern == "" {
		pattern = c.Pattern
	}

	re, err := patterns.Compile(c.NamedPattern, c.Pattern)
	if err != nil || content == "" {
		return nil, content, false, ""
	}

	count := len(re.FindAllStringIndex(content, -1))
	if count == 0 {
		return nil, content, false, ""
	}

	var transformed string
	if c.Action == contracts.ActionRedact {
		transformed, err = patterns.Redact(c.NamedPattern, c.Pattern, content, "")
	} else {
		transformed, err = patterns.Mask(c.NamedPattern, c.Pattern, content, c.ShowLastN)
	}
	if err != nil {
		return nil, content, false, ""
	}

	return []contracts.Modification{{Pattern: pattern, Count: count}}, transformed, false, ""
}
