// Package contracts defines the shared data model that flows through the
// governance pipeline: intents, decisions, policy bundles, capabilities,
// trust profiles, semantic credentials, and audit records.
package contracts

import "time"

// ActorType identifies the kind of entity that originated an Intent.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorAgent   ActorType = "agent"
	ActorService ActorType = "service"
	ActorSystem  ActorType = "system"
)

// Actor identifies who (or what) is proposing an action.
type Actor struct {
	ID   string    `json:"id"`
	Type ActorType `json:"type"`
	Name string    `json:"name,omitempty"`
	IP   string    `json:"ip,omitempty"`
}

// Target identifies what an action or audit event is directed at.
type Target struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Intent is a structured, pre-execution description of what an agent
// proposes to do. It is created by an upstream caller and is immutable
// once handed to the governance pipeline.
type Intent struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	Actor      Actor             `json:"actor"`
	Goal       string            `json:"goal"`
	IntentType string            `json:"intent_type"`
	Tools      []string          `json:"tools,omitempty"`
	Endpoints  []string          `json:"endpoints,omitempty"`
	Content    string            `json:"content,omitempty"`
	Context    map[string]any    `json:"context,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Action enumerates the final verdict of the governance pipeline.
type Action string

const (
	ActionAllow      Action = "allow"
	ActionDeny       Action = "deny"
	ActionEscalate   Action = "escalate"
	ActionQuarantine Action = "quarantine"
)

// MatchedRule is a single rule's audit trace from the Rule Evaluator.
type MatchedRule struct {
	Field      string `json:"field"`
	Operator   string `json:"operator"`
	Expected   any    `json:"expected"`
	Actual     any    `json:"actual"`
	Matched    bool   `json:"matched"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// MatchedPolicy carries one policy's contribution to a Decision.
type MatchedPolicy struct {
	PolicyID   string        `json:"policy_id"`
	Name       string        `json:"name"`
	Priority   int           `json:"priority"`
	Matched    bool          `json:"matched"`
	Effect     string        `json:"effect"`
	Rules      []MatchedRule `json:"rules,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// Decision is the governance pipeline's verdict on an Intent. It is always
// produced, and is always audited.
type Decision struct {
	IntentID        string          `json:"intent_id"`
	Action          Action          `json:"decision"`
	Reason          string          `json:"reason"`
	Message         string          `json:"message,omitempty"`
	DenialCode      string          `json:"denial_code,omitempty"`
	MatchedPolicies []MatchedPolicy `json:"matched_policies"`
	Modifications   []Modification  `json:"modifications,omitempty"`
	// ModifiedContent is the Intent's Content after every matched
	// data_protection redact/mask constraint has been applied to it. Empty
	// when no constraint touched the content.
	ModifiedContent    string       `json:"modified_content,omitempty"`
	ProofID            string       `json:"proof_id,omitempty"`
	RequiresEscalation bool         `json:"requires_escalation,omitempty"`
	ApproverHint       string       `json:"approver_hint,omitempty"`
	// FiredObligations holds the Bundle Obligations whose trigger evaluated
	// true against this Decision, in source order.
	FiredObligations []Obligation `json:"fired_obligations,omitempty"`
	DurationMs       int64        `json:"duration_ms"`
	EvaluatedAt      time.Time    `json:"evaluated_at"`
}

// Permitted reports whether the decision allows the caller to proceed.
func (d Decision) Permitted() bool {
	return d.Action == ActionAllow
}

// Modification records a content transformation applied by a data-protection
// constraint (e.g. a redaction), for audit and caller visibility.
type Modification struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}
