// Package semantic implements the Semantic Governance Service: five
// validators gating what an agent may act on, say, infer, and trust, run
// at two invocation points (pre-action and post-action) around an
// AgentInteraction.
package semantic

import (
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
)

// AgentIdentity describes the agent an interaction is validated against.
type AgentIdentity struct {
	DID     string
	Tier    contracts.Tier
	Domains []string
}

// InboundMessage is the message under dual-channel classification.
type InboundMessage struct {
	Source        string
	Content       string
	Authenticated bool
	Timestamp     time.Time
}

// ContextItem is one piece of context offered to the agent.
type ContextItem struct {
	ProviderID   string
	ProviderTier contracts.Tier
	Domains      []string
	Content      string
	Signature    string
	Timestamp    time.Time
}

// InferenceOp is one declared or detected inference the agent performs
// over observed data.
type InferenceOp struct {
	Level      contracts.InferenceLevel
	Domain     string
	PIITypes   []string
	Persistent bool
	Recipients []string
}

// ActionRequest is the pre-action payload: the instruction the agent
// intends to act on, plus the context and inference ops it depends on.
type ActionRequest struct {
	Instruction     string
	InstructionSig  string
	InstructionFrom string
	Context         []ContextItem
	Inferences      []InferenceOp
}

// ActionRecord is the post-action payload: what the agent actually
// produced.
type ActionRecord struct {
	Output           any
	OutputSchemas    []map[string]any
	ReferencedURLs   []string
	DerivedKnowledge []InferenceOp
}

// AgentInteraction bundles everything the five validators need for one
// pass.
type AgentInteraction struct {
	Agent   AgentIdentity
	Message InboundMessage
	Action  ActionRequest
	Record  ActionRecord
}

// Severity is the closed severity set shared by the injection catalogue
// and the Output Validator's prohibited-pattern scan.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// atLeast reports whether s meets or exceeds threshold.
func (s Severity) atLeast(threshold Severity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// Detection is one pattern hit, used by the injection scanner, the
// dual-channel content scanner, and the output pattern scanner.
type Detection struct {
	Category string
	Pattern  string
	Severity Severity
	Match    string
}

// Result is the outcome of a single validator check.
type Result struct {
	Valid      bool
	Reason     string
	Detections []Detection
	Warnings   []string
}

func ok() Result { return Result{Valid: true} }

func reject(reason string, detections ...Detection) Result {
	return Result{Valid: false, Reason: reason, Detections: detections}
}
