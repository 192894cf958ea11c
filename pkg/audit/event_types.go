package audit

import "github.com/agentgov/substrate/pkg/contracts"

// eventTypeInfo pairs the category and severity a known event type is
// recorded with.
type eventTypeInfo struct {
	Category string
	Severity contracts.Severity
}

// eventTypeTable is the static event-type table spec 4.8 derives category
// and severity from; unknown types default to {system, info}.
var eventTypeTable = map[string]eventTypeInfo{
	"intent.allowed":             {"governance", contracts.SeverityInfo},
	"intent.denied":              {"governance", contracts.SeverityWarn},
	"intent.escalated":           {"governance", contracts.SeverityWarn},
	"intent.quarantined":         {"governance", contracts.SeverityWarn},
	"obligation.fired":           {"governance", contracts.SeverityInfo},
	"capability.granted":         {"trust", contracts.SeverityInfo},
	"capability.denied":          {"trust", contracts.SeverityNotice},
	"trust.adjusted":             {"trust", contracts.SeverityInfo},
	"trust.revoked":              {"trust", contracts.SeverityWarn},
	"escalation.created":         {"escalation", contracts.SeverityNotice},
	"escalation.approved":        {"escalation", contracts.SeverityInfo},
	"escalation.denied":          {"escalation", contracts.SeverityWarn},
	"escalation.timed_out":       {"escalation", contracts.SeverityWarn},
	"semantic.instruction_fail":  {"semantic_governance", contracts.SeverityWarn},
	"semantic.output_fail":       {"semantic_governance", contracts.SeverityWarn},
	"semantic.context_fail":      {"semantic_governance", contracts.SeverityWarn},
	"semantic.dual_channel_fail": {"semantic_governance", contracts.SeverityCritical},
	"policy_bundle.installed":    {"governance", contracts.SeverityInfo},
	"credential.rotated":         {"trust", contracts.SeverityInfo},
	"credential.revoked":         {"trust", contracts.SeverityWarn},
}

// classify returns category and severity for eventType, defaulting to
// {system, info} for an unregistered type.
func classify(eventType string) (string, contracts.Severity) {
	if info, ok := eventTypeTable[eventType]; ok {
		return info.Category, info.Severity
	}
	return contracts.DefaultCategory, contracts.DefaultSeverity
}
