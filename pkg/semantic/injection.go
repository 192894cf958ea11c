package semantic

import "regexp"

// injectionPattern is one entry of the closed injection catalogue shared
// by the Context Validator's injection scan and the Dual-Channel
// Enforcer's data-plane content scan.
type injectionPattern struct {
	category string
	severity Severity
	re       *regexp.Regexp
}

// injectionCatalogue is the closed set of categories the spec names:
// instruction-override, role-manipulation, data-exfiltration,
// privilege-escalation, system-prompt-extraction, jailbreak,
// hidden-instructions.
var injectionCatalogue = []injectionPattern{
	{"instruction-override", SeverityHigh, regexp.MustCompile(`(?i)\bignore (?:all )?(?:previous|prior|above) instructions\b`)},
	{"instruction-override", SeverityHigh, regexp.MustCompile(`(?i)\bdisregard (?:the )?(?:system|previous) prompt\b`)},
	{"role-manipulation", SeverityHigh, regexp.MustCompile(`(?i)\byou are now\b.{0,40}\b(?:dan|unfiltered|jailbroken)\b`)},
	{"role-manipulation", SeverityMedium, regexp.MustCompile(`(?i)\bact as (?:if you (?:are|were)|an?)\b.{0,40}\bwithout (?:restrictions|limits|filters)\b`)},
	{"data-exfiltration", SeverityCritical, regexp.MustCompile(`(?i)\b(?:send|post|upload|exfiltrate)\b.{0,40}\bto\b.{0,40}\bhttps?://`)},
	{"data-exfiltration", SeverityHigh, regexp.MustCompile(`(?i)\breveal (?:the )?(?:api key|secret|credential|password)s?\b`)},
	{"privilege-escalation", SeverityCritical, regexp.MustCompile(`(?i)\b(?:grant|escalate|elevate)\b.{0,20}\b(?:admin|root|superuser)\b`)},
	{"privilege-escalation", SeverityHigh, regexp.MustCompile(`(?i)\bsudo\b|\bchmod \+s\b`)},
	{"system-prompt-extraction", SeverityHigh, regexp.MustCompile(`(?i)\brepeat (?:your |the )?(?:system prompt|instructions above)\b`)},
	{"system-prompt-extraction", SeverityHigh, regexp.MustCompile(`(?i)\bwhat (?:is|are) your (?:system prompt|initial instructions)\b`)},
	{"jailbreak", SeverityCritical, regexp.MustCompile(`(?i)\bDAN mode\b|\bdeveloper mode enabled\b`)},
	{"hidden-instructions", SeverityMedium, regexp.MustCompile(`(?i)<!--.*?instructions?.*?-->`)},
	{"hidden-instructions", SeverityMedium, regexp.MustCompile(`\x{200B}|\x{200C}|\x{200D}`)},
}

// scanInjections returns every catalogue pattern matching text.
func scanInjections(text string) []Detection {
	var hits []Detection
	for _, p := range injectionCatalogue {
		if m := p.re.FindString(text); m != "" {
			hits = append(hits, Detection{Category: p.category, Pattern: p.re.String(), Severity: p.severity, Match: m})
		}
	}
	return hits
}

// maxSeverity returns the highest-ranked severity among detections, or ""
// if detections is empty.
func maxSeverity(detections []Detection) Severity {
	var max Severity
	for _, d := range detections {
		if severityRank[d.Severity] > severityRank[max] {
			max = d.Severity
		}
	}
	return max
}

// instructionLikePatterns flags imperative, role-rewrite, system-command,
// and file/network-operation phrasing inside data-plane content, per the
// Dual-Channel Enforcer's scan.
var instructionLikePatterns = []injectionPattern{
	{"imperative", SeverityLow, regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:delete|remove|execute|run|send|fetch|download|install)\b`)},
	{"role-rewrite", SeverityMedium, regexp.MustCompile(`(?i)\byou are (?:now |)(?:a|an)\b.{0,40}\bassistant\b`)},
	{"system-command", SeverityHigh, regexp.MustCompile(`(?i)\b(?:rm -rf|DROP TABLE|curl .*\| *sh)\b`)},
	{"file-network-op", SeverityMedium, regexp.MustCompile(`(?i)\b(?:open|write to|connect to)\b.{0,20}\b(?:file|socket|port)\b`)},
}

func scanInstructionLike(text string) []Detection {
	var hits []Detection
	for _, p := range instructionLikePatterns {
		if m := p.re.FindString(text); m != "" {
			hits = append(hits, Detection{Category: p.category, Pattern: p.re.String(), Severity: p.severity, Match: m})
		}
	}
	return hits
}
