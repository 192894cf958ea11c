package semantic

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentgov/substrate/pkg/canonicalize"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/patterns"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// builtinProhibited is the always-on pattern set the spec names: email,
// SSN, credit-card, API keys, AWS keys, private keys, JWT, phone, IP.
var builtinProhibited = map[string]Severity{
	"email":       SeverityLow,
	"ssn_us":      SeverityCritical,
	"credit_card": SeverityHigh,
	"api_key":     SeverityCritical,
	"aws_key":     SeverityCritical,
	"private_key": SeverityCritical,
	"jwt":         SeverityHigh,
	"phone_us":    SeverityLow,
	"ip_address":  SeverityLow,
}

// urlRegex permissively extracts URLs from serialized output for the
// endpoint allow/block check.
var urlRegex = regexp.MustCompile(`https?://[^\s"'<>]+`)

// OutputValidator implements spec 4.6.2.
type OutputValidator struct {
	// SeverityThreshold is the minimum severity that denies output; a
	// detection below this is recorded but does not reject. Default
	// SeverityMedium if unset via NewOutputValidator.
	SeverityThreshold Severity
	// Extra are additional named-or-raw patterns layered on top of the
	// built-in set, each with its own severity.
	Extra map[string]Severity // pattern-name -> severity (named in patterns.Named, or a raw regex string)
}

// NewOutputValidator constructs a validator denying at medium severity or
// above by default.
func NewOutputValidator() *OutputValidator {
	return &OutputValidator{SeverityThreshold: SeverityMedium, Extra: make(map[string]Severity)}
}

// compiledSchema compiles one allowed-schema map into a jsonschema
// validator, the way pkg/firewall compiles a tool's parameter schema.
func compiledSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("semantic: marshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "mem://semantic/output-schema.json"
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("semantic: load schema: %w", err)
	}
	return c.Compile(url)
}

// ValidateSchema accepts output on the first allowed schema it matches.
// An empty schema set means no schema gate is configured and output
// passes this stage unconditionally.
func (v *OutputValidator) ValidateSchema(output any, allowed []map[string]any) Result {
	if len(allowed) == 0 {
		return ok()
	}
	for _, schema := range allowed {
		compiled, err := compiledSchema(schema)
		if err != nil {
			continue
		}
		if compiled.Validate(output) == nil {
			return ok()
		}
	}
	return reject("output_schema_mismatch")
}

// ScanPatterns scans serialized for the built-in and configured
// prohibited patterns, returning every detection at or above the
// configured threshold.
func (v *OutputValidator) ScanPatterns(serialized string, prohibited []string) Result {
	var detections []Detection

	for name, sev := range builtinProhibited {
		if patterns.Named[name].MatchString(serialized) {
			m := patterns.Named[name].FindString(serialized)
			detections = append(detections, Detection{Category: "prohibited_content", Pattern: name, Severity: sev, Match: m})
		}
	}
	for _, raw := range prohibited {
		re, err := patterns.Compile("", raw)
		if err != nil {
			continue
		}
		if m := re.FindString(serialized); m != "" {
			detections = append(detections, Detection{Category: "prohibited_content", Pattern: raw, Severity: SeverityHigh, Match: m})
		}
	}
	for name, sev := range v.Extra {
		re, err := patterns.Compile(name, "")
		if err != nil {
			re, err = patterns.Compile("", name)
			if err != nil {
				continue
			}
		}
		if m := re.FindString(serialized); m != "" {
			detections = append(detections, Detection{Category: "prohibited_content", Pattern: name, Severity: sev, Match: m})
		}
	}

	threshold := v.SeverityThreshold
	if threshold == "" {
		threshold = SeverityMedium
	}
	for _, d := range detections {
		if d.Severity.atLeast(threshold) {
			return reject("prohibited_pattern_detected", detections...)
		}
	}
	if len(detections) > 0 {
		return Result{Valid: true, Detections: detections, Warnings: []string{"sub-threshold detections present"}}
	}
	return ok()
}

// ValidateEndpoints extracts URLs from serialized and checks them against
// block-then-allow globs; block always wins over allow.
func (v *OutputValidator) ValidateEndpoints(serialized string, allowed, blocked []string) Result {
	urls := urlRegex.FindAllString(serialized, -1)
	for _, u := range urls {
		for _, pattern := range blocked {
			if matched, _ := globMatch(pattern, u); matched {
				return reject(fmt.Sprintf("endpoint_blocked:%s", u))
			}
		}
	}
	if len(allowed) == 0 {
		return ok()
	}
	for _, u := range urls {
		permitted := false
		for _, pattern := range allowed {
			if matched, _ := globMatch(pattern, u); matched {
				permitted = true
				break
			}
		}
		if !permitted {
			return reject(fmt.Sprintf("endpoint_not_allowed:%s", u))
		}
	}
	return ok()
}

// Sanitize returns a copy of output with every detection's match replaced
// by [REDACTED], plus a redaction log of what was removed.
func (v *OutputValidator) Sanitize(serialized string, detections []Detection) (string, []string) {
	out := serialized
	var log []string
	for _, d := range detections {
		if d.Match == "" {
			continue
		}
		out = strings.ReplaceAll(out, d.Match, "[REDACTED]")
		log = append(log, fmt.Sprintf("%s:%s", d.Category, d.Pattern))
	}
	return out, log
}

// Validate runs schema, pattern, and endpoint checks in sequence, then
// canonicalizes the accepted output for hashing, mirroring
// ValidateAndCanonicalizeToolOutput's canonicalize-then-hash tail.
func (v *OutputValidator) Validate(output any, cred contracts.OutputBindingCredential) (Result, string, error) {
	if res := v.ValidateSchema(output, cred.AllowedSchemas); !res.Valid {
		return res, "", nil
	}

	serialized, err := json.Marshal(output)
	if err != nil {
		return Result{}, "", fmt.Errorf("semantic: marshal output: %w", err)
	}

	if res := v.ScanPatterns(string(serialized), cred.ProhibitedPatterns); !res.Valid {
		return res, "", nil
	}

	if res := v.ValidateEndpoints(string(serialized), cred.AllowedEndpoints, cred.BlockedEndpoints); !res.Valid {
		return res, "", nil
	}

	canon, err := canonicalize.JCS(output)
	if err != nil {
		return Result{}, "", fmt.Errorf("semantic: canonicalize output: %w", err)
	}
	return ok(), canonicalize.HashBytes(canon), nil
}
