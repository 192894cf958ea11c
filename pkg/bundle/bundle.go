// Package bundle parses, validates, and serializes Policy Bundles: the
// versioned, declarative artifacts that carry a tenant's constraints and
// obligations. Bundles arrive as either YAML or JSON; format is detected
// from the document's leading byte rather than from a file extension, so a
// bundle fetched over HTTP or pulled from an object store behaves the same
// way a bundle loaded from disk would.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Format names the wire encoding a Bundle was parsed from or should be
// serialized to.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var policyIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// supportedBasisVersions is the closed set of schema basis versions this
// build understands. A bundle declaring anything else is rejected before
// any further validation runs, since its constraint vocabulary may not
// match what the rest of this package assumes.
var supportedBasisVersions = map[string]bool{
	"1.0": true,
	"1.1": true,
}

var validConstraintKinds = map[contracts.ConstraintKind]bool{
	contracts.ConstraintToolRestriction:    true,
	contracts.ConstraintEgressWhitelist:    true,
	contracts.ConstraintEgressBlacklist:    true,
	contracts.ConstraintDataProtection:     true,
	contracts.ConstraintCapabilityGate:     true,
	contracts.ConstraintEscalationRequired: true,
}

var validConstraintActions = map[contracts.ConstraintAction]bool{
	contracts.ActionBlock:  true,
	contracts.ActionWarn:   true,
	contracts.ActionRedact: true,
	contracts.ActionMask:   true,
}

// schema is the compiled JSON Schema used to validate a Bundle's structural
// shape before semantic checks run. It is compiled once at package init
// against the Draft 2020-12 meta-schema, matching how the tool-call
// firewall compiles its per-tool parameter schemas.
var schema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://substrate.schemas.local/bundle/v1.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(bundleSchemaJSON)); err != nil {
		panic(fmt.Sprintf("bundle: failed to load schema resource: %v", err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to compile schema: %v", err))
	}
	schema = compiled
}

const bundleSchemaJSON = `{
  "type": "object",
  "required": ["basis_version", "policy_id", "metadata"],
  "properties": {
    "basis_version": {"type": "string"},
    "policy_id": {"type": "string"},
    "metadata": {
      "type": "object",
      "required": ["name", "version"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string"}
      }
    },
    "constraints": {"type": "array"},
    "obligations": {"type": "array"}
  }
}`

// detectFormat inspects the first non-whitespace byte of data. JSON
// documents always begin with "{" or "[" once whitespace is stripped;
// anything else is treated as YAML (which is also the superset encoding).
// No other input is special-cased.
func detectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes raw bundle bytes into a contracts.Bundle, auto-detecting
// JSON vs. YAML, then runs structural and semantic Validate checks. The
// detected Format is returned so callers can round-trip a bundle in its
// original encoding.
func Parse(data []byte) (contracts.Bundle, Format, error) {
	format := detectFormat(data)

	var raw map[string]any
	var unmarshalErr error
	switch format {
	case FormatJSON:
		unmarshalErr = json.Unmarshal(data, &raw)
	default:
		unmarshalErr = yaml.Unmarshal(data, &raw)
	}
	if unmarshalErr != nil {
		return contracts.Bundle{}, format, fmt.Errorf("bundle: decode %s: %w", format, unmarshalErr)
	}

	// jsonschema validates against a generic map, not the typed struct, so
	// structural errors (missing fields, wrong types) surface with JSON
	// Pointer paths before we attempt the typed decode.
	normalized, err := toJSONCompatible(raw)
	if err != nil {
		return contracts.Bundle{}, format, fmt.Errorf("bundle: normalize: %w", err)
	}
	if err := schema.Validate(normalized); err != nil {
		return contracts.Bundle{}, format, toValidationErrors(err)
	}

	var b contracts.Bundle
	switch format {
	case FormatJSON:
		unmarshalErr = json.Unmarshal(data, &b)
	default:
		unmarshalErr = yaml.Unmarshal(data, &b)
	}
	if unmarshalErr != nil {
		return contracts.Bundle{}, format, fmt.Errorf("bundle: typed decode: %w", unmarshalErr)
	}

	if errs := Validate(b); len(errs) > 0 {
		return contracts.Bundle{}, format, errs
	}

	return b, format, nil
}

// toJSONCompatible converts a yaml.v3-decoded map (which may contain
// map[string]interface{} with non-string keys in nested structures on
// older decoders) into the map[string]interface{} shape jsonschema
// expects, via a JSON round-trip.
func toJSONCompatible(raw map[string]any) (any, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toValidationErrors(err error) contracts.ValidationErrors {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		var out contracts.ValidationErrors
		var walk func(*jsonschema.ValidationError)
		walk = func(v *jsonschema.ValidationError) {
			if len(v.Causes) == 0 {
				out = append(out, contracts.ValidationError{
					Path:    v.InstanceLocation,
					Message: v.Message,
					Keyword: v.KeywordLocation,
				})
				return
			}
			for _, cause := range v.Causes {
				walk(cause)
			}
		}
		walk(ve)
		return out
	}
	return contracts.ValidationErrors{{Message: err.Error()}}
}

// Validate runs the semantic checks a structural JSON Schema cannot
// express: policy_id naming, semver well-formedness, basis_version
// membership, and closed-set membership for every constraint's kind and
// action.
func Validate(b contracts.Bundle) contracts.ValidationErrors {
	var errs contracts.ValidationErrors

	if !supportedBasisVersions[b.BasisVersion] {
		errs = append(errs, contracts.ValidationError{
			Path: "/basis_version", Keyword: "enum",
			Message: fmt.Sprintf("unsupported basis_version %q", b.BasisVersion),
		})
	}

	if !policyIDRe.MatchString(b.PolicyID) {
		errs = append(errs, contracts.ValidationError{
			Path: "/policy_id", Keyword: "pattern",
			Message: fmt.Sprintf("policy_id %q must match %s", b.PolicyID, policyIDRe.String()),
		})
	}

	if _, err := semver.NewVersion(b.Metadata.Version); err != nil {
		errs = append(errs, contracts.ValidationError{
			Path: "/metadata/version", Keyword: "format",
			Message: fmt.Sprintf("metadata.version %q is not valid semver: %v", b.Metadata.Version, err),
		})
	}

	for i, c := range b.Constraints {
		if !validConstraintKinds[c.Kind] {
			errs = append(errs, contracts.ValidationError{
				Path: fmt.Sprintf("/constraints/%d/type", i), Keyword: "enum",
				Message: fmt.Sprintf("unknown constraint type %q", c.Kind),
			})
		}
		if !validConstraintActions[c.Action] {
			errs = append(errs, contracts.ValidationError{
				Path: fmt.Sprintf("/constraints/%d/action", i), Keyword: "enum",
				Message: fmt.Sprintf("unknown constraint action %q", c.Action),
			})
		}
		if c.NamedPattern == "" && c.Pattern == "" && len(c.Values) == 0 &&
			c.Kind != contracts.ConstraintCapabilityGate && c.Kind != contracts.ConstraintEscalationRequired {
			errs = append(errs, contracts.ValidationError{
				Path: fmt.Sprintf("/constraints/%d", i), Keyword: "required",
				Message: "constraint must declare one of values, pattern, or named_pattern",
			})
		}
	}

	return errs
}

// Serialize encodes a Bundle in the requested Format.
func Serialize(b contracts.Bundle, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(b, "", "  ")
	case FormatYAML:
		return yaml.Marshal(b)
	default:
		return nil, fmt.Errorf("bundle: unknown format %q", format)
	}
}
