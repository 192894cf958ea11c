// Package capabilities implements the hierarchical capability taxonomy:
// parsing "namespace:category/action[/scope]" strings, matching a granted
// set against a requested capability (including wildcard suffixes), the
// minimum-tier/escalation registry, and derivation of a reduced child
// capability set along a delegation chain.
package capabilities

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentgov/substrate/pkg/contracts"
)

// grammarRe matches the wire grammar from spec §6:
// [a-z0-9]+(:[a-z0-9_]+)(/[a-z0-9_]+)([0-9a-z_/]+)?
var grammarRe = regexp.MustCompile(`^[a-z0-9]+:[a-z0-9_]+/[a-z0-9_]+(/[0-9a-z_]+)*$`)

// ErrInvalidCapability is returned for malformed or bare-wildcard strings.
var ErrInvalidCapability = fmt.Errorf("invalid capability string")

// ErrBareWildcard is returned for the bare "*" capability, which is never
// valid.
var ErrBareWildcard = fmt.Errorf("bare wildcard capability is invalid")

// Parse decodes a capability string into its namespace/category/action/scope
// parts. Wildcards are only accepted as a final path segment ("/*") or in
// the form "ns:*".
func Parse(raw string) (contracts.Capability, error) {
	if raw == "*" {
		return contracts.Capability{}, ErrBareWildcard
	}

	if ns, ok := strings.CutSuffix(raw, ":*"); ok {
		if ns == "" || strings.ContainsAny(ns, ":/") {
			return contracts.Capability{}, fmt.Errorf("%w: %q", ErrInvalidCapability, raw)
		}
		return contracts.Capability{Raw: raw, Namespace: ns, Category: "*"}, nil
	}

	trimmed := raw
	wildcardSuffix := false
	if after, ok := strings.CutSuffix(raw, "/*"); ok {
		trimmed = after
		wildcardSuffix = true
	}

	parts := strings.SplitN(trimmed, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return contracts.Capability{}, fmt.Errorf("%w: %q", ErrInvalidCapability, raw)
	}
	namespace := parts[0]
	rest := strings.Split(parts[1], "/")
	if len(rest) < 2 || rest[0] == "" || rest[1] == "" {
		return contracts.Capability{}, fmt.Errorf("%w: %q", ErrInvalidCapability, raw)
	}

	cp := contracts.Capability{
		Raw:       raw,
		Namespace: namespace,
		Category:  rest[0],
		ActionID:  rest[1],
	}
	if len(rest) > 2 {
		cp.Scope = strings.Join(rest[2:], "/")
	}
	if wildcardSuffix {
		if cp.Scope != "" {
			cp.Scope += "/*"
		} else {
			cp.Scope = "*"
		}
	}

	if !wildcardSuffix && !grammarRe.MatchString(raw) {
		return contracts.Capability{}, fmt.Errorf("%w: %q", ErrInvalidCapability, raw)
	}

	return cp, nil
}

// prefix returns the granted-string prefix up to and including the
// separator a trailing wildcard marker replaces, for prefix comparisons.
// The trailing separator is kept so "infra:deploy/*" matches
// "infra:deploy/prod" but not the unrelated "infra:deployment/prod".
func prefix(granted string) (string, bool) {
	if p, ok := strings.CutSuffix(granted, "/*"); ok {
		return p + "/", true
	}
	if p, ok := strings.CutSuffix(granted, ":*"); ok {
		return p + ":", true
	}
	return granted, false
}

// Match reports whether a granted capability string authorizes a requested
// capability string. Exact match always succeeds. A granted "…/*" suffix
// matches any requested capability whose prefix equals the granted prefix.
// A granted "ns:*" matches any capability in that namespace. A bare "*" in
// either position never matches (callers must reject it at parse time).
func Match(granted, requested string) bool {
	if granted == "*" || requested == "*" {
		return false
	}
	if granted == requested {
		return true
	}
	p, isWildcard := prefix(granted)
	if !isWildcard {
		return false
	}
	return strings.HasPrefix(requested, p)
}

// MatchAny reports whether any granted capability authorizes requested.
func MatchAny(granted []string, requested string) bool {
	for _, g := range granted {
		if Match(g, requested) {
			return true
		}
	}
	return false
}
