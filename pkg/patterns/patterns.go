// Package patterns provides the named and custom regex-pattern library used
// by data_protection Constraints: redaction, masking, and match detection
// over text surfaces like tool output and inference artifacts.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Named is the built-in pattern library a data_protection Constraint may
// reference by name instead of supplying a raw regex.
var Named = map[string]*regexp.Regexp{
	"ssn_us":      regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	"phone_us":    regexp.MustCompile(`\b\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	"ip_address":  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	"api_key":     regexp.MustCompile(`\b(?:sk|pk|ghp|xox[baprs])-[A-Za-z0-9_-]{16,}\b`),
	"aws_key":     regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	"private_key": regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |)PRIVATE KEY-----`),
	"jwt":         regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
}

// compiledCache holds custom pattern strings compiled once per process,
// since a Constraint's raw Pattern field is evaluated repeatedly across
// many Intents.
var (
	compiledMu    sync.RWMutex
	compiledCache = make(map[string]*regexp.Regexp)
)

// Compile resolves a named pattern or compiles and caches a raw regex
// pattern. named takes precedence when both are supplied, matching how a
// Constraint's named_pattern field is preferred over its pattern field.
func Compile(named, raw string) (*regexp.Regexp, error) {
	if named != "" {
		re, ok := Named[named]
		if !ok {
			return nil, fmt.Errorf("patterns: unknown named pattern %q", named)
		}
		return re, nil
	}
	if raw == "" {
		return nil, fmt.Errorf("patterns: neither named nor raw pattern supplied")
	}

	compiledMu.RLock()
	if re, ok := compiledCache[raw]; ok {
		compiledMu.RUnlock()
		return re, nil
	}
	compiledMu.RUnlock()

	re, err := regexp.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("patterns: compile %q: %w", raw, err)
	}

	compiledMu.Lock()
	compiledCache[raw] = re
	compiledMu.Unlock()
	return re, nil
}

// Match reports whether text contains a match for the named or raw
// pattern.
func Match(named, raw, text string) (bool, error) {
	re, err := Compile(named, raw)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

// Redact replaces every match of the named or raw pattern in text with
// replacement, or the bare "[REDACTED]" placeholder when replacement is
// empty.
func Redact(named, raw, text, replacement string) (string, error) {
	re, err := Compile(named, raw)
	if err != nil {
		return "", err
	}
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	return re.ReplaceAllString(text, replacement), nil
}

// Mask replaces every match of the named or raw pattern in text with a
// same-length run of "*", leaving the last showLastN runes of each match
// visible. showLastN of 0 masks each match in full, preserving the text's
// overall shape for contexts where redaction would break downstream
// formatting.
func Mask(named, raw, text string, showLastN int) (string, error) {
	re, err := Compile(named, raw)
	if err != nil {
		return "", err
	}
	return re.ReplaceAllStringFunc(text, func(match string) string {
		return MaskSuffix(match, showLastN)
	}), nil
}

// MaskSuffix masks every rune of x except its last k, preserving x's
// length exactly. Used where a value (an API key in a log line, an
// account number in an audit record) must stay recognizable without
// reproducing it in full. A negative or zero k masks the whole string;
// a k at or beyond len(x) leaves x unchanged.
func MaskSuffix(x string, k int) string {
	runes := []rune(x)
	if k <= 0 {
		return strings.Repeat("*", len(runes))
	}
	if k >= len(runes) {
		return x
	}
	masked := len(runes) - k
	return strings.Repeat("*", masked) + string(runes[masked:])
}
