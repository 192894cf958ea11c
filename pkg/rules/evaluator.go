// Package rules implements the Rule Evaluator: a recursive AND/OR tree of
// typed field comparisons evaluated against an Intent/context/environment
// snapshot, producing a pass/fail verdict plus a per-rule audit trace.
package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
)

// BuildContext assembles the evaluation Context from an Intent, caller
// context, and environment facts. The Intent is round-tripped through JSON
// so its fields are addressable the same way as the freeform context and
// environment maps.
func BuildContext(intent contracts.Intent, callerContext, environment map[string]any) (Context, error) {
	buf, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("rules: marshal intent: %w", err)
	}
	var intentMap map[string]any
	if err := json.Unmarshal(buf, &intentMap); err != nil {
		return nil, fmt.Errorf("rules: unmarshal intent: %w", err)
	}

	return Context{
		"intent":      intentMap,
		"context":     callerContext,
		"environment": environment,
	}, nil
}

// Evaluate walks a RuleGroup tree against ctx, short-circuiting AND groups
// on the first failing rule and OR groups on the first passing one. It
// always returns the full per-rule trace collected up to the short-circuit
// point, for audit visibility into why a policy did or did not match.
func Evaluate(ctx Context, group contracts.RuleGroup) (bool, []contracts.MatchedRule) {
	var trace []contracts.MatchedRule

	results := make([]bool, 0, len(group.Rules)+len(group.Children))

	for _, r := range group.Rules {
		matched, mr := evaluateRule(ctx, r)
		trace = append(trace, mr)
		results = append(results, matched)
		if shortCircuits(group.Logic, matched) {
			return matched, trace
		}
	}

	for _, child := range group.Children {
		matched, childTrace := Evaluate(ctx, child)
		trace = append(trace, childTrace...)
		results = append(results, matched)
		if shortCircuits(group.Logic, matched) {
			return matched, trace
		}
	}

	return combine(group.Logic, results), trace
}

func shortCircuits(logic contracts.GroupLogic, result bool) bool {
	if logic == contracts.LogicOr && result {
		return true
	}
	if logic == contracts.LogicAnd && !result {
		return true
	}
	return false
}

func combine(logic contracts.GroupLogic, results []bool) bool {
	if len(results) == 0 {
		// An empty rule group matches vacuously, mirroring the teacher's
		// "empty set = pass" convention.
		return true
	}
	for _, r := range results {
		if logic == contracts.LogicAnd && !r {
			return false
		}
		if logic == contracts.LogicOr && r {
			return true
		}
	}
	return logic == contracts.LogicAnd
}

func evaluateRule(ctx Context, r contracts.Rule) (bool, contracts.MatchedRule) {
	start := time.Now()
	mr := contracts.MatchedRule{
		Field:    r.Field,
		Operator: string(r.Operator),
		Expected: r.Value,
	}

	actual := Resolve(ctx, r.Field)
	mr.Actual = normalizeForTrace(actual)

	matched, err := apply(r.Operator, actual, r.Value)
	if err != nil {
		mr.Error = err.Error()
	}
	mr.Matched = matched
	mr.DurationMs = time.Since(start).Milliseconds()
	return matched, mr
}

func normalizeForTrace(v any) any {
	if v == undefined {
		return nil
	}
	return v
}

func apply(op contracts.RuleOperator, actual, expected any) (bool, error) {
	if actual == undefined {
		// An undefined field never satisfies a positive comparison, but it
		// does satisfy "ne" against any expected value, matching the
		// intuition that "absent" is always different from "present".
		return op == contracts.OpNe, nil
	}

	switch op {
	case contracts.OpEq:
		return reflect.DeepEqual(normalize(actual), normalize(expected)), nil
	case contracts.OpNe:
		return !reflect.DeepEqual(normalize(actual), normalize(expected)), nil
	case contracts.OpGt, contracts.OpLt, contracts.OpGte, contracts.OpLte:
		return compareNumeric(op, actual, expected)
	case contracts.OpIn:
		return contains(expected, actual)
	case contracts.OpContains:
		return contains(actual, expected)
	case contracts.OpMatches:
		pattern, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("rules: matches operator requires a string pattern")
		}
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("rules: matches operator requires a string field value")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("rules: invalid pattern %q: %w", pattern, err)
		}
		return re.MatchString(s), nil
	default:
		return false, fmt.Errorf("rules: unknown operator %q", op)
	}
}

// normalize collapses JSON's float64-for-everything numeric representation
// so values that originated as an int in Go and a number in JSON compare
// equal.
func normalize(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareNumeric(op contracts.RuleOperator, actual, expected any) (bool, error) {
	a, ok1 := toFloat(actual)
	b, ok2 := toFloat(expected)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("rules: %s operator requires numeric operands", op)
	}
	switch op {
	case contracts.OpGt:
		return a > b, nil
	case contracts.OpLt:
		return a < b, nil
	case contracts.OpGte:
		return a >= b, nil
	case contracts.OpLte:
		return a <= b, nil
	}
	return false, fmt.Errorf("rules: unreachable operator %q", op)
}

// contains reports whether needle appears in haystack, where haystack may
// be a slice/array (membership) or a string (substring).
func contains(haystack, needle any) (bool, error) {
	if s, ok := haystack.(string); ok {
		sub, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("rules: contains on a string field requires a string value")
		}
		return regexp.MustCompile(regexp.QuoteMeta(sub)).MatchString(s), nil
	}

	rv := reflect.ValueOf(haystack)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, fmt.Errorf("rules: contains/in requires a list or string, got %T", haystack)
	}
	for i := 0; i < rv.Len(); i++ {
		if reflect.DeepEqual(normalize(rv.Index(i).Interface()), normalize(needle)) {
			return true, nil
		}
	}
	return false, nil
}
