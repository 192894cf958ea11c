package rules

import "strings"

// undefined is the distinct sentinel value a field-path walk returns when
// the path does not resolve to anything, so Rule operators can tell "field
// was absent" apart from "field was present and nil".
type undefinedType struct{}

var undefined = undefinedType{}

// Context is the evaluation environment a Rule's field path is resolved
// against: the Intent being evaluated, caller-supplied context, and
// environment facts, each addressed by a leading path segment
// ("intent.actor.type", "context.risk_score", "environment.hour_of_day").
type Context map[string]any

// Resolve walks a dot-separated field path through the Context, returning
// undefined if any segment is missing or not a traversable map.
func Resolve(ctx Context, path string) any {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return undefined
	}

	var cur any = map[string]any(ctx)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return undefined
		}
		v, ok := m[seg]
		if !ok {
			return undefined
		}
		cur = v
	}
	return cur
}
