package rules_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxFor(t *testing.T, intent contracts.Intent, extra, env map[string]any) rules.Context {
	t.Helper()
	ctx, err := rules.BuildContext(intent, extra, env)
	require.NoError(t, err)
	return ctx
}

func TestEvaluate_SimpleEq(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, nil, nil)

	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "intent.intent_type", Operator: contracts.OpEq, Value: "tool_call"},
		},
	}
	matched, trace := rules.Evaluate(ctx, group)
	assert.True(t, matched)
	require.Len(t, trace, 1)
	assert.True(t, trace[0].Matched)
}

func TestEvaluate_AndShortCircuits(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, map[string]any{"risk_score": 10}, nil)

	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "intent.intent_type", Operator: contracts.OpEq, Value: "other"},
			{Field: "context.risk_score", Operator: contracts.OpGt, Value: 5},
		},
	}
	matched, trace := rules.Evaluate(ctx, group)
	assert.False(t, matched)
	assert.Len(t, trace, 1, "AND should short-circuit after the first failing rule")
}

func TestEvaluate_OrShortCircuits(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, nil, nil)

	group := contracts.RuleGroup{
		Logic: contracts.LogicOr,
		Rules: []contracts.Rule{
			{Field: "intent.intent_type", Operator: contracts.OpEq, Value: "tool_call"},
			{Field: "intent.intent_type", Operator: contracts.OpEq, Value: "never_checked"},
		},
	}
	matched, trace := rules.Evaluate(ctx, group)
	assert.True(t, matched)
	assert.Len(t, trace, 1, "OR should short-circuit after the first passing rule")
}

func TestEvaluate_NestedGroups(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, map[string]any{"risk_score": 80}, nil)

	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "intent.intent_type", Operator: contracts.OpEq, Value: "tool_call"},
		},
		Children: []contracts.RuleGroup{
			{
				Logic: contracts.LogicOr,
				Rules: []contracts.Rule{
					{Field: "context.risk_score", Operator: contracts.OpGte, Value: 90},
					{Field: "context.risk_score", Operator: contracts.OpGte, Value: 50},
				},
			},
		},
	}
	matched, _ := rules.Evaluate(ctx, group)
	assert.True(t, matched)
}

func TestEvaluate_UndefinedField(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, nil, nil)

	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "context.missing_field", Operator: contracts.OpEq, Value: "x"},
		},
	}
	matched, trace := rules.Evaluate(ctx, group)
	assert.False(t, matched)
	assert.Nil(t, trace[0].Actual)
}

func TestEvaluate_UndefinedFieldSatisfiesNe(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, nil, nil)

	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "context.missing_field", Operator: contracts.OpNe, Value: "x"},
		},
	}
	matched, _ := rules.Evaluate(ctx, group)
	assert.True(t, matched)
}

func TestEvaluate_In(t *testing.T) {
	intent := contracts.Intent{IntentType: "tool_call"}
	ctx := ctxFor(t, intent, map[string]any{"region": "us-east"}, nil)
	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "context.region", Operator: contracts.OpIn, Value: []any{"us-east", "us-west"}},
		},
	}
	matched, _ := rules.Evaluate(ctx, group)
	assert.True(t, matched)
}

func TestEvaluate_Matches(t *testing.T) {
	intent := contracts.Intent{Goal: "deploy to production cluster"}
	ctx := ctxFor(t, intent, nil, nil)
	group := contracts.RuleGroup{
		Logic: contracts.LogicAnd,
		Rules: []contracts.Rule{
			{Field: "intent.goal", Operator: contracts.OpMatches, Value: "^deploy"},
		},
	}
	matched, _ := rules.Evaluate(ctx, group)
	assert.True(t, matched)
}

func TestEvaluate_EmptyGroupVacuouslyMatches(t *testing.T) {
	intent := contracts.Intent{}
	ctx := ctxFor(t, intent, nil, nil)
	matched, trace := rules.Evaluate(ctx, contracts.RuleGroup{Logic: contracts.LogicAnd})
	assert.True(t, matched)
	assert.Empty(t, trace)
}
