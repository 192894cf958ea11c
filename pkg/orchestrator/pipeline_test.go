package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentgov/substrate/pkg/audit"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/escalation"
	"github.com/agentgov/substrate/pkg/governance"
	"github.com/agentgov/substrate/pkg/manifest"
	"github.com/agentgov/substrate/pkg/orchestrator"
	"github.com/agentgov/substrate/pkg/semantic"
	"github.com/agentgov/substrate/pkg/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore wraps a MemoryStore but fails every AppendRecord, modeling
// a durable-storage outage at audit write time.
type failingStore struct {
	*audit.MemoryStore
}

func (f failingStore) AppendRecord(ctx context.Context, record contracts.AuditRecord) error {
	return errors.New("storage unavailable")
}

// stubPolicyProvider serves a fixed Policy and Obligation set regardless
// of tenant.
type stubPolicyProvider struct {
	policies    []contracts.Policy
	obligations []contracts.Obligation
}

func (s stubPolicyProvider) ActivePolicies(tenantID string) []contracts.Policy {
	return s.policies
}

func (s stubPolicyProvider) ActiveObligations(tenantID string) []contracts.Obligation {
	return s.obligations
}

func newSemanticService(t *testing.T, did string, cred contracts.SemanticCredential) *semantic.Service {
	t.Helper()
	lifecycle := trust.NewCredentialLifecycle(24 * time.Hour)
	lifecycle.Issue(did, cred)
	return semantic.New(trust.NewCredentialCache(lifecycle))
}

func newPipeline(t *testing.T, policies []contracts.Policy, semSvc *semantic.Service) (*orchestrator.Pipeline, *audit.MemoryStore) {
	t.Helper()
	engine, err := governance.New(governance.WithDefaultAction(false))
	require.NoError(t, err)

	store := audit.NewMemoryStore()
	auditSvc := audit.New(store)

	pipeline := orchestrator.New(engine, stubPolicyProvider{policies: policies}, nil, semSvc, auditSvc, escalation.NewManager(), orchestrator.Timeouts{
		PreAction:  50 * time.Millisecond,
		PostAction: 50 * time.Millisecond,
	})
	return pipeline, store
}

func cleanInteraction(did string) *semantic.AgentInteraction {
	return &semantic.AgentInteraction{
		Agent:   semantic.AgentIdentity{DID: did, Tier: contracts.TierStandard},
		Message: semantic.InboundMessage{Source: "agent://orchestrator", Authenticated: true},
		Action:  semantic.ActionRequest{Instruction: "summarize the report"},
	}
}

func TestEvaluate_AllowsWhenNoPolicyMatchesAndSemanticPasses(t *testing.T) {
	semSvc := newSemanticService(t, "did:example:agent-1", contracts.SemanticCredential{
		InstructionIntegrity: contracts.InstructionIntegrityCredential{
			AllowedHashes: []string{semantic.HashInstruction("summarize the report")},
		},
	})
	pipeline, store := newPipeline(t, nil, semSvc)

	intent := contracts.Intent{
		ID:         "intent-1",
		TenantID:   "tenant-a",
		Actor:      contracts.Actor{ID: "did:example:agent-1", Type: contracts.ActorAgent},
		IntentType: "summarize",
	}

	result, err := pipeline.Evaluate(context.Background(), intent, nil, nil, cleanInteraction("did:example:agent-1"))
	require.NoError(t, err)
	assert.True(t, result.SemanticValid)
	assert.Equal(t, contracts.ActionAllow, result.Decision.Action)
	assert.Nil(t, result.Escalation)

	page, err := store.Query(context.Background(), audit.Filter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, contracts.OutcomeSuccess, page.Records[0].Outcome)
}

func TestEvaluate_DeniesOnFailedSemanticCheckWithoutCallingEngine(t *testing.T) {
	semSvc := newSemanticService(t, "did:example:agent-1", contracts.SemanticCredential{})
	pipeline, store := newPipeline(t, nil, semSvc)

	intent := contracts.Intent{
		ID:         "intent-2",
		TenantID:   "tenant-a",
		Actor:      contracts.Actor{ID: "did:example:agent-1", Type: contracts.ActorAgent},
		IntentType: "summarize",
	}

	interaction := cleanInteraction("did:example:agent-1")
	interaction.Action.Instruction = "do something never seen before"

	result, err := pipeline.Evaluate(context.Background(), intent, nil, nil, interaction)
	require.NoError(t, err)
	assert.False(t, result.SemanticValid)
	assert.Equal(t, contracts.ActionDeny, result.Decision.Action)
	require.NotNil(t, result.SemanticFail)

	page, err := store.Query(context.Background(), audit.Filter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, contracts.OutcomeFailure, page.Records[0].Outcome)
}

func TestEvaluate_DenyPolicyOverridesAllowAndCreatesNoEscalation(t *testing.T) {
	semSvc := newSemanticService(t, "did:example:agent-1", contracts.SemanticCredential{
		InstructionIntegrity: contracts.InstructionIntegrityCredential{
			AllowedHashes: []string{semantic.HashInstruction("summarize the report")},
		},
	})
	denyPolicy := contracts.Policy{
		ID:       "bundle-1/no-dangerous-tools",
		Priority: 1,
		Effect:   contracts.EffectDeny,
		Enabled:  true,
		Rules:    contracts.RuleGroup{Logic: contracts.LogicAnd},
	}
	allowPolicy := contracts.Policy{
		ID:       "bundle-1/allow-all",
		Priority: 10,
		Effect:   contracts.EffectAllow,
		Enabled:  true,
		Rules:    contracts.RuleGroup{Logic: contracts.LogicAnd},
	}
	pipeline, store := newPipeline(t, []contracts.Policy{denyPolicy, allowPolicy}, semSvc)

	intent := contracts.Intent{
		ID:         "intent-3",
		TenantID:   "tenant-a",
		Actor:      contracts.Actor{ID: "did:example:agent-1", Type: contracts.ActorAgent},
		IntentType: "summarize",
	}

	result, err := pipeline.Evaluate(context.Background(), intent, nil, nil, cleanInteraction("did:example:agent-1"))
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionDeny, result.Decision.Action)
	assert.Nil(t, result.Escalation)

	page, err := store.Query(context.Background(), audit.Filter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "intent.denied", page.Records[0].EventType)
}

func TestFinalizeAction_AuditsPostActionOutcome(t *testing.T) {
	semSvc := newSemanticService(t, "did:example:agent-1", contracts.SemanticCredential{})
	pipeline, store := newPipeline(t, nil, semSvc)

	intent := contracts.Intent{
		ID:         "intent-4",
		TenantID:   "tenant-a",
		Actor:      contracts.Actor{ID: "did:example:agent-1", Type: contracts.ActorAgent},
		IntentType: "summarize",
	}
	interaction := semantic.AgentInteraction{
		Agent:  semantic.AgentIdentity{DID: "did:example:agent-1"},
		Record: semantic.ActionRecord{Output: "a harmless summary"},
	}

	_, err := pipeline.FinalizeAction(context.Background(), intent, interaction, contracts.OutcomeSuccess)
	require.NoError(t, err)

	page, err := store.Query(context.Background(), audit.Filter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "intent.allowed", page.Records[0].EventType)
}

func TestEvaluate_AuditWriteFailureIsFatalAndRetryable(t *testing.T) {
	semSvc := newSemanticService(t, "did:example:agent-1", contracts.SemanticCredential{
		InstructionIntegrity: contracts.InstructionIntegrityCredential{
			AllowedHashes: []string{semantic.HashInstruction("summarize the report")},
		},
	})
	engine, err := governance.New(governance.WithDefaultAction(false))
	require.NoError(t, err)

	auditSvc := audit.New(failingStore{audit.NewMemoryStore()})
	pipeline := orchestrator.New(engine, stubPolicyProvider{}, nil, semSvc, auditSvc, escalation.NewManager(), orchestrator.Timeouts{
		PreAction:  50 * time.Millisecond,
		PostAction: 50 * time.Millisecond,
	})

	intent := contracts.Intent{
		ID:         "intent-6",
		TenantID:   "tenant-a",
		Actor:      contracts.Actor{ID: "did:example:agent-1", Type: contracts.ActorAgent},
		IntentType: "summarize",
	}

	_, err = pipeline.Evaluate(context.Background(), intent, nil, nil, cleanInteraction("did:example:agent-1"))
	require.Error(t, err)

	var decErr *contracts.DecisionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, contracts.ErrTransientStorage, decErr.Kind)
	assert.Equal(t, "audit_write_failed", decErr.Code)
	assert.True(t, decErr.Retryable)
}

func TestEvaluate_RejectsToolArgsFailingRegisteredSchema(t *testing.T) {
	semSvc := newSemanticService(t, "did:example:agent-1", contracts.SemanticCredential{
		InstructionIntegrity: contracts.InstructionIntegrityCredential{
			AllowedHashes: []string{semantic.HashInstruction("summarize the report")},
		},
	})
	pipeline, store := newPipeline(t, nil, semSvc)
	pipeline.WithToolArgSchema("send_email", &manifest.ToolArgSchema{
		Fields: map[string]manifest.FieldSpec{
			"to": {Type: "string", Required: true},
		},
	})

	intent := contracts.Intent{
		ID:         "intent-5",
		TenantID:   "tenant-a",
		Actor:      contracts.Actor{ID: "did:example:agent-1", Type: contracts.ActorAgent},
		IntentType: "send_email",
		Tools:      []string{"send_email"},
		Context:    map[string]any{"subject": "hi"},
	}

	result, err := pipeline.Evaluate(context.Background(), intent, nil, nil, cleanInteraction("did:example:agent-1"))
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionDeny, result.Decision.Action)
	assert.Equal(t, "tool_args_rejected", result.Decision.DenialCode)

	page, err := store.Query(context.Background(), audit.Filter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "intent.denied", page.Records[0].EventType)
}
