package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentgov/substrate/pkg/audit"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServiceAt(t *testing.T, now time.Time) *audit.Service {
	t.Helper()
	store := audit.NewMemoryStore()
	return audit.New(store).WithClock(func() time.Time { return now })
}

func TestService_RecordChainsSequentially(t *testing.T) {
	ctx := context.Background()
	svc := newServiceAt(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	r1, err := svc.Record(ctx, audit.RecordInput{
		TenantID:  "tenant-a",
		EventType: "intent.allowed",
		Actor:     contracts.Actor{Type: contracts.ActorAgent, ID: "agent-1"},
		Action:    "read_file",
		Outcome:   contracts.OutcomeSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.SequenceNumber)
	assert.Empty(t, r1.PreviousHash)
	assert.NotEmpty(t, r1.RecordHash)
	assert.Equal(t, "governance", r1.Category)

	r2, err := svc.Record(ctx, audit.RecordInput{
		TenantID:  "tenant-a",
		EventType: "intent.denied",
		Actor:     contracts.Actor{Type: contracts.ActorAgent, ID: "agent-1"},
		Action:    "delete_file",
		Outcome:   contracts.OutcomeFailure,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.SequenceNumber)
	assert.Equal(t, r1.RecordHash, r2.PreviousHash)
}

func TestService_RecordIsIndependentAcrossTenants(t *testing.T) {
	ctx := context.Background()
	svc := newServiceAt(t, time.Now())

	a, err := svc.Record(ctx, audit.RecordInput{TenantID: "tenant-a", EventType: "intent.allowed", Action: "x", Outcome: contracts.OutcomeSuccess})
	require.NoError(t, err)
	b, err := svc.Record(ctx, audit.RecordInput{TenantID: "tenant-b", EventType: "intent.allowed", Action: "x", Outcome: contracts.OutcomeSuccess})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.SequenceNumber)
	assert.Equal(t, uint64(1), b.SequenceNumber)
}

func TestService_VerifyChainIntegrityDetectsTamperedHash(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	svc := audit.New(store)

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, audit.RecordInput{
			TenantID:  "tenant-a",
			EventType: "intent.allowed",
			Action:    "read_file",
			Outcome:   contracts.OutcomeSuccess,
		})
		require.NoError(t, err)
	}

	result, err := svc.VerifyChainIntegrity(ctx, "tenant-a", 1, 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.RecordsChecked)

	// A freshly appended record with the same sequence-and-hash shape but
	// mutated content, in an otherwise-empty chain, lets VerifyChainIntegrity
	// catch a record_hash that no longer matches its own content.
	tamperedStore := audit.NewMemoryStore()
	require.NoError(t, tamperedStore.AppendRecord(ctx, contracts.AuditRecord{
		TenantID:       "tenant-a",
		EventType:      "intent.allowed",
		Action:         "delete_everything",
		Outcome:        contracts.OutcomeSuccess,
		SequenceNumber: 1,
		RecordHash:     "0000000000000000000000000000000000000000000000000000000000000000",
	}))
	tamperedSvc := audit.New(tamperedStore)

	result, err = tamperedSvc.VerifyChainIntegrity(ctx, "tenant-a", 1, 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotNil(t, result.BrokenAt)
}

func TestService_RunCleanupArchivesThenPurges(t *testing.T) {
	ctx := context.Background()
	old := time.Now().Add(-90 * 24 * time.Hour)
	store := audit.NewMemoryStore()
	writer := audit.New(store).WithClock(func() time.Time { return old })

	_, err := writer.Record(ctx, audit.RecordInput{TenantID: "tenant-a", EventType: "intent.allowed", Action: "x", Outcome: contracts.OutcomeSuccess, EventTime: old})
	require.NoError(t, err)

	now := time.Now()
	svc := audit.New(store).WithClock(func() time.Time { return now })

	result := svc.RunCleanup(ctx, audit.CleanupInput{TenantID: "tenant-a", ArchiveAfterDays: 30, RetentionDays: 60})
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, 1, result.Purged)

	counts, err := svc.GetRetentionStats(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Total)
}
