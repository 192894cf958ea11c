package audit

import (
	"context"
	"testing"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendRecordEnforcesMonotonicSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t1", SequenceNumber: 1, RecordHash: "h1"}))
	require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t1", SequenceNumber: 2, RecordHash: "h2"}))

	err := store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t1", SequenceNumber: 2, RecordHash: "h2b"})
	assert.ErrorAs(t, err, &ErrSequenceConflict{})

	last, ok, err := store.LastRecord(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), last.SequenceNumber)
}

func TestMemoryStore_TenantsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t1", SequenceNumber: 1, RecordHash: "h1"}))
	require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t2", SequenceNumber: 1, RecordHash: "h1"}))

	_, ok, err := store.LastRecord(ctx, "unknown-tenant")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_QueryFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{
			TenantID:       "t1",
			SequenceNumber: i,
			RecordHash:     "h",
			EventType:      "intent.allowed",
			EventTime:      now.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := store.Query(ctx, Filter{TenantID: "t1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Records, 2)
	assert.True(t, page.HasMore)
	// newest first
	assert.Equal(t, uint64(5), page.Records[0].SequenceNumber)
}

func TestMemoryStore_ArchiveThenPurge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t1", SequenceNumber: 1, RecordHash: "h1", EventTime: old}))
	require.NoError(t, store.AppendRecord(ctx, contracts.AuditRecord{TenantID: "t1", SequenceNumber: 2, RecordHash: "h2", EventTime: time.Now()}))

	cutoff := time.Now().Add(-24 * time.Hour)
	archived, err := store.ArchiveBefore(ctx, "t1", cutoff, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	purged, err := store.PurgeBefore(ctx, "t1", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	counts, err := store.RetentionStats(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 0, counts.Archived)
}
