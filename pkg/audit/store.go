package audit

import (
	"context"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
)

// Filter narrows a Query to a subset of a tenant's records.
type Filter struct {
	TenantID  string
	EventType string
	Category  string
	TargetID  string
	TraceID   string
	StartTime *time.Time
	EndTime   *time.Time
	Offset    int
	Limit     int
}

// Page is one page of a Query result.
type Page struct {
	Records []contracts.AuditRecord
	Total   int
	HasMore bool
}

// RetentionCounts reports how many of a tenant's records fall into each
// retention bucket.
type RetentionCounts struct {
	Total     int
	Archived  int
	Purgeable int
}

// Stats summarizes a tenant's records over a window.
type Stats struct {
	TotalRecords int
	ByCategory   map[string]int
	BySeverity   map[string]int
	ByOutcome    map[string]int
	WindowStart  time.Time
	WindowEnd    time.Time
}

// Store is the persistence contract the Audit Service writes through.
// Implementations MUST serialize AppendRecord per tenant so sequence
// numbers stay strictly monotonic and gap-free.
type Store interface {
	// LastRecord returns the highest-sequence record for tenantID, or
	// ok=false if the tenant has no records yet.
	LastRecord(ctx context.Context, tenantID string) (record contracts.AuditRecord, ok bool, err error)
	// AppendRecord inserts record, which must already carry its computed
	// SequenceNumber, PreviousHash, and RecordHash. Implementations MUST
	// reject insertion under a uniqueness violation on
	// (tenant_id, sequence_number) by returning ErrSequenceConflict so
	// the Service can retry.
	AppendRecord(ctx context.Context, record contracts.AuditRecord) error
	// RecordsInSequence returns tenantID's records ordered ascending by
	// sequence number, starting at startSeq (1 means from the beginning),
	// up to limit records (0 means unlimited).
	RecordsInSequence(ctx context.Context, tenantID string, startSeq uint64, limit int) ([]contracts.AuditRecord, error)
	// Query returns records matching filter plus pagination metadata.
	Query(ctx context.Context, filter Filter) (Page, error)
	// ArchiveBefore marks archived=true, archived_at=now for all
	// unarchived records in tenantID older than cutoff. Returns the
	// number of rows affected.
	ArchiveBefore(ctx context.Context, tenantID string, cutoff time.Time, now time.Time) (int, error)
	// PurgeBefore deletes archived records in tenantID older than
	// cutoff. Never deletes unarchived rows. Returns the number deleted.
	PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int, error)
	// Stats summarizes tenantID's records within [windowStart, windowEnd].
	Stats(ctx context.Context, tenantID string, windowStart, windowEnd time.Time) (Stats, error)
	// RetentionStats reports archive/purge bucket counts for tenantID.
	RetentionStats(ctx context.Context, tenantID string) (RetentionCounts, error)
}

// ErrSequenceConflict is returned by AppendRecord when another writer won
// the race for the next sequence number; the Service retries on this.
type ErrSequenceConflict struct{ TenantID string }

func (e ErrSequenceConflict) Error() string {
	return "audit: sequence conflict for tenant " + e.TenantID
}
