package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentgov/substrate/pkg/contracts"
)

// maxSequenceRetries bounds how many times Record retries after losing a
// race for the next sequence number before giving up.
const maxSequenceRetries = 5

// RecordInput carries the caller-supplied fields of a new audit record;
// Service derives TenantID's sequence number, previous hash, and record
// hash before handing it to the Store.
type RecordInput struct {
	TenantID    string
	EventType   string
	Actor       contracts.Actor
	Target      *contracts.Target
	Action      string
	Outcome     contracts.Outcome
	Reason      string
	BeforeState map[string]any
	AfterState  map[string]any
	DiffState   map[string]any
	Metadata    map[string]any
	Tags        []string
	RequestID   string
	TraceID     string
	SpanID      string
	EventTime   time.Time // zero means now
}

// ChainVerification is the result of walking a tenant's hash chain.
type ChainVerification struct {
	Valid          bool
	RecordsChecked int
	FirstRecord    *contracts.AuditRecord
	LastRecord     *contracts.AuditRecord
	BrokenAt       *uint64
	Error          string
}

// CleanupInput configures a retention sweep.
type CleanupInput struct {
	TenantID         string
	ArchiveAfterDays int
	RetentionDays    int
}

// CleanupResult reports how many rows a sweep touched, and any errors
// encountered in either phase (archive failures don't block purge).
type CleanupResult struct {
	Archived int
	Purged   int
	Errors   []error
}

// Service is the Audit Service of spec 4.8: it derives sequence numbers
// and hash-chain links, appends through a Store, and exposes query,
// chain-verification, and retention operations. Grounded on
// pkg/store.AuditStore's Append/VerifyChain shape, generalized to a
// pluggable Store and per-tenant chains.
type Service struct {
	store Store
	clock func() time.Time
}

// New constructs a Service over store.
func New(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// WithClock overrides the service's time source, for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Record appends a new audit record for input, deriving sequence_number
// and previous_hash from the tenant's current chain head and computing
// record_hash over the canonical hashable field set. On a sequence
// conflict from a concurrent writer it re-reads the head and retries,
// bounded by maxSequenceRetries.
func (s *Service) Record(ctx context.Context, input RecordInput) (contracts.AuditRecord, error) {
	category, severity := classify(input.EventType)
	eventTime := input.EventTime
	if eventTime.IsZero() {
		eventTime = s.clock()
	}

	var lastErr error
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		last, ok, err := s.store.LastRecord(ctx, input.TenantID)
		if err != nil {
			return contracts.AuditRecord{}, fmt.Errorf("audit: read chain head: %w", err)
		}

		var seq uint64 = 1
		var prevHash string
		if ok {
			seq = last.SequenceNumber + 1
			prevHash = last.RecordHash
		}

		record := contracts.AuditRecord{
			ID:             uuid.New().String(),
			TenantID:       input.TenantID,
			EventType:      input.EventType,
			Category:       category,
			Severity:       severity,
			Actor:          input.Actor,
			Target:         input.Target,
			Action:         input.Action,
			Outcome:        input.Outcome,
			Reason:         input.Reason,
			BeforeState:    input.BeforeState,
			AfterState:     input.AfterState,
			DiffState:      input.DiffState,
			Metadata:       input.Metadata,
			Tags:           input.Tags,
			RequestID:      input.RequestID,
			TraceID:        input.TraceID,
			SpanID:         input.SpanID,
			SequenceNumber: seq,
			PreviousHash:   prevHash,
			EventTime:      eventTime,
			RecordedAt:     s.clock(),
		}

		hash, err := recordHash(record)
		if err != nil {
			return contracts.AuditRecord{}, fmt.Errorf("audit: compute record hash: %w", err)
		}
		record.RecordHash = hash

		if err := s.store.AppendRecord(ctx, record); err != nil {
			if _, conflict := err.(ErrSequenceConflict); conflict {
				lastErr = err
				continue
			}
			return contracts.AuditRecord{}, fmt.Errorf("audit: append record: %w", err)
		}
		return record, nil
	}
	return contracts.AuditRecord{}, fmt.Errorf("audit: exceeded %d sequence retries for tenant %s: %w", maxSequenceRetries, input.TenantID, lastErr)
}

// Query returns a page of tenant records matching filter.
func (s *Service) Query(ctx context.Context, filter Filter) (Page, error) {
	return s.store.Query(ctx, filter)
}

// GetForTarget returns records referencing the given target, newest first.
func (s *Service) GetForTarget(ctx context.Context, tenantID, targetID string, limit int) (Page, error) {
	return s.store.Query(ctx, Filter{TenantID: tenantID, TargetID: targetID, Limit: limit})
}

// GetByTrace returns records sharing a trace ID, newest first.
func (s *Service) GetByTrace(ctx context.Context, tenantID, traceID string, limit int) (Page, error) {
	return s.store.Query(ctx, Filter{TenantID: tenantID, TraceID: traceID, Limit: limit})
}

// VerifyChainIntegrity walks tenantID's records in sequence starting at
// startSeq (1 for the whole chain), checking that each record's
// previous_hash matches the prior record's record_hash and that each
// record's stored record_hash still matches a recomputation over its
// hashable fields. It stops at the first break.
func (s *Service) VerifyChainIntegrity(ctx context.Context, tenantID string, startSeq uint64, limit int) (ChainVerification, error) {
	if startSeq == 0 {
		startSeq = 1
	}
	records, err := s.store.RecordsInSequence(ctx, tenantID, startSeq, limit)
	if err != nil {
		return ChainVerification{}, fmt.Errorf("audit: load chain: %w", err)
	}
	if len(records) == 0 {
		return ChainVerification{Valid: true}, nil
	}

	result := ChainVerification{Valid: true, FirstRecord: &records[0]}
	expectedPrev := records[0].PreviousHash
	if startSeq > 1 {
		prior, err := s.store.RecordsInSequence(ctx, tenantID, startSeq-1, 1)
		if err == nil && len(prior) == 1 {
			expectedPrev = prior[0].RecordHash
		}
	}

	for i := range records {
		r := records[i]
		result.RecordsChecked++
		result.LastRecord = &records[i]

		if i > 0 && r.PreviousHash != expectedPrev {
			seq := r.SequenceNumber
			result.Valid = false
			result.BrokenAt = &seq
			result.Error = "previous_hash does not match the prior record's record_hash"
			return result, nil
		}
		if i == 0 && startSeq > 1 && r.PreviousHash != expectedPrev {
			seq := r.SequenceNumber
			result.Valid = false
			result.BrokenAt = &seq
			result.Error = "previous_hash does not match the prior record's record_hash"
			return result, nil
		}

		recomputed, err := recordHash(r)
		if err != nil {
			return ChainVerification{}, fmt.Errorf("audit: recompute hash for sequence %d: %w", r.SequenceNumber, err)
		}
		if recomputed != r.RecordHash {
			seq := r.SequenceNumber
			result.Valid = false
			result.BrokenAt = &seq
			result.Error = "record_hash does not match recomputed hash of record contents"
			return result, nil
		}

		expectedPrev = r.RecordHash
	}
	return result, nil
}

// ArchiveOldRecords marks records older than olderThanDays as archived.
func (s *Service) ArchiveOldRecords(ctx context.Context, tenantID string, olderThanDays int) (int, error) {
	cutoff := s.clock().AddDate(0, 0, -olderThanDays)
	return s.store.ArchiveBefore(ctx, tenantID, cutoff, s.clock())
}

// PurgeOldRecords deletes already-archived records older than
// olderThanDays. It never deletes a record that has not first been
// archived, so purging can never outrun archival.
func (s *Service) PurgeOldRecords(ctx context.Context, tenantID string, olderThanDays int) (int, error) {
	cutoff := s.clock().AddDate(0, 0, -olderThanDays)
	return s.store.PurgeBefore(ctx, tenantID, cutoff)
}

// RunCleanup runs the archive phase followed by the purge phase for
// input.TenantID. A failure in one phase does not prevent the other from
// running; both errors, if any, are collected onto the result.
func (s *Service) RunCleanup(ctx context.Context, input CleanupInput) CleanupResult {
	var result CleanupResult

	archived, err := s.ArchiveOldRecords(ctx, input.TenantID, input.ArchiveAfterDays)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("archive: %w", err))
	}
	result.Archived = archived

	purged, err := s.PurgeOldRecords(ctx, input.TenantID, input.RetentionDays)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("purge: %w", err))
	}
	result.Purged = purged

	return result
}

// GetStats summarizes tenantID's records within [windowStart, windowEnd].
func (s *Service) GetStats(ctx context.Context, tenantID string, windowStart, windowEnd time.Time) (Stats, error) {
	return s.store.Stats(ctx, tenantID, windowStart, windowEnd)
}

// GetRetentionStats reports tenantID's archive/purge bucket counts.
func (s *Service) GetRetentionStats(ctx context.Context, tenantID string) (RetentionCounts, error) {
	return s.store.RetentionStats(ctx, tenantID)
}
