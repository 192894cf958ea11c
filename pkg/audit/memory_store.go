package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
)

// MemoryStore is an in-process Store, used by default wiring and tests.
// One mutex per tenant serializes AppendRecord the way the per-tenant
// head-row lock does in a relational backend, grounded on
// pkg/store.AuditStore's single global mutex generalized to per-tenant.
type MemoryStore struct {
	mu       sync.Mutex
	tenantMu map[string]*sync.Mutex
	records  map[string][]contracts.AuditRecord // tenantID -> ascending by sequence
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenantMu: make(map[string]*sync.Mutex),
		records:  make(map[string][]contracts.AuditRecord),
	}
}

func (s *MemoryStore) lockFor(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tenantMu[tenantID]
	if !ok {
		m = &sync.Mutex{}
		s.tenantMu[tenantID] = m
	}
	return m
}

func (s *MemoryStore) LastRecord(ctx context.Context, tenantID string) (contracts.AuditRecord, bool, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	recs := s.records[tenantID]
	if len(recs) == 0 {
		return contracts.AuditRecord{}, false, nil
	}
	return recs[len(recs)-1], true, nil
}

func (s *MemoryStore) AppendRecord(ctx context.Context, record contracts.AuditRecord) error {
	lock := s.lockFor(record.TenantID)
	lock.Lock()
	defer lock.Unlock()

	recs := s.records[record.TenantID]
	if len(recs) > 0 && recs[len(recs)-1].SequenceNumber >= record.SequenceNumber {
		return ErrSequenceConflict{TenantID: record.TenantID}
	}
	s.records[record.TenantID] = append(recs, record)
	return nil
}

func (s *MemoryStore) RecordsInSequence(ctx context.Context, tenantID string, startSeq uint64, limit int) ([]contracts.AuditRecord, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var out []contracts.AuditRecord
	for _, r := range s.records[tenantID] {
		if r.SequenceNumber < startSeq {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matches(r contracts.AuditRecord, f Filter) bool {
	if f.EventType != "" && r.EventType != f.EventType {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.TargetID != "" && (r.Target == nil || r.Target.ID != f.TargetID) {
		return false
	}
	if f.TraceID != "" && r.TraceID != f.TraceID {
		return false
	}
	if f.StartTime != nil && r.EventTime.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && r.EventTime.After(*f.EndTime) {
		return false
	}
	return true
}

func (s *MemoryStore) Query(ctx context.Context, filter Filter) (Page, error) {
	lock := s.lockFor(filter.TenantID)
	lock.Lock()
	all := append([]contracts.AuditRecord(nil), s.records[filter.TenantID]...)
	lock.Unlock()

	var matched []contracts.AuditRecord
	for _, r := range all {
		if matches(r, filter) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SequenceNumber > matched[j].SequenceNumber })

	total := len(matched)
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	page := matched[offset:end]

	return Page{Records: page, Total: total, HasMore: end < total}, nil
}

func (s *MemoryStore) ArchiveBefore(ctx context.Context, tenantID string, cutoff time.Time, now time.Time) (int, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	count := 0
	recs := s.records[tenantID]
	for i := range recs {
		if !recs[i].Archived && recs[i].EventTime.Before(cutoff) {
			recs[i].Archived = true
			ts := now
			recs[i].ArchivedAt = &ts
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	recs := s.records[tenantID]
	kept := recs[:0]
	purged := 0
	for _, r := range recs {
		if r.Archived && r.EventTime.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	s.records[tenantID] = kept
	return purged, nil
}

func (s *MemoryStore) Stats(ctx context.Context, tenantID string, windowStart, windowEnd time.Time) (Stats, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	stats := Stats{
		ByCategory:  make(map[string]int),
		BySeverity:  make(map[string]int),
		ByOutcome:   make(map[string]int),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
	for _, r := range s.records[tenantID] {
		if r.EventTime.Before(windowStart) || r.EventTime.After(windowEnd) {
			continue
		}
		stats.TotalRecords++
		stats.ByCategory[r.Category]++
		stats.BySeverity[string(r.Severity)]++
		stats.ByOutcome[string(r.Outcome)]++
	}
	return stats, nil
}

func (s *MemoryStore) RetentionStats(ctx context.Context, tenantID string) (RetentionCounts, error) {
	lock := s.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var counts RetentionCounts
	for _, r := range s.records[tenantID] {
		counts.Total++
		if r.Archived {
			counts.Archived++
			counts.Purgeable++
		}
	}
	return counts, nil
}
