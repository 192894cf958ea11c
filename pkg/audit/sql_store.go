package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
)

// SQLStore is a relational Store backed by database/sql, targeting either
// modernc.org/sqlite (embedded/dev) or lib/pq (production Postgres) per
// the driver registered against db. The schema matches the
// audit_records table spec 6 names.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-opened *sql.DB. Callers select the driver
// (sqlite for single-instance deployments, postgres for multi-instance)
// at Open time; SQLStore issues portable SQL that both accept.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Schema is the DDL for the audit_records table, exposed so callers
// (migrations, tests against an in-memory sqlite DB) can apply it.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_category TEXT NOT NULL,
	severity TEXT NOT NULL,
	actor_type TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_name TEXT,
	actor_ip TEXT,
	target_type TEXT,
	target_id TEXT,
	target_name TEXT,
	request_id TEXT,
	trace_id TEXT,
	span_id TEXT,
	action TEXT NOT NULL,
	outcome TEXT NOT NULL,
	reason TEXT,
	before_state TEXT,
	after_state TEXT,
	diff_state TEXT,
	metadata TEXT,
	tags TEXT,
	sequence_number INTEGER NOT NULL,
	previous_hash TEXT NOT NULL,
	record_hash TEXT NOT NULL,
	event_time TIMESTAMP NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	archived BOOLEAN NOT NULL DEFAULT 0,
	archived_at TIMESTAMP,
	UNIQUE (tenant_id, sequence_number)
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_time ON audit_records (tenant_id, event_time);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_target ON audit_records (tenant_id, target_type, target_id);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_trace ON audit_records (tenant_id, trace_id);
`

func (s *SQLStore) LastRecord(ctx context.Context, tenantID string) (contracts.AuditRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM audit_records WHERE tenant_id = ? ORDER BY sequence_number DESC LIMIT 1`, tenantID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.AuditRecord{}, false, nil
	}
	if err != nil {
		return contracts.AuditRecord{}, false, fmt.Errorf("audit: last record: %w", err)
	}
	return record, true, nil
}

func (s *SQLStore) AppendRecord(ctx context.Context, record contracts.AuditRecord) error {
	before, _ := json.Marshal(record.BeforeState)
	after, _ := json.Marshal(record.AfterState)
	diff, _ := json.Marshal(record.DiffState)
	metadata, _ := json.Marshal(record.Metadata)
	tags, _ := json.Marshal(record.Tags)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, tenant_id, event_type, event_category, severity,
			actor_type, actor_id, actor_name, actor_ip,
			target_type, target_id, target_name,
			request_id, trace_id, span_id,
			action, outcome, reason,
			before_state, after_state, diff_state, metadata, tags,
			sequence_number, previous_hash, record_hash,
			event_time, recorded_at, archived, archived_at
		) VALUES (?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?, ?,?,?, ?,?,?,?,?, ?,?,?, ?,?,?,?)`,
		record.ID, record.TenantID, record.EventType, record.Category, string(record.Severity),
		string(record.Actor.Type), record.Actor.ID, record.Actor.Name, record.Actor.IP,
		targetField(record.Target, func(t contracts.Target) string { return t.Type }),
		targetField(record.Target, func(t contracts.Target) string { return t.ID }),
		targetField(record.Target, func(t contracts.Target) string { return t.Name }),
		record.RequestID, record.TraceID, record.SpanID,
		record.Action, string(record.Outcome), record.Reason,
		string(before), string(after), string(diff), string(metadata), string(tags),
		record.SequenceNumber, record.PreviousHash, record.RecordHash,
		record.EventTime, record.RecordedAt, record.Archived, record.ArchivedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrSequenceConflict{TenantID: record.TenantID}
	}
	if err != nil {
		return fmt.Errorf("audit: append record: %w", err)
	}
	return nil
}

func targetField(t *contracts.Target, get func(contracts.Target) string) any {
	if t == nil {
		return nil
	}
	return get(*t)
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

const selectColumns = `
	id, tenant_id, event_type, event_category, severity,
	actor_type, actor_id, actor_name, actor_ip,
	target_type, target_id, target_name,
	request_id, trace_id, span_id,
	action, outcome, reason,
	before_state, after_state, diff_state, metadata, tags,
	sequence_number, previous_hash, record_hash,
	event_time, recorded_at, archived, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (contracts.AuditRecord, error) {
	var r contracts.AuditRecord
	var severity, outcome string
	var actorType string
	var actorName, actorIP sql.NullString
	var targetType, targetID, targetName sql.NullString
	var requestID, traceID, spanID, reason sql.NullString
	var before, after, diff, metadata, tags sql.NullString
	var archivedAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.TenantID, &r.EventType, &r.Category, &severity,
		&actorType, &r.Actor.ID, &actorName, &actorIP,
		&targetType, &targetID, &targetName,
		&requestID, &traceID, &spanID,
		&r.Action, &outcome, &reason,
		&before, &after, &diff, &metadata, &tags,
		&r.SequenceNumber, &r.PreviousHash, &r.RecordHash,
		&r.EventTime, &r.RecordedAt, &r.Archived, &archivedAt,
	)
	if err != nil {
		return contracts.AuditRecord{}, err
	}

	r.Severity = contracts.Severity(severity)
	r.Outcome = contracts.Outcome(outcome)
	r.Actor.Type = contracts.ActorType(actorType)
	r.Actor.Name = actorName.String
	r.Actor.IP = actorIP.String
	r.RequestID = requestID.String
	r.TraceID = traceID.String
	r.SpanID = spanID.String
	r.Reason = reason.String

	if targetType.Valid {
		r.Target = &contracts.Target{Type: targetType.String, ID: targetID.String, Name: targetName.String}
	}
	if before.Valid {
		_ = json.Unmarshal([]byte(before.String), &r.BeforeState)
	}
	if after.Valid {
		_ = json.Unmarshal([]byte(after.String), &r.AfterState)
	}
	if diff.Valid {
		_ = json.Unmarshal([]byte(diff.String), &r.DiffState)
	}
	if metadata.Valid {
		_ = json.Unmarshal([]byte(metadata.String), &r.Metadata)
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &r.Tags)
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		r.ArchivedAt = &t
	}
	return r, nil
}

func (s *SQLStore) RecordsInSequence(ctx context.Context, tenantID string, startSeq uint64, limit int) ([]contracts.AuditRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_records WHERE tenant_id = ? AND sequence_number >= ? ORDER BY sequence_number ASC`
	args := []any{tenantID, startSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: records in sequence: %w", err)
	}
	defer rows.Close()

	var out []contracts.AuditRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Query(ctx context.Context, filter Filter) (Page, error) {
	where := []string{"tenant_id = ?"}
	args := []any{filter.TenantID}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.Category != "" {
		where = append(where, "event_category = ?")
		args = append(args, filter.Category)
	}
	if filter.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if filter.TraceID != "" {
		where = append(where, "trace_id = ?")
		args = append(args, filter.TraceID)
	}
	if filter.StartTime != nil {
		where = append(where, "event_time >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		where = append(where, "event_time <= ?")
		args = append(args, *filter.EndTime)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records WHERE `+whereClause, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("audit: count query: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns + ` FROM audit_records WHERE ` + whereClause + ` ORDER BY sequence_number DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return Page{}, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var records []contracts.AuditRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return Page{}, err
		}
		records = append(records, r)
	}
	return Page{Records: records, Total: total, HasMore: filter.Offset+len(records) < total}, rows.Err()
}

func (s *SQLStore) ArchiveBefore(ctx context.Context, tenantID string, cutoff time.Time, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE audit_records SET archived = 1, archived_at = ? WHERE tenant_id = ? AND archived = 0 AND event_time < ?`, now, tenantID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: archive: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLStore) PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE tenant_id = ? AND archived = 1 AND event_time < ?`, tenantID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLStore) Stats(ctx context.Context, tenantID string, windowStart, windowEnd time.Time) (Stats, error) {
	stats := Stats{ByCategory: make(map[string]int), BySeverity: make(map[string]int), ByOutcome: make(map[string]int), WindowStart: windowStart, WindowEnd: windowEnd}

	rows, err := s.db.QueryContext(ctx, `SELECT event_category, severity, outcome FROM audit_records WHERE tenant_id = ? AND event_time >= ? AND event_time <= ?`, tenantID, windowStart, windowEnd)
	if err != nil {
		return Stats{}, fmt.Errorf("audit: stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category, severity, outcome string
		if err := rows.Scan(&category, &severity, &outcome); err != nil {
			return Stats{}, err
		}
		stats.TotalRecords++
		stats.ByCategory[category]++
		stats.BySeverity[severity]++
		stats.ByOutcome[outcome]++
	}
	return stats, rows.Err()
}

func (s *SQLStore) RetentionStats(ctx context.Context, tenantID string) (RetentionCounts, error) {
	var counts RetentionCounts
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE archived = 1) FROM audit_records WHERE tenant_id = ?`, tenantID).Scan(&counts.Total, &counts.Archived)
	if err != nil {
		// SQLite lacks FILTER support in some builds; fall back to two scans.
		if err2 := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records WHERE tenant_id = ?`, tenantID).Scan(&counts.Total); err2 != nil {
			return RetentionCounts{}, fmt.Errorf("audit: retention stats: %w", err2)
		}
		if err2 := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records WHERE tenant_id = ? AND archived = 1`, tenantID).Scan(&counts.Archived); err2 != nil {
			return RetentionCounts{}, fmt.Errorf("audit: retention stats: %w", err2)
		}
	}
	counts.Purgeable = counts.Archived
	return counts, nil
}
