package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentgov/substrate/pkg/artifacts"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/crypto"
	"github.com/agentgov/substrate/pkg/merkle"
)

// ArchiveBatchPayload is the JSON payload of an audit/archive-batch
// artifact: a signed, content-addressed snapshot of a contiguous run of
// a tenant's records, produced when records are archived so the rows can
// later be purged from primary storage without losing their evidentiary
// value.
type ArchiveBatchPayload struct {
	TenantID    string                  `json:"tenant_id"`
	FirstSeq    uint64                  `json:"first_sequence_number"`
	LastSeq     uint64                  `json:"last_sequence_number"`
	MerkleRoot  string                  `json:"merkle_root"`
	RecordCount int                     `json:"record_count"`
	Records     []contracts.AuditRecord `json:"records"`
	ExportedAt  time.Time               `json:"exported_at"`
}

// Exporter produces signed archive artifacts from a Service's records,
// replacing on-disk zip evidence packs with content-addressed,
// Merkle-rooted envelopes stored through pkg/artifacts.
type Exporter struct {
	service  *Service
	registry *artifacts.Registry
	signer   crypto.Signer
}

// NewExporter builds an Exporter that reads through service and writes
// signed envelopes through registry using signer.
func NewExporter(service *Service, registry *artifacts.Registry, signer crypto.Signer) *Exporter {
	return &Exporter{service: service, registry: registry, signer: signer}
}

// ExportRange builds, signs, and stores an archive-batch artifact
// covering tenantID's records in [startSeq, startSeq+limit), or every
// record from startSeq on when limit is zero or negative. It does not
// itself mark the records archived; callers run ArchiveOldRecords
// separately once the artifact is durably stored.
func (e *Exporter) ExportRange(ctx context.Context, tenantID string, startSeq uint64, limit int) (string, error) {
	records, err := e.service.store.RecordsInSequence(ctx, tenantID, startSeq, limit)
	if err != nil {
		return "", fmt.Errorf("audit: export range: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("audit: export range: no records for tenant %s from sequence %d", tenantID, startSeq)
	}

	leaves := make(map[string]interface{}, len(records))
	for _, r := range records {
		leaves[fmt.Sprintf("%020d", r.SequenceNumber)] = r
	}
	tree, err := merkle.BuildMerkleTree(leaves)
	if err != nil {
		return "", fmt.Errorf("audit: export range: build merkle tree: %w", err)
	}

	payload := ArchiveBatchPayload{
		TenantID:    tenantID,
		FirstSeq:    records[0].SequenceNumber,
		LastSeq:     records[len(records)-1].SequenceNumber,
		MerkleRoot:  tree.Root,
		RecordCount: len(records),
		Records:     records,
		ExportedAt:  e.service.clock(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: export range: marshal payload: %w", err)
	}

	envelope := &artifacts.ArtifactEnvelope{
		Type:          artifacts.TypeAuditArchive,
		SchemaVersion: "1.0",
		ProducerID:    "audit-service",
		Timestamp:     payload.ExportedAt,
		Payload:       payloadBytes,
	}
	if err := artifacts.SignEnvelope(envelope, e.signer); err != nil {
		return "", fmt.Errorf("audit: export range: sign envelope: %w", err)
	}

	hash, err := e.registry.PutArtifact(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("audit: export range: store envelope: %w", err)
	}
	return hash, nil
}
