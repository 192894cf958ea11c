package artifacts

import (
	"encoding/json"
	"time"
)

// Type definitions for the kinds of payload an ArtifactEnvelope carries
// when the Audit Service archives a batch of records or exports a Merkle
// root for external attestation.
const (
	TypeAuditArchive = "audit/archive-batch"
	TypeMerkleRoot   = "audit/merkle-root"
	TypePolicyBundle = "governance/policy-bundle"
)

// ArtifactEnvelope is the signed wrapper for all archived evidence:
// audit record batches handed to cold storage, and Merkle roots computed
// over a time window for external attestation.
type ArtifactEnvelope struct {
	Type           string          `json:"type"`
	SchemaVersion  string          `json:"schema_version"`
	ProducerID     string          `json:"producer_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
	Signature      string          `json:"signature"`
	SignatureKeyID string          `json:"signature_key_id"`
}
