package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/crypto"
)

// hashPayload is the exact field set spec 4.8 step 3 hashes: alphabetical
// JSON keys over tenantId, eventType, actor, target, action, outcome,
// sequenceNumber, previousHash, eventTime. Struct field order is
// irrelevant; crypto.CanonicalMarshal sorts object members by code point
// regardless.
type hashPayload struct {
	Action         string            `json:"action"`
	Actor          contracts.Actor   `json:"actor"`
	EventTime      time.Time         `json:"eventTime"`
	EventType      string            `json:"eventType"`
	Outcome        contracts.Outcome `json:"outcome"`
	PreviousHash   string            `json:"previousHash"`
	SequenceNumber uint64            `json:"sequenceNumber"`
	Target         *contracts.Target `json:"target"`
	TenantID       string            `json:"tenantId"`
}

// recordHash computes record.RecordHash per spec 4.8 step 3: sha256 of
// the canonical JSON form of the fixed hashable field set, lowercase hex.
func recordHash(record contracts.AuditRecord) (string, error) {
	payload := hashPayload{
		TenantID:       record.TenantID,
		EventType:      record.EventType,
		Actor:          record.Actor,
		Target:         record.Target,
		Action:         record.Action,
		Outcome:        record.Outcome,
		SequenceNumber: record.SequenceNumber,
		PreviousHash:   record.PreviousHash,
		EventTime:      record.EventTime,
	}
	canon, err := crypto.CanonicalMarshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
