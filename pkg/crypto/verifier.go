package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/agentgov/substrate/pkg/contracts"
)

// Verifier checks signatures given only a public key, for callers (e.g. an
// external auditor or a replay tool) that never hold the private key.
type Verifier interface {
	Verify(message, signature []byte) bool
	VerifyDecision(d *contracts.Decision, signature string) (bool, error)
	VerifyAuditRecord(r *contracts.AuditRecord, signature string) (bool, error)
}

// Ed25519Verifier implements Verifier from a raw public key.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier validates pubKeyBytes is a well-formed Ed25519 public
// key before wrapping it.
func NewEd25519Verifier(pubKeyBytes []byte) (*Ed25519Verifier, error) {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid public key size: %d", len(pubKeyBytes))
	}
	return &Ed25519Verifier{PublicKey: ed25519.PublicKey(pubKeyBytes)}, nil
}

// Verify checks a raw signature against message, for callers (e.g.
// pkg/artifacts) that sign opaque payloads rather than a typed Decision or
// AuditRecord.
func (v *Ed25519Verifier) Verify(message, signature []byte) bool {
	return ed25519.Verify(v.PublicKey, message, signature)
}

func (v *Ed25519Verifier) VerifyDecision(d *contracts.Decision, signature string) (bool, error) {
	payload, err := CanonicalMarshal(d)
	if err != nil {
		return false, fmt.Errorf("crypto: canonicalize decision: %w", err)
	}
	return verifyHex(v.PublicKey, payload, signature)
}

func (v *Ed25519Verifier) VerifyAuditRecord(r *contracts.AuditRecord, signature string) (bool, error) {
	payload, err := CanonicalMarshal(r)
	if err != nil {
		return false, fmt.Errorf("crypto: canonicalize audit record: %w", err)
	}
	return verifyHex(v.PublicKey, payload, signature)
}
