package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/agentgov/substrate/pkg/contracts"
)

// Signer produces and verifies signatures over Decisions and AuditRecords.
// Decisions are signed at the moment the Governance Engine renders its
// verdict; AuditRecords are signed (over their canonical form, which
// includes record_hash) once the hash chain has bound them to their
// predecessor, so a signature also attests to chain position.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
	PublicKeyBytes() []byte
	SignDecision(d *contracts.Decision) (string, error)
	SignAuditRecord(r *contracts.AuditRecord) (string, error)
	VerifyDecision(d *contracts.Decision, signature string) (bool, error)
	VerifyAuditRecord(r *contracts.AuditRecord, signature string) (bool, error)
}

// Ed25519Signer signs with the stdlib crypto/ed25519 implementation. The
// x/crypto variant is deliberately not used here: it duplicates primitives
// already in the standard library and brings in no additional capability
// this package needs.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	KeyID   string
}

// NewEd25519Signer generates a fresh keypair under the given key ID.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, KeyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an externally-provisioned private key (e.g.
// unsealed from a KMS handle at startup).
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{privKey: priv, pubKey: priv.Public().(ed25519.PublicKey), KeyID: keyID}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, data)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return s.pubKey
}

func (s *Ed25519Signer) Verify(message, signature []byte) bool {
	return ed25519.Verify(s.pubKey, message, signature)
}

// SignDecision signs the canonical JCS form of a Decision.
func (s *Ed25519Signer) SignDecision(d *contracts.Decision) (string, error) {
	payload, err := CanonicalMarshal(d)
	if err != nil {
		return "", fmt.Errorf("crypto: canonicalize decision: %w", err)
	}
	return s.Sign(payload)
}

// SignAuditRecord signs the canonical JCS form of an AuditRecord, which by
// the time this is called already carries its record_hash and
// previous_hash.
func (s *Ed25519Signer) SignAuditRecord(r *contracts.AuditRecord) (string, error) {
	payload, err := CanonicalMarshal(r)
	if err != nil {
		return "", fmt.Errorf("crypto: canonicalize audit record: %w", err)
	}
	return s.Sign(payload)
}

// VerifyDecision reports whether signature is a valid signature over d's
// canonical form.
func (s *Ed25519Signer) VerifyDecision(d *contracts.Decision, signature string) (bool, error) {
	payload, err := CanonicalMarshal(d)
	if err != nil {
		return false, fmt.Errorf("crypto: canonicalize decision: %w", err)
	}
	return verifyHex(s.pubKey, payload, signature)
}

// VerifyAuditRecord reports whether signature is a valid signature over r's
// canonical form.
func (s *Ed25519Signer) VerifyAuditRecord(r *contracts.AuditRecord, signature string) (bool, error) {
	payload, err := CanonicalMarshal(r)
	if err != nil {
		return false, fmt.Errorf("crypto: canonicalize audit record: %w", err)
	}
	return verifyHex(s.pubKey, payload, signature)
}

func verifyHex(pub ed25519.PublicKey, message []byte, signatureHex string) (bool, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	return ed25519.Verify(pub, message, sig), nil
}

// Verify checks a hex-encoded signature against a hex-encoded public key,
// for callers that only hold the wire-form key (e.g. a DID document's
// verification method) rather than a live Signer instance.
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("crypto: invalid public key size")
	}
	return verifyHex(ed25519.PublicKey(pubKey), data, sigHex)
}
