package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/agentgov/substrate/pkg/contracts"
	"golang.org/x/crypto/hkdf"
)

// KeyRing holds multiple named signing keys, supporting rotation: new keys
// are added without invalidating signatures already produced by older
// ones, since VerifyDecision/VerifyAuditRecord dispatch on an explicit key
// ID rather than assuming a single active key.
type KeyRing struct {
	mu      sync.RWMutex
	signers map[string]*Ed25519Signer
}

func NewKeyRing() *KeyRing {
	return &KeyRing{signers: make(map[string]*Ed25519Signer)}
}

// AddKey registers a signer under its own KeyID.
func (k *KeyRing) AddKey(s *Ed25519Signer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[s.KeyID] = s
}

// RevokeKey removes a key, e.g. once a credential rotation has superseded
// it and its grace window has elapsed.
func (k *KeyRing) RevokeKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.signers, keyID)
}

// activeKeyLocked returns the lexicographically-last key ID as the active
// signing key. Callers that mint new key IDs from a monotonic rotation
// counter (e.g. "tenant-42-gen-7") get "most recently rotated in" as a
// side effect of this ordering.
func (k *KeyRing) activeKeyLocked() (*Ed25519Signer, error) {
	if len(k.signers) == 0 {
		return nil, fmt.Errorf("crypto: keyring has no keys")
	}
	ids := make([]string, 0, len(k.signers))
	for id := range k.signers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return k.signers[ids[len(ids)-1]], nil
}

// SignDecision signs with the active key and returns both the signature
// and the key ID that produced it, so the Decision can record which key an
// auditor must look up to verify it later.
func (k *KeyRing) SignDecision(d *contracts.Decision) (signature, keyID string, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	active, err := k.activeKeyLocked()
	if err != nil {
		return "", "", err
	}
	sig, err := active.SignDecision(d)
	return sig, active.KeyID, err
}

// SignAuditRecord signs with the active key and returns both the signature
// and the key ID.
func (k *KeyRing) SignAuditRecord(r *contracts.AuditRecord) (signature, keyID string, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	active, err := k.activeKeyLocked()
	if err != nil {
		return "", "", err
	}
	sig, err := active.SignAuditRecord(r)
	return sig, active.KeyID, err
}

// VerifyDecisionWithKey verifies against a specific key ID, rather than
// whichever key is currently active, so a Decision signed before a
// rotation still verifies after one.
func (k *KeyRing) VerifyDecisionWithKey(keyID string, d *contracts.Decision, signature string) (bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[keyID]
	if !ok {
		return false, fmt.Errorf("crypto: unknown or revoked key %q", keyID)
	}
	return s.VerifyDecision(d, signature)
}

// VerifyAuditRecordWithKey verifies against a specific key ID.
func (k *KeyRing) VerifyAuditRecordWithKey(keyID string, r *contracts.AuditRecord, signature string) (bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[keyID]
	if !ok {
		return false, fmt.Errorf("crypto: unknown or revoked key %q", keyID)
	}
	return s.VerifyAuditRecord(r, signature)
}

// DeriveTenantKeyID derives a tenant-scoped, deterministic Ed25519 private
// key (not a key ID string) from a master secret using HKDF, so every tenant gets a distinct signing
// identity without the operator provisioning one keypair per tenant by
// hand. The derived material seeds an Ed25519 key deterministically: two
// calls with the same master secret and tenant ID always yield the same
// key, which is what lets a restarted process recover its signing
// identity without persisting private key material separately.
func DeriveTenantKeyID(masterSecret []byte, tenantID string) (ed25519.PrivateKey, error) {
	h := hkdf.New(sha256.New, masterSecret, []byte(tenantID), []byte("substrate-tenant-signing-key"))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(h, seed); err != nil {
		return nil, fmt.Errorf("crypto: derive tenant key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
