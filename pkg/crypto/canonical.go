package crypto

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalMarshal serializes v to RFC 8785 JSON Canonicalization Scheme
// bytes: object members sorted by code point, numbers in their shortest
// round-tripping form, no insignificant whitespace. record_hash and
// signature payloads are computed over this form so two semantically
// identical records always hash identically regardless of field order.
func CanonicalMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal before canonicalization: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: JCS transform: %w", err)
	}
	return canon, nil
}

// Signature components separators and prefixes.
const (
	SigSeparator     = ":"
	SigPrefixEd25519 = "ed25519"
)
