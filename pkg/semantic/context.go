package semantic

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/crypto"
)

// ContextValidator implements spec 4.6.4.
type ContextValidator struct {
	verifiers map[string]crypto.Verifier // providerID -> verifier
	clock     func() time.Time
}

// NewContextValidator constructs a validator with no provider verifiers
// registered.
func NewContextValidator() *ContextValidator {
	return &ContextValidator{verifiers: make(map[string]crypto.Verifier), clock: time.Now}
}

// RegisterProviderVerifier wires the verifier used for providerID's
// content-integrity signature check.
func (v *ContextValidator) RegisterProviderVerifier(providerID string, verifier crypto.Verifier) {
	v.verifiers[providerID] = verifier
}

// WithClock overrides the clock for deterministic tests.
func (v *ContextValidator) WithClock(clock func() time.Time) *ContextValidator {
	v.clock = clock
	return v
}

func detectContentFormat(content string) string {
	var js any
	if json.Unmarshal([]byte(content), &js) == nil {
		return "application/json"
	}
	for _, r := range content {
		if r == 0 || r > 0x10FFFF {
			return "application/octet-stream"
		}
	}
	return "text/plain"
}

// Validate runs provider identity, content integrity, and injection scan
// checks against item, rejecting on the first that fails.
func (v *ContextValidator) Validate(item ContextItem, cred contracts.ContextAuthenticationCredential, blockPatterns, allowPatterns []string) Result {
	for _, pattern := range blockPatterns {
		if matched, _ := globMatch(pattern, item.ProviderID); matched {
			return reject("provider_blocked")
		}
	}
	if len(allowPatterns) > 0 {
		permitted := false
		for _, pattern := range allowPatterns {
			if matched, _ := globMatch(pattern, item.ProviderID); matched {
				permitted = true
				break
			}
		}
		if !permitted {
			return reject("provider_not_allowlisted")
		}
	}
	if item.ProviderTier.Rank() < cred.MinProviderTier.Rank() {
		return reject("provider_tier_insufficient")
	}
	for _, domain := range cred.RequiredDomains {
		declared := false
		for _, d := range item.Domains {
			if d == domain {
				declared = true
				break
			}
		}
		if !declared {
			return reject(fmt.Sprintf("provider_missing_domain:%s", domain))
		}
	}

	if cred.ContentIntegrity.SignatureRequired {
		verifier, haveVerifier := v.verifiers[item.ProviderID]
		if !haveVerifier || item.Signature == "" {
			return reject("content_signature_missing")
		}
		sig, err := hexDecode(item.Signature)
		if err != nil || !verifier.Verify([]byte(item.Content), sig) {
			return reject("content_signature_invalid")
		}
	}
	if cred.ContentIntegrity.MaxAge > 0 && v.clock().Sub(item.Timestamp) > cred.ContentIntegrity.MaxAge {
		return reject("content_stale")
	}
	if len(cred.ContentIntegrity.AllowedMIME) > 0 {
		format := detectContentFormat(item.Content)
		permitted := false
		for _, mime := range cred.ContentIntegrity.AllowedMIME {
			if mime == format {
				permitted = true
				break
			}
		}
		if !permitted {
			return reject(fmt.Sprintf("content_format_not_allowed:%s", format))
		}
	}

	if hits := scanInjections(item.Content); len(hits) > 0 {
		return reject(fmt.Sprintf("injection_detected:%s", maxSeverity(hits)), hits...)
	}

	return ok()
}
