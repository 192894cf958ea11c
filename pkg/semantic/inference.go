package semantic

import (
	"fmt"

	"github.com/agentgov/substrate/pkg/contracts"
)

// InferenceValidator implements spec 4.6.3.
type InferenceValidator struct{}

// NewInferenceValidator constructs a stateless validator.
func NewInferenceValidator() *InferenceValidator { return &InferenceValidator{} }

// capFor returns the effective cap for domain: the lower of the global
// cap and any per-domain override.
func capFor(cred contracts.InferenceScopeCredential, domain string) contracts.InferenceLevel {
	cap := cred.GlobalMax
	if override, ok := cred.DomainOverride[domain]; ok && override < cap {
		cap = override
	}
	return cap
}

// Validate checks op against cred's level cap, PII gate, and retention
// policy.
func (v *InferenceValidator) Validate(op InferenceOp, cred contracts.InferenceScopeCredential) Result {
	cap := capFor(cred, op.Domain)
	if op.Level > cap {
		return reject(fmt.Sprintf("inference_exceeds_scope: %s > %s", op.Level, cap))
	}

	if len(op.PIITypes) > 0 && !cred.PII.Allowed {
		switch cred.PII.OnHit {
		case "block":
			return reject("pii_inference_blocked")
		case "warn":
			return Result{Valid: true, Warnings: []string{"pii_inference_detected"}}
		default: // redact, or unset defaults to redact
			return Result{Valid: true, Warnings: []string{"pii_inference_redacted"}}
		}
	}

	if op.Persistent && !cred.Retention.Persistent {
		return reject("persistent_retention_not_permitted")
	}
	if len(cred.Retention.RecipientAllow) > 0 {
		for _, recipient := range op.Recipients {
			allowed := false
			for _, a := range cred.Retention.RecipientAllow {
				if a == recipient || a == "*" {
					allowed = true
					break
				}
			}
			if !allowed {
				return reject(fmt.Sprintf("recipient_not_allowed: %s", recipient))
			}
		}
	}

	return ok()
}
