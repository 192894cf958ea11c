package semantic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/crypto"
)

// InstructionValidator implements spec 4.6.1: an instruction is valid if
// it matches an allowed hash, matches an allowed template, or comes from
// a signed, allow-listed source.
type InstructionValidator struct {
	verifiers map[string]crypto.Verifier // source pattern -> verifier, set by caller for sources requiring signature
}

// NewInstructionValidator constructs a validator with no source verifiers
// registered; use RegisterSourceVerifier to wire one per allowed source.
func NewInstructionValidator() *InstructionValidator {
	return &InstructionValidator{verifiers: make(map[string]crypto.Verifier)}
}

// RegisterSourceVerifier wires the verifier used for an allowed source
// pattern's signature check.
func (v *InstructionValidator) RegisterSourceVerifier(pattern string, verifier crypto.Verifier) {
	v.verifiers[pattern] = verifier
}

// NormalizeInstruction lowercases, collapses whitespace, strips
// non-ASCII-printable bytes, and trims, matching the hash-match rule's
// normalization exactly so callers can reproduce AllowedHashes entries.
func NormalizeInstruction(raw string) string {
	lower := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	var b strings.Builder
	for _, r := range lower {
		if r == ' ' || (r >= 0x21 && r <= 0x7e) {
			b.WriteRune(r)
		}
	}
	collapsed := strings.Join(strings.Fields(b.String()), " ")
	return strings.TrimSpace(collapsed)
}

// HashInstruction returns the sha256:-prefixed hash of the normalized
// instruction.
func HashInstruction(raw string) string {
	sum := sha256.Sum256([]byte(NormalizeInstruction(raw)))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// templateRegex compiles a template description into a regex where
// {{name}} segments become named capture groups and literal whitespace
// runs match flexibly.
func templateRegex(description string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^`)
	i := 0
	for i < len(description) {
		if strings.HasPrefix(description[i:], "{{") {
			end := strings.Index(description[i:], "}}")
			if end < 0 {
				return nil, fmt.Errorf("semantic: unterminated {{ in template")
			}
			name := strings.TrimSpace(description[i+2 : i+end])
			b.WriteString(fmt.Sprintf(`(?P<%s>.+?)`, sanitizeGroupName(name)))
			i += end + 2
			continue
		}
		r := rune(description[i])
		if unicode.IsSpace(r) {
			b.WriteString(`\s+`)
			for i < len(description) && unicode.IsSpace(rune(description[i])) {
				i++
			}
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
		i++
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

func sanitizeGroupName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "p"
	}
	return b.String()
}

// TemplateMatch is the outcome of matching an instruction against one
// template.
type TemplateMatch struct {
	TemplateID string
	Params     map[string]string
	Confidence float64
}

func matchTemplate(instruction string, tmpl contracts.InstructionTemplate) (*TemplateMatch, error) {
	re, err := templateRegex(tmpl.Description)
	if err != nil {
		return nil, err
	}
	loc := re.FindStringSubmatchIndex(instruction)
	if loc == nil {
		return nil, nil
	}
	names := re.SubexpNames()
	params := make(map[string]string)
	matchStart, matchEnd := loc[0], loc[1]
	for i, name := range names {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		params[name] = instruction[loc[2*i]:loc[2*i+1]]
	}
	confidence := 0.0
	if len(instruction) > 0 {
		confidence = float64(matchEnd-matchStart) / float64(len(instruction))
	}
	return &TemplateMatch{TemplateID: tmpl.ID, Params: params, Confidence: confidence}, nil
}

// Validate checks instruction (raw text from source) against cred's
// allowed hashes, templates, and signed sources, in that order.
func (v *InstructionValidator) Validate(instruction, source, signature string, cred contracts.InstructionIntegrityCredential) Result {
	hash := HashInstruction(instruction)

	for _, allowed := range cred.AllowedHashes {
		if allowed == hash {
			return ok()
		}
	}

	for _, tmpl := range cred.Templates {
		m, err := matchTemplate(instruction, tmpl)
		if err != nil || m == nil {
			continue
		}
		return ok()
	}

	for _, src := range cred.AllowedSources {
		matched, err := globMatch(src.Pattern, source)
		if err != nil || !matched {
			continue
		}
		if !src.RequireSignature {
			return ok()
		}
		if signature == "" || src.PublicKeyHex == "" {
			continue
		}
		verifier, haveVerifier := v.verifiers[src.Pattern]
		if !haveVerifier {
			continue
		}
		sigBytes, err := hexDecode(signature)
		if err != nil {
			continue
		}
		if verifier.Verify([]byte(instruction), sigBytes) {
			return ok()
		}
	}

	return Result{Valid: false, Reason: "instruction_not_recognized", Warnings: []string{hash}}
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "hex:"))
}

func globMatch(pattern, value string) (bool, error) {
	re, err := regexp.Compile("^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, `.*`) + "$")
	if err != nil {
		return false, err
	}
	return re.MatchString(value), nil
}
