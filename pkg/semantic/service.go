package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/trust"
)

// CredentialSource loads the Semantic Credential gating one agent,
// satisfied by trust.CredentialCache.
type CredentialSource interface {
	Load(did string) (*contracts.SemanticCredential, error)
}

// Service orchestrates the five validators at the two invocation points
// spec 4.6.6 defines.
type Service struct {
	credentials CredentialSource
	instruction *InstructionValidator
	output      *OutputValidator
	inference   *InferenceValidator
	context     *ContextValidator
	dualChannel *DualChannelEnforcer
	clock       func() time.Time
}

// New constructs a Service reading credentials from the given source.
func New(credentials CredentialSource) *Service {
	return &Service{
		credentials: credentials,
		instruction: NewInstructionValidator(),
		output:      NewOutputValidator(),
		inference:   NewInferenceValidator(),
		context:     NewContextValidator(),
		dualChannel: NewDualChannelEnforcer(),
		clock:       time.Now,
	}
}

// NewDefault wires a Service against a fresh in-process credential
// lifecycle and cache, convenient for tests and simple deployments.
func NewDefault() *Service {
	lifecycle := trust.NewCredentialLifecycle(24 * time.Hour)
	return New(trust.NewCredentialCache(lifecycle))
}

// PhaseResult is the outcome of one phase of ValidateInteraction.
type PhaseResult struct {
	Result
	Channel Channel
}

// InteractionResult bundles both phases plus total duration.
type InteractionResult struct {
	PreAction  PhaseResult
	PostAction PhaseResult
	Duration   time.Duration
}

// PreActionCheck runs: classify channel -> enforce dual-channel ->
// validate instruction -> validate each context item -> validate each
// declared inference op. First failure short-circuits.
func (s *Service) PreActionCheck(ctx context.Context, interaction AgentInteraction) (PhaseResult, error) {
	cred, err := s.credentials.Load(interaction.Agent.DID)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("semantic: load credential for %s: %w", interaction.Agent.DID, err)
	}
	if cred.State != contracts.CredentialActive {
		return PhaseResult{Result: reject("credential_not_active")}, nil
	}

	outcome := s.dualChannel.Enforce(interaction.Message, cred.DualChannel)
	if !outcome.Valid {
		return PhaseResult{Result: outcome.Result, Channel: outcome.Channel}, nil
	}

	if interaction.Action.Instruction != "" {
		res := s.instruction.Validate(interaction.Action.Instruction, interaction.Action.InstructionFrom, interaction.Action.InstructionSig, cred.InstructionIntegrity)
		if !res.Valid {
			return PhaseResult{Result: res, Channel: outcome.Channel}, nil
		}
	}

	for _, item := range interaction.Action.Context {
		res := s.context.Validate(item, cred.ContextAuth, nil, nil)
		if !res.Valid {
			return PhaseResult{Result: res, Channel: outcome.Channel}, nil
		}
	}

	for _, op := range interaction.Action.Inferences {
		res := s.inference.Validate(op, cred.InferenceScope)
		if !res.Valid {
			return PhaseResult{Result: res, Channel: outcome.Channel}, nil
		}
	}

	merged := outcome.Result
	return PhaseResult{Result: merged, Channel: outcome.Channel}, nil
}

// PostActionCheck runs: validate output schemas & patterns -> validate
// referenced endpoints -> validate each derived-knowledge item's
// inference op and PII check. Warnings and sub-threshold detections are
// returned on the result; the output is not sanitized here.
func (s *Service) PostActionCheck(ctx context.Context, interaction AgentInteraction) (PhaseResult, error) {
	cred, err := s.credentials.Load(interaction.Agent.DID)
	if err != nil {
		return PhaseResult{}, fmt.Errorf("semantic: load credential for %s: %w", interaction.Agent.DID, err)
	}
	if cred.State != contracts.CredentialActive {
		return PhaseResult{Result: reject("credential_not_active")}, nil
	}

	res, _, err := s.output.Validate(interaction.Record.Output, cred.OutputBinding)
	if err != nil {
		return PhaseResult{}, err
	}
	if !res.Valid {
		return PhaseResult{Result: res}, nil
	}

	var warnings []string
	warnings = append(warnings, res.Warnings...)

	for _, op := range interaction.Record.DerivedKnowledge {
		opRes := s.inference.Validate(op, cred.InferenceScope)
		if !opRes.Valid {
			return PhaseResult{Result: opRes}, nil
		}
		warnings = append(warnings, opRes.Warnings...)
	}

	return PhaseResult{Result: Result{Valid: true, Warnings: warnings, Detections: res.Detections}}, nil
}

// ValidateInteraction runs both phases in sequence and reports total
// duration.
func (s *Service) ValidateInteraction(ctx context.Context, interaction AgentInteraction) (InteractionResult, error) {
	start := s.clock()

	pre, err := s.PreActionCheck(ctx, interaction)
	if err != nil {
		return InteractionResult{}, err
	}
	result := InteractionResult{PreAction: pre}
	if !pre.Valid {
		result.Duration = s.clock().Sub(start)
		return result, nil
	}

	post, err := s.PostActionCheck(ctx, interaction)
	if err != nil {
		return InteractionResult{}, err
	}
	result.PostAction = post
	result.Duration = s.clock().Sub(start)
	return result, nil
}
