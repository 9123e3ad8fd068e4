// Package refiner optionally rewrites a user prompt into a more descriptive
// scene using a small text model, falling back to the original whenever the
// model output looks degenerate.
package refiner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"promptpaint/logging"
)

// Defaults for Config.
const (
	DefaultInstructionTemplate = "Rewrite this as a vivid artistic scene description: %s"
	DefaultMaxNewTokens        = 40
	DefaultMinTokens           = 3
	DefaultMinSpaces           = 3
	DefaultDegeneratePrefix    = "a picture of a man"
)

// Outcome labels what Refine did with a prompt.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRewritten Outcome = "rewritten"
	OutcomeFallback  Outcome = "fallback"
	OutcomeError     Outcome = "error"
)

// TextGenerator is the opaque text model. It returns its single best
// completion for instruction, capped at maxNewTokens.
type TextGenerator interface {
	Generate(ctx context.Context, instruction string, maxNewTokens int) (string, error)
}

// OutcomeRecorder receives one Outcome per Refine call.
type OutcomeRecorder interface {
	RecordRefinement(outcome string)
}

// Config holds the refinement rules.
type Config struct {
	// InstructionTemplate is formatted with the prompt as its only argument.
	InstructionTemplate string
	MaxNewTokens        int

	// Prompts with fewer whitespace tokens than MinTokens are not sent.
	MinTokens int

	// Output with fewer space characters than MinSpaces is discarded.
	MinSpaces int

	// Output starting with DegeneratePrefix (any case) is discarded.
	DegeneratePrefix string
}

// DefaultConfig returns the standard refinement rules.
func DefaultConfig() Config {
	return Config{
		InstructionTemplate: DefaultInstructionTemplate,
		MaxNewTokens:        DefaultMaxNewTokens,
		MinTokens:           DefaultMinTokens,
		MinSpaces:           DefaultMinSpaces,
		DegeneratePrefix:    DefaultDegeneratePrefix,
	}
}

// Refiner is the prompt rewriting molecule. It is safe for concurrent use
// if its TextGenerator is.
type Refiner struct {
	generator TextGenerator
	config    Config
	logger    *logging.Logger
	recorder  OutcomeRecorder
}

// New creates a Refiner. A nil recorder disables outcome reporting.
func New(generator TextGenerator, config Config, logger *logging.Logger, recorder OutcomeRecorder) *Refiner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Refiner{
		generator: generator,
		config:    config,
		logger:    logger.Named("refiner"),
		recorder:  recorder,
	}
}

// Refine returns the rewritten prompt, or prompt itself when it is too short
// to rewrite or the model output fails the quality rules. The result is never
// empty unless prompt is. Generator errors are returned as-is.
func (r *Refiner) Refine(ctx context.Context, prompt string) (string, error) {
	if len(strings.Fields(prompt)) < r.config.MinTokens {
		r.logger.Debug("prompt too short, skipping refinement", zap.String("prompt", prompt))
		r.record(OutcomeSkipped)
		return prompt, nil
	}

	instruction := fmt.Sprintf(r.config.InstructionTemplate, prompt)
	output, err := r.generator.Generate(ctx, instruction, r.config.MaxNewTokens)
	if err != nil {
		r.record(OutcomeError)
		return "", err
	}

	refined := strings.TrimSpace(output)
	if reason := r.rejectReason(refined); reason != "" {
		r.logger.Info("refinement produced poor output, using original prompt",
			zap.String("reason", reason),
			zap.String("output", refined))
		r.record(OutcomeFallback)
		return prompt, nil
	}

	r.logger.Info("prompt refined", zap.String("original", prompt), zap.String("refined", refined))
	r.record(OutcomeRewritten)
	return refined, nil
}

// rejectReason returns why output is unusable, or "" if it is acceptable.
func (r *Refiner) rejectReason(output string) string {
	switch {
	case output == "":
		return "blank"
	case r.config.DegeneratePrefix != "" &&
		strings.HasPrefix(strings.ToLower(output), strings.ToLower(r.config.DegeneratePrefix)):
		return "degenerate prefix"
	case strings.Count(output, " ") < r.config.MinSpaces:
		return "too few words"
	default:
		return ""
	}
}

func (r *Refiner) record(outcome Outcome) {
	if r.recorder != nil {
		r.recorder.RecordRefinement(string(outcome))
	}
}
