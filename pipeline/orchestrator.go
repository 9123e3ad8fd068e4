// Package pipeline composes the safety filter, refiner, image generator and
// sample store into the single Generate call behind the web UI.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"promptpaint/imagegen"
	"promptpaint/logging"
	"promptpaint/metrics"
)

// UnsafePromptMessage is the fixed text of every UnsafePromptError.
const UnsafePromptMessage = "Unsafe or inappropriate content detected in the prompt!"

// UnsafePromptError is returned when the safety filter rejects a prompt.
// No model is called and no file is written.
type UnsafePromptError struct {
	// Term is the denylist entry that matched. It is not part of Error().
	Term string
}

func (e *UnsafePromptError) Error() string {
	return UnsafePromptMessage
}

// IsUnsafePrompt reports whether err is or wraps an UnsafePromptError.
func IsUnsafePrompt(err error) bool {
	var unsafe *UnsafePromptError
	return errors.As(err, &unsafe)
}

// SafetyChecker returns the matched term and false for a rejected prompt.
type SafetyChecker interface {
	Check(prompt string) (term string, ok bool)
}

// PromptRefiner rewrites a prompt or returns it unchanged.
type PromptRefiner interface {
	Refine(ctx context.Context, prompt string) (string, error)
}

// Renderer turns a prompt into one image.
type Renderer interface {
	Render(ctx context.Context, prompt string) (*imagegen.Image, error)
}

// SampleStore holds the latest image on disk.
type SampleStore interface {
	Clear() error
	Save(data []byte, prompt string) (string, error)
}

// Result is what Generate hands back to the UI.
type Result struct {
	Image *imagegen.Image

	// Prompt is the prompt actually rendered: refined, or the input as given.
	Prompt string

	// Path is where the image was saved.
	Path string

	CorrelationID string
}

// Config tunes the Orchestrator.
type Config struct {
	// GenerationTimeout bounds one Generate call after it is admitted.
	// Zero means no bound.
	GenerationTimeout time.Duration
}

// Orchestrator is the top-level organism. Calls are serialized through a
// one-slot semaphore because the model backends are shared process-wide
// and are not safe to drive concurrently; the caller's context bounds the
// wait for that slot.
type Orchestrator struct {
	safety   SafetyChecker
	refiner  PromptRefiner
	renderer Renderer
	store    SampleStore

	config    Config
	logger    *logging.Logger
	collector *metrics.Collector
	history   *metrics.History

	slot *semaphore.Weighted
}

// Option configures optional Orchestrator collaborators.
type Option func(*Orchestrator)

// WithMetrics reports stage timings and outcomes to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// WithHistory records every finished call in h.
func WithHistory(h *metrics.History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// New wires the pipeline. refiner may be nil, in which case enhancement
// requests are logged and skipped.
func New(safety SafetyChecker, refiner PromptRefiner, renderer Renderer, store SampleStore, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if safety == nil || renderer == nil || store == nil {
		return nil, errors.New("pipeline: safety checker, renderer and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		safety:   safety,
		refiner:  refiner,
		renderer: renderer,
		store:    store,
		logger:   logger.Named("pipeline"),
		slot:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Generate runs clear, safety check, optional refine, render and save, in
// that order. The sample directory is cleared even when the prompt is then
// rejected. Any error aborts the call and is returned unchanged except for
// the safety rejection, which is an *UnsafePromptError.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, enhance bool) (*Result, error) {
	correlationID := uuid.New().String()[:8]
	log := o.logger.With(zap.String("correlation_id", correlationID))

	if err := o.slot.Acquire(ctx, 1); err != nil {
		log.Warn("gave up waiting for generation slot", zap.Error(err))
		return nil, err
	}
	defer o.slot.Release(1)

	if o.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	record := metrics.GenerationRecord{
		CorrelationID: correlationID,
		Prompt:        prompt,
		Enhance:       enhance,
		StartTime:     start,
	}

	log.Info("starting generation", zap.String("prompt", prompt), zap.Bool("enhance", enhance))
	result, err := o.run(ctx, log, prompt, enhance)
	record.Duration = time.Since(start)

	switch {
	case err == nil:
		record.Status = metrics.StatusSuccess
		record.FinalPrompt = result.Prompt
		record.Path = result.Path
		result.CorrelationID = correlationID
		log.Info("generation complete",
			zap.String("final_prompt", result.Prompt),
			zap.String("path", result.Path),
			zap.Duration("duration", record.Duration))
	case IsUnsafePrompt(err):
		record.Status = metrics.StatusUnsafe
		record.Error = err.Error()
		log.Warn("unsafe prompt rejected")
	default:
		record.Status = metrics.StatusError
		record.Error = err.Error()
		log.Error("generation failed", zap.Error(err), zap.Duration("duration", record.Duration))
	}

	o.collector.RecordGeneration(record.Status)
	o.history.Record(record)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, log *logging.Logger, prompt string, enhance bool) (*Result, error) {
	if err := o.stage(metrics.StageClear, o.store.Clear); err != nil {
		return nil, err
	}

	var term string
	var safe bool
	o.stage(metrics.StageSafety, func() error {
		term, safe = o.safety.Check(prompt)
		return nil
	})
	if !safe {
		return nil, &UnsafePromptError{Term: term}
	}

	if enhance {
		if o.refiner == nil {
			log.Warn("enhancement requested but no refiner is configured")
		} else {
			var refined string
			err := o.stage(metrics.StageRefine, func() (err error) {
				refined, err = o.refiner.Refine(ctx, prompt)
				return err
			})
			if err != nil {
				return nil, err
			}
			prompt = refined
		}
	} else {
		log.Debug("prompt enhancement skipped")
	}

	var img *imagegen.Image
	err := o.stage(metrics.StageRender, func() (err error) {
		img, err = o.renderer.Render(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}

	var path string
	err = o.stage(metrics.StageSave, func() (err error) {
		path, err = o.store.Save(img.Data, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Result{Image: img, Prompt: prompt, Path: path}, nil
}

// stage times fn under name.
func (o *Orchestrator) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.collector.ObserveStage(name, time.Since(start))
	return err
}
