package imagegen

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"promptpaint/logging"
)

// Params are the fixed generation settings applied to every render.
type Params struct {
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	NegativePrompt string
}

// DefaultParams returns 30 steps at guidance 7.5, 512x512.
func DefaultParams() Params {
	return Params{
		Steps:         30,
		GuidanceScale: 7.5,
		Width:         512,
		Height:        512,
	}
}

// Generator is the rendering organism: it validates the prompt, calls the
// provider chosen at startup and checks what comes back.
//
// Thread Safety: safe for concurrent use if the Provider is.
type Generator struct {
	provider Provider
	params   Params
	logger   *logging.Logger
	seedFn   func() int64
}

// NewGenerator binds provider and params for the life of the process.
func NewGenerator(provider Provider, params Params, logger *logging.Logger) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("imagegen: provider cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		provider: provider,
		params:   params,
		logger:   logger.Named("imagegen"),
		seedFn:   RandomSeed,
	}, nil
}

// Backend names the provider in use.
func (g *Generator) Backend() string {
	return g.provider.Name()
}

// Ping checks that the backend is reachable without rendering. Providers
// that cannot be probed report nil.
func (g *Generator) Ping(ctx context.Context) error {
	if pinger, ok := g.provider.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Render produces exactly one image for prompt. Provider errors are
// returned unchanged; a reply that is not a decodable PNG yields
// ErrImageNotPNG or ErrImageDecodeFail.
func (g *Generator) Render(ctx context.Context, prompt string) (*Image, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	seed := g.seedFn()
	start := time.Now()
	g.logger.Debug("rendering image",
		zap.String("backend", g.provider.Name()),
		zap.Int("steps", g.params.Steps),
		zap.Float64("guidance_scale", g.params.GuidanceScale),
		zap.Int64("seed", seed))

	data, err := g.provider.Generate(ctx, Request{
		Prompt:         prompt,
		NegativePrompt: g.params.NegativePrompt,
		Steps:          g.params.Steps,
		GuidanceScale:  g.params.GuidanceScale,
		Width:          g.params.Width,
		Height:         g.params.Height,
		Seed:           seed,
	})
	if err != nil {
		g.logger.Warn("backend failed", zap.String("backend", g.provider.Name()), zap.Error(err))
		return nil, err
	}

	width, height, err := DecodePNGConfig(data)
	if err != nil {
		return nil, err
	}

	g.logger.Info("image rendered",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)))

	return &Image{Data: data, Width: width, Height: height, Seed: seed}, nil
}
