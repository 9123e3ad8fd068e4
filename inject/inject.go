// Package inject wires the application graph with samber/do.
package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"promptpaint/core"
	"promptpaint/imagegen"
	"promptpaint/llm"
	"promptpaint/logging"
	"promptpaint/metrics"
	"promptpaint/pipeline"
	"promptpaint/refiner"
	"promptpaint/safety"
	"promptpaint/samples"
	"promptpaint/shutdown"
	"promptpaint/webui"
	"promptpaint/webui/auth"
)

// historySize is how many generations /api/status remembers.
const historySize = 50

// Setup registers every service lazily. Nothing is built until invoked, so
// a failing image backend probe surfaces from the first MustInvoke that
// needs it.
func Setup(ctx context.Context, cfg *core.Config, logger *logging.Logger) *do.Injector {
	log := logger.Named("inject")

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.ProvideValue[*core.Config](injector, cfg)
	do.ProvideValue[*logging.Logger](injector, logger)

	do.Provide[*prometheus.Registry](injector, func(i *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg, nil
	})
	do.Provide[*metrics.Collector](injector, func(i *do.Injector) (*metrics.Collector, error) {
		return metrics.NewCollector(do.MustInvoke[*prometheus.Registry](i)), nil
	})

	do.Provide[*safety.Filter](injector, func(i *do.Injector) (*safety.Filter, error) {
		return safety.NewFilter(logger, safety.WithRecorder(do.MustInvoke[*metrics.Collector](i))), nil
	})

	do.ProvideNamed[*openai.Client](injector, "text_client", func(i *do.Injector) (*openai.Client, error) {
		return llm.NewClient(llm.ClientConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.TextLLMURL,
			HTTPClient: core.GetHTTPClient(cfg, cfg.AITimeout),
		}), nil
	})
	do.Provide[refiner.TextGenerator](injector, func(i *do.Injector) (refiner.TextGenerator, error) {
		client := do.MustInvokeNamed[*openai.Client](i, "text_client")
		return refiner.NewChatGenerator(client, cfg.TextLLMModel), nil
	})
	do.Provide[*refiner.Refiner](injector, func(i *do.Injector) (*refiner.Refiner, error) {
		return refiner.New(
			do.MustInvoke[refiner.TextGenerator](i),
			refiner.DefaultConfig(),
			logger,
			do.MustInvoke[*metrics.Collector](i),
		), nil
	})

	do.Provide[imagegen.Provider](injector, func(i *do.Injector) (imagegen.Provider, error) {
		return imagegen.SelectProvider(ctx, cfg, logger)
	})
	do.Provide[*imagegen.Generator](injector, func(i *do.Injector) (*imagegen.Generator, error) {
		provider, err := do.Invoke[imagegen.Provider](i)
		if err != nil {
			return nil, err
		}
		return imagegen.NewGenerator(provider, imagegen.Params{
			Steps:          cfg.SDInferenceSteps,
			GuidanceScale:  cfg.SDGuidanceScale,
			Width:          cfg.SDImageSize,
			Height:         cfg.SDImageSize,
			NegativePrompt: cfg.SDNegativePrompt,
		}, logger)
	})

	do.Provide[*samples.Store](injector, func(i *do.Injector) (*samples.Store, error) {
		return samples.NewStore(cfg.SamplesDir, logger), nil
	})

	do.Provide[*metrics.History](injector, func(i *do.Injector) (*metrics.History, error) {
		generator, err := do.Invoke[*imagegen.Generator](i)
		if err != nil {
			return nil, err
		}
		return metrics.NewHistory(historySize, core.Version, generator.Backend(), time.Now()), nil
	})

	do.Provide[*pipeline.Orchestrator](injector, func(i *do.Injector) (*pipeline.Orchestrator, error) {
		generator, err := do.Invoke[*imagegen.Generator](i)
		if err != nil {
			return nil, err
		}
		return pipeline.New(
			do.MustInvoke[*safety.Filter](i),
			do.MustInvoke[*refiner.Refiner](i),
			generator,
			do.MustInvoke[*samples.Store](i),
			logger,
			pipeline.WithMetrics(do.MustInvoke[*metrics.Collector](i)),
			pipeline.WithHistory(do.MustInvoke[*metrics.History](i)),
			pipeline.WithConfig(pipeline.Config{GenerationTimeout: cfg.GenerationTimeout}),
		)
	})

	do.Provide[*shutdown.Manager](injector, func(i *do.Injector) (*shutdown.Manager, error) {
		return shutdown.NewManager(logger), nil
	})

	do.Provide[*webui.Server](injector, func(i *do.Injector) (*webui.Server, error) {
		orchestrator, err := do.Invoke[*pipeline.Orchestrator](i)
		if err != nil {
			return nil, err
		}

		opts := []webui.ServerOption{
			webui.WithLogger(logger),
			webui.WithCollector(do.MustInvoke[*metrics.Collector](i)),
			webui.WithHistory(do.MustInvoke[*metrics.History](i)),
			webui.WithOperations(do.MustInvoke[*shutdown.Manager](i)),
		}
		if cfg.WebUIPassword != "" {
			basic, err := auth.NewBasicAuth(cfg.WebUIPassword, logger, auth.DefaultConfig())
			if err != nil {
				return nil, err
			}
			basic.RateLimiter().StartCleanupTicker(ctx, 5*time.Minute)
			opts = append(opts, webui.WithAuth(basic.Middleware))
		}

		serverCfg := webui.DefaultServerConfig()
		serverCfg.Addr = cfg.Addr()
		serverCfg.SamplesDir = cfg.SamplesDir
		serverCfg.Version = core.GetVersionInfo()

		log.Info("web UI configured",
			zap.String("addr", serverCfg.Addr),
			zap.Bool("auth", cfg.WebUIPassword != ""),
		)
		return webui.NewServer(serverCfg, orchestrator, opts...)
	})

	return injector
}
