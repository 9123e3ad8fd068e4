package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/samber/do"
	"go.uber.org/zap"

	"promptpaint/core"
	"promptpaint/core/validation"
	"promptpaint/imagegen"
	"promptpaint/inject"
	"promptpaint/logging"
	"promptpaint/shutdown"
	"promptpaint/webui"
)

func main() {
	if HandleServiceCommand(os.Args) {
		return
	}
	os.Exit(run(nil))
}

// run starts the web UI and blocks until shutdown. A close of stop has the
// same effect as SIGTERM; the service wrapper uses it.
func run(stop <-chan struct{}) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return core.ExitCodeError
	}

	logger, err := logging.NewLogger(logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}

	logger.Info("Configuration loaded",
		zap.String("version", core.GetVersionInfo()),
		zap.String("addr", cfg.Addr()),
		zap.String("samples_dir", cfg.SamplesDir),
		zap.String("text_llm_url", cfg.TextLLMURL),
		zap.String("text_llm_model", cfg.TextLLMModel),
		zap.String("image_backend", cfg.ImageBackend),
		zap.Int("steps", cfg.SDInferenceSteps),
		zap.Float64("guidance_scale", cfg.SDGuidanceScale),
		zap.Duration("ai_timeout", cfg.AITimeout),
		zap.Duration("generation_timeout", cfg.GenerationTimeout),
		zap.Bool("auth_enabled", cfg.WebUIPassword != ""),
		zap.Bool("allow_self_signed_certs", cfg.AllowSelfSignedCerts),
		zap.Bool("dev_mode", logger.IsDevelopment()),
		zap.String("log_file", logger.LogFilePath()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	injector := inject.Setup(ctx, cfg, logger)

	if code := runStartupValidation(ctx, cfg, injector, logger); code != core.ExitCodeSuccess {
		_ = logger.Sync()
		return code
	}

	server, err := do.Invoke[*webui.Server](injector)
	if err != nil {
		logger.Error("Failed to build web UI", zap.Error(err))
		_ = logger.Sync()
		return core.ExitCodeError
	}

	manager := do.MustInvoke[*shutdown.Manager](injector)
	manager.Register("http-server", 10, server.Shutdown)
	manager.Register("logger", 90, func(context.Context) error {
		return logger.Sync()
	})
	manager.Start()
	logger.Debug("Shutdown handlers registered", zap.Strings("order", manager.RegisteredHandlers()))

	if stop != nil {
		go func() {
			select {
			case <-stop:
				logger.Info("Service stop requested")
				manager.Trigger()
			case <-manager.Context().Done():
			}
		}()
	}

	var serverFailed atomic.Bool
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Web UI stopped unexpectedly", zap.Error(err))
			serverFailed.Store(true)
			manager.Trigger()
		}
	}()

	<-manager.Context().Done()
	cancel()
	logger.Info("Shutting down", zap.Int64("in_flight", manager.ActiveOperations()))

	if err := manager.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown finished with errors: %v\n", err)
	}

	code := manager.ExitCode()
	if serverFailed.Load() && code == core.ExitCodeSuccess {
		code = core.ExitCodeError
	}
	fmt.Printf("Goodbye! (%s)\n", core.ExitCodeName(code))
	return code
}

// runStartupValidation checks configuration, the samples directory, the
// text endpoint and the image backend before the server starts.
//
// Returns the appropriate exit code:
//   - ExitCodeSuccess (0) if all validations pass
//   - ExitCodeError (1) if any validation fails
func runStartupValidation(ctx context.Context, cfg *core.Config, injector *do.Injector, logger *logging.Logger) int {
	logger.Info("Starting startup validation...")

	suite := validation.NewValidationSuite(cfg).
		WithShowProgress(true).
		WithFailFast(true).
		AddCheck(validation.Check{
			Name: "Image Backend",
			Run: func(context.Context) (string, error) {
				generator, err := do.Invoke[*imagegen.Generator](injector)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Using %s backend", generator.Backend()), nil
			},
		}).
		AddCheck(validation.Check{
			Name:     "Image Backend Reachable",
			Optional: true,
			Run: func(ctx context.Context) (string, error) {
				generator, err := do.Invoke[*imagegen.Generator](injector)
				if err != nil {
					return "Skipped, no backend", nil
				}
				if err := generator.Ping(ctx); err != nil {
					return "Not reachable yet, renders will fail until it is", err
				}
				return "Reachable", nil
			},
		})

	result := suite.Validate(ctx)
	if !result.Success {
		logger.Error("Startup validation failed",
			zap.Error(result.GetFirstError()),
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		return core.ExitCodeError
	}

	for _, step := range result.Steps {
		if step.Status == validation.StepWarning {
			logger.Warn("Validation warning",
				zap.String("step", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error),
			)
		}
	}

	logger.Info("Startup validation complete",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}
