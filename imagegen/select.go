package imagegen

import (
	"context"
	"time"

	"go.uber.org/zap"

	"promptpaint/core"
	"promptpaint/llm"
	"promptpaint/logging"
)

// probeTimeout bounds the startup reachability check of the SD WebUI.
const probeTimeout = 5 * time.Second

// SelectProvider picks the image backend once at startup.
//
// IMAGE_BACKEND=sdapi and =openai are taken as given. With auto, a reachable
// SD WebUI wins; otherwise OpenAI is used when a key is configured. When
// neither is usable a *core.ConfigError with code NO_IMAGE_BACKEND is
// returned.
func SelectProvider(ctx context.Context, cfg *core.Config, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	log := logger.Named("imagegen")
	httpClient := core.GetHTTPClient(cfg, cfg.AITimeout)

	sd := NewSDAPIProvider(cfg.SDAPIURL, httpClient)
	openAI := func() Provider {
		return NewOpenAIProvider(llm.NewClient(llm.ClientConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIImageURL,
			HTTPClient: httpClient,
		}), cfg.OpenAIImageModel)
	}

	switch cfg.ImageBackend {
	case core.ImageBackendSDAPI:
		log.Info("image backend selected", zap.String("backend", "sdapi"), zap.String("url", cfg.SDAPIURL))
		return sd, nil
	case core.ImageBackendOpenAI:
		log.Info("image backend selected", zap.String("backend", "openai"), zap.String("model", cfg.OpenAIImageModel))
		return openAI(), nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	probeErr := sd.Ping(probeCtx)
	if probeErr == nil {
		log.Info("image backend selected", zap.String("backend", "sdapi"), zap.String("url", cfg.SDAPIURL))
		return sd, nil
	}

	if cfg.OpenAIAPIKey != "" {
		log.Info("SD WebUI unreachable, using OpenAI images",
			zap.String("url", cfg.SDAPIURL),
			zap.Error(probeErr))
		return openAI(), nil
	}

	return nil, core.ErrNoImageBackend("SD WebUI at " + cfg.SDAPIURL + " is unreachable (" + probeErr.Error() + ") and OPENAI_API_KEY is not set")
}
