// Package llm builds OpenAI-compatible clients shared by the prompt refiner
// and the OpenAI image backend.
package llm

import (
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig holds what every OpenAI-compatible endpoint needs.
type ClientConfig struct {
	// APIKey may be empty for local servers such as LM Studio or Ollama.
	APIKey string

	// BaseURL is the endpoint root, e.g. http://127.0.0.1:1234/v1.
	// Empty means api.openai.com.
	BaseURL string

	// HTTPClient should come from core.GetHTTPClient so TLS and timeout
	// settings are respected.
	HTTPClient *http.Client
}

// NewClient creates a go-openai client from cfg.
//
//	client := llm.NewClient(llm.ClientConfig{
//	    APIKey:     cfg.OpenAIAPIKey,
//	    BaseURL:    cfg.TextLLMURL,
//	    HTTPClient: core.GetHTTPClient(cfg, cfg.AITimeout),
//	})
func NewClient(cfg ClientConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientConfig.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientConfig)
}

// IsLocalEndpoint reports whether url points at this machine. Local text
// servers usually run without a key, so callers skip the key check for them.
func IsLocalEndpoint(url string) bool {
	lowered := strings.ToLower(url)
	for _, pattern := range []string{"127.0.0.1", "localhost", "0.0.0.0", "[::1]"} {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
