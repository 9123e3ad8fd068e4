package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Image backend identifiers accepted by IMAGE_BACKEND.
const (
	ImageBackendAuto   = "auto"
	ImageBackendSDAPI  = "sdapi"
	ImageBackendOpenAI = "openai"
)

// Config holds all configuration values
type Config struct {
	// Logging
	DevMode  bool
	LogFile  string
	LogLevel string

	// Web UI
	Host          string
	Port          int
	WebUIPassword string

	// Sample store
	SamplesDir string

	// Text refinement backend (OpenAI-compatible chat completions)
	OpenAIAPIKey string
	TextLLMURL   string
	TextLLMModel string

	// Image backend selection
	ImageBackend     string
	SDAPIURL         string
	OpenAIImageURL   string
	OpenAIImageModel string

	// Diffusion parameters
	SDInferenceSteps int
	SDGuidanceScale  float64
	SDImageSize      int
	SDNegativePrompt string

	// Processing
	AITimeout            time.Duration
	GenerationTimeout    time.Duration
	AllowSelfSignedCerts bool
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse integer environment variable with default value.
// Unlike getEnvOrDefault, a malformed value is reported rather than ignored.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, ErrInvalidValue(key, value, "expected an integer")
	}
	return intValue, nil
}

// Helper function to parse float64 environment variable with default value
func parseFloat64Env(key string, defaultValue float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, ErrInvalidValue(key, value, "expected a number")
	}
	return floatValue, nil
}

func parseBoolEnv(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

// LoadConfig loads configuration from environment variables with defaults
// suitable for a single-machine deployment against local model servers.
func LoadConfig() (*Config, error) {
	port, err := parseIntEnv("PORT", 8501)
	if err != nil {
		return nil, err
	}
	steps, err := parseIntEnv("SD_INFERENCE_STEPS", 30)
	if err != nil {
		return nil, err
	}
	guidance, err := parseFloat64Env("SD_GUIDANCE_SCALE", 7.5)
	if err != nil {
		return nil, err
	}
	imageSize, err := parseIntEnv("SD_IMAGE_SIZE", 512)
	if err != nil {
		return nil, err
	}
	aiTimeout, err := parseIntEnv("AI_TIMEOUT", 300)
	if err != nil {
		return nil, err
	}
	generationTimeout, err := parseIntEnv("GENERATION_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		openAIKey = os.Getenv("OPENAI_KEY") // Legacy support
	}

	cfg := &Config{
		DevMode:  parseBoolEnv("DEV_MODE"),
		LogFile:  getEnvOrDefault("LOG_FILE", "promptpaint.log"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		Host:          getEnvOrDefault("HOST", "localhost"),
		Port:          port,
		WebUIPassword: os.Getenv("WEBUI_PWD"),

		SamplesDir: getEnvOrDefault("SAMPLES_DIR", "data/samples"),

		OpenAIAPIKey: openAIKey,
		TextLLMURL:   getEnvOrDefault("TEXT_LLM_URL", "http://127.0.0.1:1234/v1"),
		TextLLMModel: getEnvOrDefault("TEXT_LLM_MODEL", "flan-t5-small"),

		ImageBackend:     strings.ToLower(getEnvOrDefault("IMAGE_BACKEND", ImageBackendAuto)),
		SDAPIURL:         getEnvOrDefault("SD_API_URL", "http://127.0.0.1:7860"),
		OpenAIImageURL:   getEnvOrDefault("IMAGE_LLM_URL", "https://api.openai.com/v1"),
		OpenAIImageModel: getEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-2"),

		SDInferenceSteps: steps,
		SDGuidanceScale:  guidance,
		SDImageSize:      imageSize,
		SDNegativePrompt: os.Getenv("SD_NEGATIVE_PROMPT"),

		AITimeout:            time.Duration(aiTimeout) * time.Second,
		GenerationTimeout:    time.Duration(generationTimeout) * time.Second,
		AllowSelfSignedCerts: parseBoolEnv("ALLOW_SELF_SIGNED_CERTS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. It is called by LoadConfig and is exported
// so tests and callers building a Config by hand get the same checks.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("PORT", strconv.Itoa(c.Port), "must be between 1 and 65535")
	}
	switch c.ImageBackend {
	case ImageBackendAuto, ImageBackendSDAPI, ImageBackendOpenAI:
	default:
		return ErrInvalidValue("IMAGE_BACKEND", c.ImageBackend, "must be one of auto, sdapi, openai")
	}
	if c.SDInferenceSteps < 1 || c.SDInferenceSteps > 150 {
		return ErrInvalidValue("SD_INFERENCE_STEPS", strconv.Itoa(c.SDInferenceSteps), "must be between 1 and 150")
	}
	if c.SDGuidanceScale < 1.0 || c.SDGuidanceScale > 30.0 {
		return ErrInvalidValue("SD_GUIDANCE_SCALE", fmt.Sprintf("%.2f", c.SDGuidanceScale), "must be between 1.0 and 30.0")
	}
	if c.SDImageSize%8 != 0 || c.SDImageSize < 128 || c.SDImageSize > 2048 {
		return ErrInvalidValue("SD_IMAGE_SIZE", strconv.Itoa(c.SDImageSize), "must be divisible by 8 and between 128 and 2048")
	}
	if c.AITimeout < 0 {
		return ErrInvalidValue("AI_TIMEOUT", c.AITimeout.String(), "must not be negative")
	}
	if c.GenerationTimeout < 0 {
		return ErrInvalidValue("GENERATION_TIMEOUT", c.GenerationTimeout.String(), "must not be negative")
	}
	if strings.TrimSpace(c.SamplesDir) == "" {
		return ErrMissingConfig("SAMPLES_DIR")
	}
	if c.ImageBackend == ImageBackendOpenAI && c.OpenAIAPIKey == "" {
		return ErrMissingAuth("openai")
	}
	return nil
}

// Addr returns the host:port the web UI listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts
// This should be used for all HTTP requests to model backends to ensure TLS configuration is respected
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
