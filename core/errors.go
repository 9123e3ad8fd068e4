package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidValue  = "INVALID_VALUE"
	ErrCodeMissingAuth   = "MISSING_AUTH"
	ErrCodeMissingConfig = "MISSING_CONFIG"
	ErrCodeNoBackend     = "NO_IMAGE_BACKEND"
)

// ErrInvalidValue returns an error for an environment variable that failed to parse or validate
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s value '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or unset it to use the default", varName),
	}
}

// ErrMissingAuth returns an error for missing authentication credentials
func ErrMissingAuth(service string) *ConfigError {
	var action string
	switch service {
	case "openai":
		action = "Set OPENAI_API_KEY in your .env file (or use IMAGE_BACKEND=sdapi with a local Stable Diffusion WebUI)"
	case "text model":
		action = "Set OPENAI_API_KEY in your .env file, or point TEXT_LLM_URL at a local server"
	default:
		action = fmt.Sprintf("Set the required API key for %s in your .env file", service)
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing authentication credentials for %s", service),
		Action:  action,
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrNoImageBackend returns an error when no image backend can be selected at startup
func ErrNoImageBackend(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeNoBackend,
		Message: fmt.Sprintf("No image generation backend available: %s", reason),
		Action:  "Start a Stable Diffusion WebUI with --api and set SD_API_URL, or set OPENAI_API_KEY",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
