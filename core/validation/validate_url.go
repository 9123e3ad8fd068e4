package validation

import (
	"net/url"
	"strings"

	"promptpaint/core"
)

// ValidateEndpointURL checks that rawURL is an absolute http(s) URL.
// varName is the environment variable the value came from and is used in the
// returned *core.ConfigError.
func ValidateEndpointURL(varName, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return core.ErrMissingConfig(varName)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return core.ErrInvalidValue(varName, rawURL, err.Error())
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return core.ErrInvalidValue(varName, rawURL, "must use http or https")
	}
	if parsed.Host == "" {
		return core.ErrInvalidValue(varName, rawURL, "must include a host")
	}
	return nil
}
