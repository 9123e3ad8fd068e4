package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConnectivityResult represents the result of a connectivity check.
type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker probes model endpoints over HTTP.
// This is a molecule that composes URL validation with a GET request.
type ConnectivityChecker struct {
	client *http.Client
}

// NewConnectivityChecker creates a checker. client should come from
// core.GetHTTPClient so the TLS settings match the real backends; nil uses a
// client with a 10 second timeout.
func NewConnectivityChecker(client *http.Client) *ConnectivityChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ConnectivityChecker{client: client}
}

// Check issues GET endpoint. Any HTTP response counts as reachable; the
// status code is reported so callers can tell a 401 from a 200.
func (c *ConnectivityChecker) Check(ctx context.Context, varName, endpoint string) ConnectivityResult {
	if err := ValidateEndpointURL(varName, endpoint); err != nil {
		return ConnectivityResult{Message: "Invalid URL format", Error: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ConnectivityResult{Message: "Failed to create request", Error: err}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return ConnectivityResult{
				Message: "Connection timed out",
				Latency: latency,
				Error:   fmt.Errorf("%s unreachable: %w", endpoint, err),
			}
		}
		return ConnectivityResult{
			Message: "Connection failed",
			Latency: latency,
			Error:   fmt.Errorf("%s unreachable: %w", endpoint, err),
		}
	}
	defer resp.Body.Close()

	return ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("reachable (status: %d)", resp.StatusCode),
		Latency:    latency,
	}
}
