package imagegen

import "context"

// Request carries everything a backend needs for one render.
type Request struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	Seed           int64
}

// Provider is an image backend. Generate returns the first image of the
// batch as PNG bytes. Errors are returned as produced by the backend.
type Provider interface {
	Generate(ctx context.Context, req Request) ([]byte, error)

	// Name identifies the backend in logs, e.g. "sdapi".
	Name() string
}

// Pinger is implemented by providers that can check reachability without
// rendering.
type Pinger interface {
	Ping(ctx context.Context) error
}
