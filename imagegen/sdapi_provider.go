package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoImages is returned when a backend answers successfully with no image.
var ErrNoImages = errors.New("imagegen: backend returned no images")

// APIError is a non-2xx answer from the Stable Diffusion WebUI.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("imagegen: sdapi returned %d: %s", e.StatusCode, e.Body)
}

// SDAPIProvider talks to an AUTOMATIC1111 or Forge WebUI started with --api.
type SDAPIProvider struct {
	baseURL string
	client  *http.Client
}

// NewSDAPIProvider creates a provider rooted at baseURL, e.g.
// http://127.0.0.1:7860.
func NewSDAPIProvider(baseURL string, client *http.Client) *SDAPIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &SDAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           int64   `json:"seed"`
	BatchSize      int     `json:"batch_size"`
	NIter          int     `json:"n_iter"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

func (p *SDAPIProvider) Name() string { return "sdapi" }

// Generate posts to /sdapi/v1/txt2img and decodes the first image.
func (p *SDAPIProvider) Generate(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		CFGScale:       req.GuidanceScale,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           req.Seed,
		BatchSize:      1,
		NIter:          1,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("imagegen: decode txt2img response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, ErrNoImages
	}
	return decodeBase64Image(out.Images[0])
}

// Ping checks that the WebUI API is up by listing its samplers.
func (p *SDAPIProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/sdapi/v1/samplers", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	return nil
}

// decodeBase64Image accepts plain base64 or a data: URL.
func decodeBase64Image(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("imagegen: decode base64 image: %w", err)
	}
	return data, nil
}

var _ Provider = (*SDAPIProvider)(nil)
