package inject

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samber/do"

	"promptpaint/core"
	"promptpaint/imagegen"
	"promptpaint/logging"
	"promptpaint/pipeline"
	"promptpaint/shutdown"
	"promptpaint/webui"
)

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Host:              "127.0.0.1",
		Port:              7860,
		SamplesDir:        t.TempDir(),
		TextLLMURL:        "http://127.0.0.1:1/v1",
		TextLLMModel:      "flan-t5-small",
		ImageBackend:      core.ImageBackendSDAPI,
		SDAPIURL:          "http://127.0.0.1:1",
		OpenAIImageModel:  "dall-e-2",
		SDInferenceSteps:  30,
		SDGuidanceScale:   7.5,
		SDImageSize:       512,
		AITimeout:         time.Second,
		GenerationTimeout: 0,
	}
}

func TestSetup_BuildsServer(t *testing.T) {
	injector := Setup(context.Background(), testConfig(t), logging.NewNop())

	server, err := do.Invoke[*webui.Server](injector)
	if err != nil {
		t.Fatalf("invoke server: %v", err)
	}
	if server.Addr() != "127.0.0.1:7860" {
		t.Errorf("Addr() = %q, want 127.0.0.1:7860", server.Addr())
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(rec.Body.String(), core.GetVersionInfo()) {
		t.Errorf("/health body = %s, want build info %q", rec.Body.String(), core.GetVersionInfo())
	}

	generator := do.MustInvoke[*imagegen.Generator](injector)
	if generator.Backend() != "sdapi" {
		t.Errorf("Backend() = %q, want sdapi", generator.Backend())
	}

	// Singletons: the server and main share one shutdown manager.
	if do.MustInvoke[*shutdown.Manager](injector) != do.MustInvoke[*shutdown.Manager](injector) {
		t.Error("shutdown manager should be a singleton")
	}
	if do.MustInvoke[*pipeline.Orchestrator](injector) == nil {
		t.Error("orchestrator should not be nil")
	}
}

func TestSetup_AuthWrapsRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.WebUIPassword = "hunter2"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := do.MustInvoke[*webui.Server](Setup(ctx, cfg, logging.NewNop()))
	handler := server.Handler()

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/", http.StatusUnauthorized},
		{"/api/status", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestSetup_NoImageBackend(t *testing.T) {
	sd := httptest.NewServer(http.NotFoundHandler())
	sd.Close()

	cfg := testConfig(t)
	cfg.ImageBackend = core.ImageBackendAuto
	cfg.SDAPIURL = sd.URL

	injector := Setup(context.Background(), cfg, logging.NewNop())

	_, err := do.Invoke[*webui.Server](injector)
	if err == nil {
		t.Fatal("expected error when no image backend is usable")
	}
	if code := core.GetErrorCode(err); code != core.ErrCodeNoBackend {
		t.Errorf("error code = %q, want %q (err: %v)", code, core.ErrCodeNoBackend, err)
	}
}
