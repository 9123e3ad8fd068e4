package webui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"promptpaint/imagegen"
	"promptpaint/metrics"
	"promptpaint/pipeline"
	"promptpaint/samples"
	"promptpaint/shutdown"
	"promptpaint/webui/auth"
)

type call struct {
	prompt  string
	enhance bool
}

var stubSavedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stubGenerator saves under the same name the sample store would use.
type stubGenerator struct {
	mu    sync.Mutex
	dir   string
	data  []byte
	err   error
	calls []call
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, enhance bool) (*pipeline.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{prompt, enhance})
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	path := filepath.Join(g.dir, samples.FileName(prompt, stubSavedAt))
	if err := os.WriteFile(path, g.data, 0644); err != nil {
		return nil, err
	}
	return &pipeline.Result{
		Image:         &imagegen.Image{Data: g.data, Width: 512, Height: 512, Seed: 42},
		Prompt:        "refined: " + prompt,
		Path:          path,
		CorrelationID: "abcd1234",
	}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type testServer struct {
	gen       *stubGenerator
	history   *metrics.History
	collector *metrics.Collector
	handler   http.Handler
}

func newTestServer(t *testing.T, opts ...ServerOption) *testServer {
	t.Helper()
	dir := t.TempDir()
	ts := &testServer{
		gen:       &stubGenerator{dir: dir, data: pngBytes(t, 512, 512)},
		history:   metrics.NewHistory(10, "test", "stub", time.Now()),
		collector: metrics.NewCollector(prometheus.NewRegistry()),
	}

	cfg := DefaultServerConfig()
	cfg.SamplesDir = dir
	cfg.Version = "test"
	opts = append([]ServerOption{WithHistory(ts.history), WithCollector(ts.collector)}, opts...)

	server, err := NewServer(cfg, ts.gen, opts...)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts.handler = server.Handler()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postForm(values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func (ts *testServer) postJSON(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func TestNewServer_RequiresGenerator(t *testing.T) {
	if _, err := NewServer(DefaultServerConfig(), nil); err == nil {
		t.Error("NewServer(nil generator) error = nil")
	}
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`<textarea name="prompt"`, `name="enhance" value="on" checked`, `>Generate</button>`} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}

	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}

func TestGenerateForm_BlankPrompt(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.postForm(url.Values{"prompt": {"   \n "}, "enhance": {"on"}})

	if !strings.Contains(rec.Body.String(), BlankPromptMessage) {
		t.Errorf("body missing %q", BlankPromptMessage)
	}
	if len(ts.gen.calls) != 0 {
		t.Errorf("generator called %d times for blank prompt", len(ts.gen.calls))
	}
}

func TestGenerateForm_Success(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.postForm(url.Values{"prompt": {"a red fox"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ts.gen.calls) != 1 || ts.gen.calls[0] != (call{"a red fox", false}) {
		t.Fatalf("calls = %+v, want one call with enhance=false", ts.gen.calls)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Prompt used: refined: a red fox",
		"Image saved at: " + filepath.Join(ts.gen.dir, "a_red_fox_20260301_120000.png"),
		`src="data:image/png;base64,`,
		`width="256"`,
		`href="/samples/a_red_fox_20260301_120000.png"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, " checked") {
		t.Error("enhance checkbox should stay unchecked when it was not submitted")
	}
}

func TestGenerateForm_PreviewIsScaled(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.postForm(url.Values{"prompt": {"a red fox"}, "enhance": {"on"}})

	body := rec.Body.String()
	start := strings.Index(body, "data:image/png;base64,")
	if start < 0 {
		t.Fatal("no preview in body")
	}
	encoded := body[start+len("data:image/png;base64,"):]
	encoded = encoded[:strings.IndexByte(encoded, '"')]
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	w, h, err := imagegen.DecodePNGConfig(data)
	if err != nil {
		t.Fatalf("DecodePNGConfig() error = %v", err)
	}
	if w != 256 || h != 256 {
		t.Errorf("preview = %dx%d, want 256x256", w, h)
	}
}

func TestGenerateForm_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unsafe", &pipeline.UnsafePromptError{Term: "gore"}, "Error: Unsafe or inappropriate content detected in the prompt!"},
		{"backend", errors.New("connection refused"), "Error: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.gen.err = tt.err
			rec := ts.postForm(url.Values{"prompt": {"anything at all"}, "enhance": {"on"}})

			body := rec.Body.String()
			if !strings.Contains(body, tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
			if strings.Contains(body, "Image saved at") {
				t.Error("error page shows a saved image")
			}
		})
	}
}

func TestGenerateAPI(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		err         error
		wantStatus  int
		wantEnhance bool
	}{
		{"success default enhance", `{"prompt":"a red fox"}`, nil, http.StatusOK, true},
		{"success no enhance", `{"prompt":"a red fox","enhance":false}`, nil, http.StatusOK, false},
		{"blank prompt", `{"prompt":"  "}`, nil, http.StatusBadRequest, false},
		{"bad json", `{"prompt":`, nil, http.StatusBadRequest, false},
		{"unsafe", `{"prompt":"gore"}`, &pipeline.UnsafePromptError{Term: "gore"}, http.StatusUnprocessableEntity, true},
		{"backend failure", `{"prompt":"a red fox"}`, errors.New("CUDA out of memory"), http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.gen.err = tt.err
			rec := ts.postJSON(tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code == http.StatusBadRequest {
				if len(ts.gen.calls) != 0 {
					t.Error("generator called for a bad request")
				}
				return
			}
			if ts.gen.calls[0].enhance != tt.wantEnhance {
				t.Errorf("enhance = %v, want %v", ts.gen.calls[0].enhance, tt.wantEnhance)
			}
			if rec.Code != http.StatusOK {
				var resp errorResponse
				json.NewDecoder(rec.Body).Decode(&resp)
				if resp.Error != tt.err.Error() {
					t.Errorf("error = %q, want %q", resp.Error, tt.err.Error())
				}
				return
			}

			var resp GenerateResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Prompt != "refined: a red fox" || resp.Width != 512 || resp.Height != 512 || resp.CorrelationID != "abcd1234" {
				t.Errorf("response = %+v", resp)
			}
			data, _ := base64.StdEncoding.DecodeString(resp.ImageBase64)
			if !bytes.Equal(data, ts.gen.data) {
				t.Error("image_base64 does not round-trip to the generated image")
			}
		})
	}
}

func TestSamples(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(`{"prompt":"a red fox"}`)
	ts.postJSON(`{"prompt":"...a cat"}`)
	os.WriteFile(filepath.Join(ts.gen.dir, "notes.txt"), []byte("x"), 0644)

	tests := []struct {
		path   string
		wantOK bool
	}{
		{"/samples/a_red_fox_20260301_120000.png", true},
		{"/samples/missing.png", false},
		{"/samples/notes.txt", false},
		{"/samples/..%2Fsecret.png", false},
		{"/samples/%2E%2E", false},
		{"/samples/.hidden.png", false},
		{"/samples/...a_cat_20260301_120000.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			if (rec.Code == http.StatusOK) != tt.wantOK {
				t.Errorf("status = %d, want OK = %v", rec.Code, tt.wantOK)
			}
			if tt.wantOK && rec.Header().Get("Content-Type") != "image/png" {
				t.Errorf("Content-Type = %q, want image/png", rec.Header().Get("Content-Type"))
			}
		})
	}
}

var sampleHref = regexp.MustCompile(`href="(/samples/[^"]+)"`)

func TestGenerateForm_SampleLinkResolves(t *testing.T) {
	prompts := []string{
		"a red fox",
		"what? a red fox",
		"fox #1 in snow",
		"100% red fox",
		"...a cat on a mat",
		"cats & dogs",
	}

	for _, prompt := range prompts {
		t.Run(prompt, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.postForm(url.Values{"prompt": {prompt}})

			m := sampleHref.FindStringSubmatch(rec.Body.String())
			if m == nil {
				t.Fatalf("no sample link in page:\n%s", rec.Body.String())
			}
			href := html.UnescapeString(m[1])

			got := ts.do(httptest.NewRequest(http.MethodGet, href, nil))
			if got.Code != http.StatusOK {
				t.Fatalf("GET %s = %d, want 200", href, got.Code)
			}
			if !bytes.Equal(got.Body.Bytes(), ts.gen.data) {
				t.Error("served bytes differ from the saved image")
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("GET /health = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `promptpaint_http_requests_total{method="GET",path="GET /health",status="200"} 1`) {
		t.Errorf("metrics missing /health request counter:\n%s", body)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.history.Record(metrics.GenerationRecord{Status: metrics.StatusSuccess, Prompt: "p", StartTime: time.Now()})
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/status?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Summary.Total != 3 || len(resp.Recent) != 2 {
		t.Errorf("summary total = %d, recent = %d; want 3 and 2", resp.Summary.Total, len(resp.Recent))
	}

	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/status?limit=zero", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestAuthWrapsRoutes(t *testing.T) {
	cfg := auth.DefaultConfig()
	cfg.Cost = bcrypt.MinCost
	basic, err := auth.NewBasicAuth("letmein", nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, WithAuth(basic.Middleware))

	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("GET / without credentials = %d, want 401", rec.Code)
	}
	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("GET /health without credentials = %d, want 200", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("", "letmein")
	if rec := ts.do(req); rec.Code != http.StatusOK {
		t.Errorf("GET / with password = %d, want 200", rec.Code)
	}
}

func TestGenerateRejectedDuringShutdown(t *testing.T) {
	m := shutdown.NewManager(nil, shutdown.WithTimeout(time.Second))
	ts := newTestServer(t, WithOperations(m))

	if rec := ts.postJSON(`{"prompt":"a red fox"}`); rec.Code != http.StatusOK {
		t.Fatalf("status before shutdown = %d, want 200", rec.Code)
	}
	m.Shutdown()

	if rec := ts.postJSON(`{"prompt":"a red fox"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", rec.Code)
	}
	if len(ts.gen.calls) != 1 {
		t.Errorf("generator calls = %d, want 1", len(ts.gen.calls))
	}
}
