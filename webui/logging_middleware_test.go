package webui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"promptpaint/logging"
	"promptpaint/metrics"
)

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m := NewLoggingMiddleware(logging.FromCore(core), collector, []string{"/health"})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := m.Handler(mux)

	tests := []struct {
		method    string
		path      string
		wantLevel zapcore.Level
		wantCode  int
	}{
		{http.MethodGet, "/health", zapcore.DebugLevel, http.StatusOK},
		{http.MethodPost, "/api/generate", zapcore.ErrorLevel, http.StatusInternalServerError},
		{http.MethodGet, "/teapot", zapcore.WarnLevel, http.StatusTeapot},
		{http.MethodGet, "/missing", zapcore.WarnLevel, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			before := logs.Len()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			entries := logs.All()[before:]
			if len(entries) != 1 {
				t.Fatalf("got %d log entries, want 1", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", entry.Level, tt.wantLevel)
			}
			fields := entry.ContextMap()
			if fields["status"] != int64(tt.wantCode) {
				t.Errorf("status field = %v, want %d", fields["status"], tt.wantCode)
			}
			if fields["path"] != tt.path {
				t.Errorf("path field = %v, want %s", fields["path"], tt.path)
			}
		})
	}

	scrape := httptest.NewRecorder()
	collector.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, want := range []string{
		`promptpaint_http_requests_total{method="POST",path="POST /api/generate",status="500"} 1`,
		`promptpaint_http_requests_total{method="GET",path="unmatched",status="404"} 1`,
	} {
		if !strings.Contains(scrape.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestResponseWriterWrapper_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriterWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	w.Write([]byte("hello"))
	w.WriteHeader(http.StatusInternalServerError)

	if w.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200 (first write wins)", w.statusCode)
	}
	if w.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", w.bytesWritten)
	}
}
