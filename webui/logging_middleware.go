package webui

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"promptpaint/logging"
	"promptpaint/metrics"
	"promptpaint/webui/auth"
)

// LoggingMiddleware is a molecule that logs every HTTP request with method,
// route, status code and duration, and counts it in the Prometheus collector.
//
// Safe for concurrent HTTP requests.
type LoggingMiddleware struct {
	logger    *logging.Logger
	collector *metrics.Collector

	// skipPaths are logged at debug level only (health checks, scrapes)
	skipPaths map[string]bool
}

// NewLoggingMiddleware creates a LoggingMiddleware. collector may be nil.
func NewLoggingMiddleware(logger *logging.Logger, collector *metrics.Collector, skipPaths []string) *LoggingMiddleware {
	if logger == nil {
		logger = logging.NewNop()
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &LoggingMiddleware{
		logger:    logger.Named("http"),
		collector: collector,
		skipPaths: skip,
	}
}

// Handler wraps next with request logging.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// The mux fills in Pattern, which keeps the metric label set small.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.collector.RecordHTTPRequest(r.Method, route, wrapped.statusCode)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", auth.ClientIP(r)),
			zap.Int64("bytes", wrapped.bytesWritten),
		}
		switch {
		case m.skipPaths[r.URL.Path]:
			m.logger.Debug("request", fields...)
		case wrapped.statusCode >= 500:
			m.logger.Error("request", fields...)
		case wrapped.statusCode >= 400:
			m.logger.Warn("request", fields...)
		default:
			m.logger.Info("request", fields...)
		}
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

// WriteHeader captures the status code
func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the bytes written and ensures header is written
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying writer supports it
func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
