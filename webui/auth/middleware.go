package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"promptpaint/logging"
)

// Defaults for Config.
const (
	DefaultRateLimitAttempts = 5
	DefaultRateLimitWindow   = time.Minute
	DefaultRateLimitBlock    = 5 * time.Minute
	DefaultRealm             = "promptpaint"
)

// Config holds configuration options for BasicAuth.
type Config struct {
	// Cost is the bcrypt cost for hashing the password (default: DefaultCost).
	Cost int

	RateLimitAttempts int
	RateLimitWindow   time.Duration
	RateLimitBlock    time.Duration

	Realm string

	// SkipPaths are served without credentials, e.g. /health.
	SkipPaths []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cost:              DefaultCost,
		RateLimitAttempts: DefaultRateLimitAttempts,
		RateLimitWindow:   DefaultRateLimitWindow,
		RateLimitBlock:    DefaultRateLimitBlock,
		Realm:             DefaultRealm,
		SkipPaths:         []string{"/health"},
	}
}

// BasicAuth is HTTP Basic middleware checking a single shared password.
// The user name is ignored. Failed attempts are rate limited per client IP.
type BasicAuth struct {
	passwordHash string
	limiter      *RateLimiter
	logger       *logging.Logger
	realm        string
	skipPaths    map[string]bool

	// digest of the last password that passed bcrypt, so browsers that
	// resend credentials on every request do not pay the bcrypt cost each time.
	mu       sync.RWMutex
	verified []byte
}

// NewBasicAuth hashes password and returns the middleware.
func NewBasicAuth(password string, logger *logging.Logger, cfg Config) (*BasicAuth, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.Cost == 0 {
		cfg.Cost = defaults.Cost
	}
	if cfg.RateLimitAttempts == 0 {
		cfg.RateLimitAttempts = defaults.RateLimitAttempts
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = defaults.RateLimitWindow
	}
	if cfg.RateLimitBlock == 0 {
		cfg.RateLimitBlock = defaults.RateLimitBlock
	}
	if cfg.Realm == "" {
		cfg.Realm = defaults.Realm
	}

	hash, err := HashPassword(password, cfg.Cost)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return &BasicAuth{
		passwordHash: hash,
		limiter:      NewRateLimiter(cfg.RateLimitAttempts, cfg.RateLimitWindow, cfg.RateLimitBlock),
		logger:       logger.Named("auth"),
		realm:        cfg.Realm,
		skipPaths:    skip,
	}, nil
}

// Middleware wraps next with authentication.
func (a *BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if allowed, remaining := a.limiter.Allow(ip); !allowed {
			a.logger.Warn("rate limit exceeded",
				zap.String("ip", ip),
				zap.Duration("remaining", remaining),
			)
			w.Header().Set("Retry-After", formatRetryAfter(remaining))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok {
			a.challenge(w)
			return
		}
		if err := a.verify(password); err != nil {
			a.limiter.RecordAttempt(ip)
			a.logger.Info("failed authentication attempt",
				zap.String("ip", ip),
				zap.Int("attempts", a.limiter.AttemptCount(ip)),
			)
			a.challenge(w)
			return
		}

		a.limiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

// RateLimiter exposes the limiter so the caller can start its cleanup ticker.
func (a *BasicAuth) RateLimiter() *RateLimiter {
	return a.limiter
}

func (a *BasicAuth) verify(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	digest := sha256.Sum256([]byte(password))

	a.mu.RLock()
	cached := a.verified
	a.mu.RUnlock()
	if cached != nil && subtle.ConstantTimeCompare(cached, digest[:]) == 1 {
		return nil
	}

	if err := VerifyPassword(password, a.passwordHash); err != nil {
		return err
	}
	a.mu.Lock()
	a.verified = digest[:]
	a.mu.Unlock()
	return nil
}

func (a *BasicAuth) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// ClientIP extracts the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// formatRetryAfter formats a duration as seconds for the Retry-After header.
func formatRetryAfter(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
