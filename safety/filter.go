// Package safety screens prompts against a denylist before any model runs.
package safety

import (
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"promptpaint/logging"
)

// DefaultDenylist is checked in order; the first hit is the one reported.
var DefaultDenylist = []string{
	"nude", "blood", "kill", "weapon", "violence", "sex", "nsfw",
	"gore", "murder", "suicide", "drugs",
}

// RejectionRecorder counts rejected prompts by matched term.
type RejectionRecorder interface {
	RecordSafetyRejection(term string)
}

// Filter is a case-insensitive substring denylist. Matching is deliberately
// naive: "killer whale" contains "kill" and is rejected.
type Filter struct {
	terms    []string
	logger   *logging.Logger
	recorder RejectionRecorder
}

// Option configures a Filter.
type Option func(*Filter)

// WithTerms replaces the denylist. Terms are lower-cased; blanks are dropped.
func WithTerms(terms []string) Option {
	return func(f *Filter) {
		f.terms = normalizeTerms(terms)
	}
}

// WithRecorder reports each rejection to r.
func WithRecorder(r RejectionRecorder) Option {
	return func(f *Filter) {
		f.recorder = r
	}
}

// NewFilter builds a Filter over DefaultDenylist unless WithTerms is given.
func NewFilter(logger *logging.Logger, opts ...Option) *Filter {
	if logger == nil {
		logger = logging.NewNop()
	}
	f := &Filter{
		terms:  normalizeTerms(DefaultDenylist),
		logger: logger.Named("safety"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsSafe reports whether prompt may proceed. It never fails.
func (f *Filter) IsSafe(prompt string) bool {
	_, ok := f.Check(prompt)
	return ok
}

// Check returns the first denylisted term found in prompt and false, or
// ("", true) when the prompt is clean. The empty prompt is clean.
func (f *Filter) Check(prompt string) (string, bool) {
	lowered := strings.ToLower(prompt)
	term, found := lo.Find(f.terms, func(t string) bool {
		return strings.Contains(lowered, t)
	})
	if !found {
		f.logger.Debug("prompt passed safety filter")
		return "", true
	}

	f.logger.Warn("safety filter triggered", zap.String("term", term))
	if f.recorder != nil {
		f.recorder.RecordSafetyRejection(term)
	}
	return term, false
}

func normalizeTerms(terms []string) []string {
	return lo.FilterMap(terms, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	})
}
