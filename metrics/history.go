package metrics

import (
	"sync"
	"time"
)

// Generation statuses recorded in History.
const (
	StatusSuccess = "success"
	StatusUnsafe  = "unsafe"
	StatusError   = "error"
)

// GenerationRecord describes one finished Generate call.
type GenerationRecord struct {
	CorrelationID string        `json:"correlation_id"`
	Prompt        string        `json:"prompt"`
	FinalPrompt   string        `json:"final_prompt,omitempty"`
	Enhance       bool          `json:"enhance"`
	Status        string        `json:"status"`
	Path          string        `json:"path,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	Duration      time.Duration `json:"duration"`
}

// Summary aggregates everything recorded since start.
type Summary struct {
	Version     string        `json:"version"`
	Backend     string        `json:"backend"`
	Uptime      time.Duration `json:"uptime"`
	Total       int64         `json:"total"`
	Success     int64         `json:"success"`
	Unsafe      int64         `json:"unsafe"`
	Errors      int64         `json:"errors"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// History is a fixed-size ring of recent generations plus running totals.
// Nothing is persisted; it resets with the process.
type History struct {
	mu sync.RWMutex

	records []GenerationRecord
	head    int
	size    int

	total, success, unsafe, errors int64
	successDuration                time.Duration

	startTime time.Time
	version   string
	backend   string
}

// NewHistory creates a History holding at most capacity records.
func NewHistory(capacity int, version, backend string, startTime time.Time) *History {
	if capacity < 1 {
		capacity = 20
	}
	return &History{
		records:   make([]GenerationRecord, capacity),
		startTime: startTime,
		version:   version,
		backend:   backend,
	}
}

// Record appends r, evicting the oldest record when full.
func (h *History) Record(r GenerationRecord) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[h.head] = r
	h.head = (h.head + 1) % len(h.records)
	if h.size < len(h.records) {
		h.size++
	}

	h.total++
	switch r.Status {
	case StatusSuccess:
		h.success++
		h.successDuration += r.Duration
	case StatusUnsafe:
		h.unsafe++
	default:
		h.errors++
	}
}

// Recent returns up to limit records, newest first.
func (h *History) Recent(limit int) []GenerationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || h.size == 0 {
		return []GenerationRecord{}
	}
	if limit > h.size {
		limit = h.size
	}

	n := len(h.records)
	result := make([]GenerationRecord, limit)
	for i := 0; i < limit; i++ {
		result[i] = h.records[(h.head-1-i+n)%n]
	}
	return result
}

// Summary returns the running totals.
func (h *History) Summary() Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Summary{
		Version: h.version,
		Backend: h.backend,
		Uptime:  time.Since(h.startTime),
		Total:   h.total,
		Success: h.success,
		Unsafe:  h.unsafe,
		Errors:  h.errors,
	}
	if h.success > 0 {
		s.AvgDuration = h.successDuration / time.Duration(h.success)
	}
	return s
}
