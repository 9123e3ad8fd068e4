package auth

import (
	"context"
	"sync"
	"time"
)

type attemptRecord struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts failed authentication attempts per client IP.
//
// Each failure increments the counter for the current window. Reaching
// maxAttempts extends the window to the block duration; a successful login
// resets the counter.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(maxAttempts int, window, block time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
		now:         time.Now,
	}
}

// Allow reports whether ip may attempt authentication, and if not, how long
// until the block lifts.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	now := r.now()
	if !exists || !now.Before(record.resetAt) {
		return true, 0
	}
	if record.count >= r.maxAttempts {
		return false, record.resetAt.Sub(now)
	}
	return true, 0
}

// RecordAttempt records one failed attempt for ip.
func (r *RateLimiter) RecordAttempt(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[ip]
	if !exists || !now.Before(record.resetAt) {
		record = attemptRecord{resetAt: now.Add(r.window)}
	}
	record.count++
	if record.count == r.maxAttempts {
		record.resetAt = now.Add(r.block)
	}
	r.attempts[ip] = record
}

// Reset clears the record for ip after a successful login.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.attempts, ip)
	r.mu.Unlock()
}

// Cleanup removes expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for ip, record := range r.attempts {
		if !now.Before(record.resetAt) {
			delete(r.attempts, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked IPs.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}

// AttemptCount returns the failures recorded for ip in the current window.
func (r *RateLimiter) AttemptCount(ip string) int {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	if !exists || !r.now().Before(record.resetAt) {
		return 0
	}
	return record.count
}
