package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ShutdownFunc releases one resource. It should honour ctx's deadline.
type ShutdownFunc func(ctx context.Context) error

type registryEntry struct {
	name     string
	priority int
	fn       ShutdownFunc
}

// registry runs cleanup functions once, lowest priority first. Entries with
// equal priority run in registration order.
type registry struct {
	mu      sync.Mutex
	entries []registryEntry
	ran     bool
}

func (r *registry) register(name string, priority int, fn ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ran {
		return
	}
	r.entries = append(r.entries, registryEntry{name: name, priority: priority, fn: fn})
}

func (r *registry) sorted() []registryEntry {
	out := append([]registryEntry(nil), r.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// run executes every entry once and collects failures.
func (r *registry) run(ctx context.Context) []error {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return nil
	}
	r.ran = true
	entries := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

func (r *registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}
