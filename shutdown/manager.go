// Package shutdown coordinates graceful termination: it waits for in-flight
// generations, then runs registered cleanup in priority order.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"promptpaint/core"
	"promptpaint/logging"
)

// DefaultTimeout covers one full diffusion render at 30 steps on CPU.
const DefaultTimeout = 120 * time.Second

// Manager is the shutdown organism.
//
//	m := shutdown.NewManager(logger)
//	m.Register("http-server", 10, server.Shutdown)
//	m.Register("logger", 90, func(context.Context) error { return logger.Sync() })
//	m.Start()
//	<-m.Context().Done()
//	m.Shutdown()
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration
	exit    func(int)

	mu       sync.Mutex
	started  bool
	finished bool
	signals  int
	lastSig  os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *registry
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds the wait for in-flight operations plus cleanup.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = timeout }
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(int)) ManagerOption {
	return func(m *Manager) { m.exit = exit }
}

// NewManager creates a Manager. Signals are not watched until Start.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  &OperationTracker{},
		registry: &registry{},
		sigChan:  make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context is cancelled on the first signal or on Trigger.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step. Lower priority runs first.
func (m *Manager) Register(name string, priority int, fn ShutdownFunc) {
	m.registry.register(name, priority, fn)
	m.logger.Debug("registered shutdown handler", zap.String("name", name), zap.Int("priority", priority))
}

// Start watches SIGINT and SIGTERM. The first signal cancels Context; the
// second exits immediately with the signal's exit code.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	m.mu.Lock()
	m.signals++
	m.lastSig = sig
	count := m.signals
	m.mu.Unlock()

	if count == 1 {
		m.logger.Info("received shutdown signal, finishing in-flight work", zap.String("signal", sig.String()))
		m.cancel()
		return
	}
	m.logger.Warn("received second signal, forcing exit")
	m.exit(core.ExitCodeForSignal(sig))
}

// Trigger starts shutdown without a signal, e.g. when the server fails.
func (m *Manager) Trigger() {
	m.cancel()
}

// WrapOperation runs fn as a tracked operation so Shutdown waits for it.
// Once shutdown has begun it returns ErrTrackerClosed without running fn.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected, shutting down", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Shutdown stops new operations, waits for running ones, then runs cleanup.
// Only the first call does anything.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	m.finished = true
	m.mu.Unlock()

	start := time.Now()
	m.cancel()
	m.tracker.Close()

	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("waiting for in-flight generations", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("in-flight generations did not finish", zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Info("running cleanup", zap.Strings("handlers", m.registry.names()))
	errs := m.registry.run(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup failed", zap.Error(err))
	}

	m.mu.Lock()
	if m.started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.mu.Unlock()

	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}

// ExitCode maps the signal that started shutdown to a process exit code,
// or ExitCodeSuccess when shutdown was not signal-driven.
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.ExitCodeForSignal(m.lastSig)
}

// ActiveOperations returns the number of tracked operations in flight.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// RegisteredHandlers lists cleanup steps in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.names()
}
