package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/worker-metadata/pkg/logging"
)

// Func releases one resource during shutdown
type Func func(context.Context) error

// Manager handles graceful shutdown
type Manager struct {
	funcs   []namedFunc
	mu      sync.Mutex
	timeout time.Duration
	logger  *logging.Logger
	done    chan struct{}
	once    sync.Once
}

type namedFunc struct {
	name string
	fn   Func
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a shutdown function. Functions run in reverse order (LIFO).
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Done returns a channel that is closed when shutdown is initiated
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGTERM/SIGINT arrives or ctx is cancelled, then runs
// the registered functions.
func (m *Manager) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("Received signal, initiating graceful shutdown", logging.Fields{"signal": sig.String()})
	case <-ctx.Done():
		m.logger.Info("Context cancelled, initiating graceful shutdown")
	}
	m.Shutdown()
}

// Shutdown executes all registered functions within the manager's timeout.
// Errors are logged and returned joined; every function runs regardless.
func (m *Manager) Shutdown() error {
	m.once.Do(func() { close(m.done) })

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(m.funcs) - 1; i >= 0; i-- {
		f := m.funcs[i]
		if err := f.fn(ctx); err != nil {
			m.logger.Error("Shutdown step failed", logging.Fields{"step": f.name, "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		m.logger.Debug("Shutdown step complete", logging.Fields{"step": f.name})
	}
	m.funcs = nil

	m.logger.Info("Graceful shutdown complete")
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StopHTTPServer creates a shutdown function for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) Func {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for an io.Closer
func CloseResource(closer interface{ Close() error }) Func {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}

// WaitForJobs creates a shutdown function that polls until idle reports true
func WaitForJobs(idle func() bool, pollInterval time.Duration) Func {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			if idle() {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("timeout waiting for in-flight jobs: %w", ctx.Err())
			case <-ticker.C:
			}
		}
	}
}
