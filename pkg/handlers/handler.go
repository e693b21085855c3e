package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/models"
)

var (
	// ErrHandlerNotFound is returned when no handler is registered under a name
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrHandlerUnavailable is returned when a handler is registered but cannot be built
	ErrHandlerUnavailable = errors.New("handler unavailable")
)

// Handler processes one job. The returned result is opaque to the caller.
type Handler interface {
	Handle(ctx context.Context, job models.Job) (models.Result, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, job models.Job) (models.Result, error)

// Handle calls f(ctx, job)
func (f HandlerFunc) Handle(ctx context.Context, job models.Job) (models.Result, error) {
	return f(ctx, job)
}

// Options configure a handler at resolution time
type Options struct {
	// Command is the argv for the exec handler
	Command []string
	// URL is the endpoint for the http handler
	URL     string
	Timeout time.Duration
	Logger  *logging.Logger
}

// Factory builds a handler from options. It reports ErrHandlerUnavailable
// when a dependency of the handler is missing.
type Factory func(opts Options) (Handler, error)

// Registry maps handler names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in handlers
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("echo", newEchoHandler)
	r.Register("exec", newExecHandler)
	r.Register("http", newHTTPHandler)
	return r
}

// Register adds or replaces a factory
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve builds the named handler
func (r *Registry) Resolve(name string, opts Options) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHandlerNotFound, name)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	h, err := f(opts)
	if err != nil {
		if errors.Is(err, ErrHandlerUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrHandlerUnavailable, name, err)
	}
	return h, nil
}

// Names lists registered handler names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// echo returns the job input under "output". A map input is copied so the
// result can be enriched without touching the request.
func newEchoHandler(opts Options) (Handler, error) {
	return HandlerFunc(func(ctx context.Context, job models.Job) (models.Result, error) {
		input := job["input"]
		if m, ok := input.(map[string]interface{}); ok {
			out := make(map[string]interface{}, len(m))
			for k, v := range m {
				out[k] = v
			}
			input = out
		}
		return map[string]interface{}{"output": input}, nil
	}), nil
}
