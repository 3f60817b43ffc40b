// Package connectivity routes named messages to handlers, either in the
// same process or across HTTP to a running pastewire daemon.
//
//	router := connectivity.New()
//	router.RegisterLocal("orchestrator.addPreset", o.handleAddPreset)
//	resp, err := router.Call(ctx, "orchestrator.addPreset", payload)
//
// The CLI registers the same names as remote handlers pointing at the
// daemon, so callers are indifferent to where the orchestrator runs.
package connectivity

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Handler is a transport-agnostic message handler: JSON in, JSON out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router dispatches calls by service name. Local handlers win over remote
// ones registered under the same name.
type Router struct {
	mu     sync.RWMutex
	local  map[string]Handler
	remote map[string]Handler
	mws    []HandlerMiddleware
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every handler registered afterwards.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.mws = append(r.mws, mws...) }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		local:  make(map[string]Handler),
		remote: make(map[string]Handler),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Router) wrap(h Handler) Handler {
	if len(r.mws) == 0 {
		return h
	}
	return Chain(r.mws...)(h)
}

// RegisterLocal registers an in-process handler for service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = r.wrap(h)
	r.mu.Unlock()
}

// RegisterRemote registers a handler reaching service elsewhere, typically
// built with HTTPHandler.
func (r *Router) RegisterRemote(service string, h Handler) {
	r.mu.Lock()
	r.remote[service] = r.wrap(h)
	r.mu.Unlock()
}

// Call dispatches a call to service.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	local := r.local[service]
	remote := r.remote[service]
	r.mu.RUnlock()

	if local != nil {
		r.logger.DebugContext(ctx, "connectivity: routing local", "service", service)
		return local(ctx, payload)
	}
	if remote != nil {
		r.logger.DebugContext(ctx, "connectivity: routing remote", "service", service)
		return remote(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Services lists the registered service names, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.local)+len(r.remote))
	for name := range r.local {
		out = append(out, name)
	}
	for name := range r.remote {
		if _, dup := r.local[name]; !dup {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
