package ember

import (
	"errors"
	"sync"
)

// Registry hands out one Client per application id, created on first use
// with the Registry's options. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	opts []Option

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("ember: registry closed")

// NewRegistry creates a Registry whose Clients are built with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts, clients: make(map[string]*Client)}
}

// Get returns the Client for appID, creating it if needed.
func (r *Registry) Get(appID string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if c, ok := r.clients[appID]; ok {
		return c, nil
	}
	c, err := New(appID, r.opts...)
	if err != nil {
		return nil, err
	}
	r.clients[appID] = c
	return c, nil
}

// Close closes every Client handed out.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for id, c := range r.clients {
		errs = append(errs, c.Close())
		delete(r.clients, id)
	}
	return errors.Join(errs...)
}
