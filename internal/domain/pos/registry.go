package pos

import (
	"context"
	"sync"
)

// Registry maps session IDs to their terminals. Carts are not persisted: a
// terminal lives as long as the process and the session.
type Registry struct {
	mu        sync.Mutex
	terminals map[string]*Terminal
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{terminals: make(map[string]*Terminal)}
}

// Get returns the terminal for sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) *Terminal {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.terminals[sessionID]
	if !ok {
		t = NewTerminal(sessionID)
		r.terminals[sessionID] = t
	}
	return t
}

// Drop forgets the terminal of sessionID, discarding its cart.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.terminals, sessionID)
}

// Sweep drops the terminals whose session live reports as gone and returns
// how many were dropped. live is called without the registry lock held. A
// terminal whose check fails is kept, and the first error is returned.
func (r *Registry) Sweep(ctx context.Context, live func(ctx context.Context, sessionID string) (bool, error)) (int, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.terminals))
	for id := range r.terminals {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var (
		dropped  int
		firstErr error
	)
	for _, id := range ids {
		ok, err := live(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			r.Drop(id)
			dropped++
		}
	}
	return dropped, firstErr
}

// Len returns the number of open terminals.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.terminals)
}
