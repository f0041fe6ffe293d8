package controlplane

import "sync"

// OperationGuard tracks in-flight operation tokens so concurrent plan or
// apply calls for the same logical operation reject instead of interleaving.
// It is non-blocking: contention is reported to the caller, never waited out.
type OperationGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewOperationGuard creates an empty guard.
func NewOperationGuard() *OperationGuard {
	return &OperationGuard{active: make(map[string]struct{})}
}

// Begin atomically registers the token. It returns false when the token is
// already in flight, in which case the caller must not proceed and must not
// call End.
func (g *OperationGuard) Begin(token string) bool {
	if token == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.active[token]; exists {
		return false
	}
	g.active[token] = struct{}{}
	return true
}

// End releases the token. Ending a token that is not registered is a no-op.
func (g *OperationGuard) End(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, token)
}

// Active returns the number of operations currently in flight.
func (g *OperationGuard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
