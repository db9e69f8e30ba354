package app

import (
	"sync"

	"vexcel-xp-service/internal/domain"
)

// Gate allows one XP mutation in flight per user.
type Gate struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGate() *Gate {
	return &Gate{inflight: make(map[string]struct{})}
}

// Acquire marks userID busy. It fails with domain.ErrBusy instead of waiting.
func (g *Gate) Acquire(userID string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[userID]; busy {
		return nil, domain.ErrBusy
	}
	g.inflight[userID] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.inflight, userID)
		g.mu.Unlock()
	}, nil
}
