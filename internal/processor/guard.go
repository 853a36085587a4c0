package processor

import (
	"context"
	"sync"
)

// Guard tracks which stable event keys already produced their side effects,
// so redelivered duplicates can be skipped without re-running handlers.
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// MemoryGuard is an in-process Guard for tests and single-instance runs.
type MemoryGuard struct {
	mux  sync.Mutex
	seen map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]struct{})}
}

func (g *MemoryGuard) Seen(ctx context.Context, key string) (bool, error) {
	g.mux.Lock()
	defer g.mux.Unlock()
	_, ok := g.seen[key]
	return ok, nil
}

func (g *MemoryGuard) Mark(ctx context.Context, key string) error {
	g.mux.Lock()
	defer g.mux.Unlock()
	g.seen[key] = struct{}{}
	return nil
}
