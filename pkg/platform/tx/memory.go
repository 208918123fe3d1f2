package tx

import (
	"context"
	"sync"
)

type journalKey struct{}

type journal struct {
	undo []func()
}

// OnRollback registers an undo step for the in-memory unit of work carried by
// ctx. Outside a MemoryRunner transaction it is a no-op.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// InMemory reports whether ctx carries a MemoryRunner transaction.
func InMemory(ctx context.Context) bool {
	_, ok := ctx.Value(journalKey{}).(*journal)
	return ok
}

// MemoryRunner serializes units of work against in-memory stores and replays
// registered undo steps in reverse order when fn fails. Holding the lock for
// the whole unit stands in for row locks.
type MemoryRunner struct {
	mu sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InMemory(ctx) {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	return nil
}
