// Package lease serialises work on a single service id within the process.
package lease

import (
	"context"
	"sync"
)

// Release gives the lease back. Calling it more than once is a no-op.
type Release func()

type entry struct {
	ch   chan struct{}
	refs int
}

// Table is a set of per-id exclusive leases. The zero value is not usable;
// use New.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Acquire blocks until the lease for id is free or ctx is done.
func (t *Table) Acquire(ctx context.Context, id string) (Release, error) {
	e := t.ref(id)
	select {
	case e.ch <- struct{}{}:
		return t.releaser(id, e), nil
	case <-ctx.Done():
		t.unref(id, e)
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lease only if nobody holds it.
func (t *Table) TryAcquire(id string) (Release, bool) {
	e := t.ref(id)
	select {
	case e.ch <- struct{}{}:
		return t.releaser(id, e), true
	default:
		t.unref(id, e)
		return nil, false
	}
}

// Held reports whether the lease for id is currently taken.
func (t *Table) Held(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return ok && len(e.ch) > 0
}

func (t *Table) ref(id string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		t.entries[id] = e
	}
	e.refs++
	return e
}

func (t *Table) unref(id string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, id)
	}
}

func (t *Table) releaser(id string, e *entry) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			t.unref(id, e)
		})
	}
}
