// Package keylock hands out exclusive, per-key leases.
//
// A lease is a buffered channel of capacity one: acquiring sends into it,
// releasing drains it. Leases exist only while someone holds or waits for
// them, so the table does not grow with the number of keys ever seen.
package keylock

import (
	"context"
	"sync"
)

type lease struct {
	ch   chan struct{}
	refs int
}

// Table is a set of leases indexed by key hash. Distinct keys that share a
// hash share a lease, which only serializes them.
type Table struct {
	mu     sync.Mutex
	leases map[uint64]*lease
}

func New() *Table {
	return &Table{leases: make(map[uint64]*lease)}
}

// Acquire blocks until the lease for h is free or ctx is done.
// The returned release must be called exactly once.
func (t *Table) Acquire(ctx context.Context, h uint64) (release func(), err error) {
	t.mu.Lock()
	l, ok := t.leases[h]
	if !ok {
		l = &lease{ch: make(chan struct{}, 1)}
		t.leases[h] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				t.unref(h, l)
			})
		}, nil
	case <-ctx.Done():
		t.unref(h, l)
		return nil, ctx.Err()
	}
}

func (t *Table) unref(h uint64, l *lease) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.leases, h)
	}
}

// Len returns the number of leases currently held or awaited.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.leases)
}
