package disk

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// lockState is one keyed lock. The channel holds a token while locked;
// refs counts holders plus waiters so the table entry can be reclaimed
// once nobody references the id anymore.
type lockState struct {
	ch   chan struct{}
	refs int
}

// BranchLocker provides advisory locks keyed by node id. A mutation
// locks every id of the branch it will touch before writing; the
// admission queue guarantees only one request is in its acquisition
// phase at a time, so overlapping branches cannot deadlock.
type BranchLocker struct {
	table *xsync.MapOf[string, *lockState]
}

func NewBranchLocker() *BranchLocker {
	return &BranchLocker{table: xsync.NewMapOf[string, *lockState]()}
}

// NewLease starts an empty lock lease. The caller must Release it.
func (b *BranchLocker) NewLease() *Lease {
	return &Lease{locker: b, held: make(map[string]*lockState)}
}

// Lease is the set of branch locks held by one mutation. Extend adds
// ids as the ancestor closure is discovered; Release drops everything
// in reverse acquisition order.
type Lease struct {
	locker *BranchLocker
	order  []string
	held   map[string]*lockState
}

// Extend locks each id not already held, in the given order. On error
// nothing new remains locked beyond what the lease already held; the
// caller still releases the lease as usual.
func (l *Lease) Extend(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, ok := l.held[id]; ok {
			continue
		}
		st, err := l.locker.lock(ctx, id)
		if err != nil {
			return err
		}
		l.order = append(l.order, id)
		l.held[id] = st
	}
	return nil
}

// Release unlocks every held id. Safe to call exactly once.
func (l *Lease) Release() {
	for i := len(l.order) - 1; i >= 0; i-- {
		id := l.order[i]
		<-l.held[id].ch
		l.locker.unref(id)
	}
	l.order = nil
	l.held = nil
}

func (b *BranchLocker) lock(ctx context.Context, id string) (*lockState, error) {
	st, _ := b.table.Compute(id, func(old *lockState, loaded bool) (*lockState, bool) {
		if !loaded {
			old = &lockState{ch: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})

	select {
	case st.ch <- struct{}{}:
		return st, nil
	case <-ctx.Done():
		b.unref(id)
		return nil, ctx.Err()
	}
}

func (b *BranchLocker) unref(id string) {
	b.table.Compute(id, func(old *lockState, loaded bool) (*lockState, bool) {
		if !loaded {
			return old, true
		}
		old.refs--
		return old, old.refs == 0
	})
}
