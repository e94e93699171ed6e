// Package lock provides per-key mutual exclusion. Different keys never
// contend with each other.
package lock

import (
	"context"
	"sync"
)

// Release frees a held lock. Calling it more than once is safe.
type Release func()

// Locker hands out non-blocking per-key locks.
type Locker interface {
	// TryLock acquires key without waiting. ok is false when another holder
	// owns it.
	TryLock(ctx context.Context, key string) (release Release, ok bool, err error)
}

// Keyed is an in-process lock table. Entries are removed once no holder or
// waiter references them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{} // buffered(1): a token in the channel means held
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

func (k *Keyed) acquireEntry(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) dropEntry(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *Keyed) releaser(key string, e *entry) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.dropEntry(key, e)
		})
	}
}

// TryLock implements Locker.
func (k *Keyed) TryLock(_ context.Context, key string) (Release, bool, error) {
	e := k.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return k.releaser(key, e), true, nil
	default:
		k.dropEntry(key, e)
		return nil, false, nil
	}
}

// Lock waits until key is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (Release, error) {
	e := k.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return k.releaser(key, e), nil
	case <-ctx.Done():
		k.dropEntry(key, e)
		return nil, ctx.Err()
	}
}

// Len returns the number of live entries.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
