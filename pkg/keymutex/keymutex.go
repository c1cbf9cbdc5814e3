// Package keymutex provides mutual exclusion scoped to arbitrary string keys.
// Operations on the same key are serialized while operations on different
// keys proceed in parallel. Lock entries are reference-counted and removed
// from the registry as soon as the last interested goroutine releases or
// abandons them, so the registry never grows with dead keys.
package keymutex

import (
	"context"
	"sync"
)

// managedLock pairs the per-key lock primitive with a live-reference count.
// The primitive is a 1-buffered channel: sending the token acquires the
// lock, receiving it back releases. Goroutines blocked on the send are woken
// in near-FIFO order by the runtime, so no waiter starves.
type managedLock struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is a registry of named locks. The zero value is not usable;
// construct with New. All methods are safe for concurrent use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*managedLock
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*managedLock)}
}

// Lock acquires the lock for key, creating the registry entry on first use.
// It blocks until the lock is available or ctx is done. On success it
// returns a release function that must be called to unlock; calling it more
// than once is a no-op. On cancellation the reservation is rolled back and
// the lock is never acquired.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	ml, ok := m.locks[key]
	if !ok {
		ml = &managedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = ml
	}
	ml.refs++
	m.mu.Unlock()

	select {
	case ml.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, ml)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-ml.ch
			m.unref(key, ml)
		})
	}
	return release, nil
}

// WithLock runs fn while holding the lock for key. The lock is released on
// every exit path, including a panic inside fn.
func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	release, err := m.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Len reports the number of keys currently tracked in the registry.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// unref drops one reference to the entry and deletes it once unreferenced.
// A deleted entry is safe to recreate: deletion only happens when no holder
// and no waiter remain.
func (m *KeyedMutex) unref(key string, ml *managedLock) {
	m.mu.Lock()
	ml.refs--
	if ml.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
