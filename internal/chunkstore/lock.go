package chunkstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned by Locker.Lock when ctx is cancelled before
// the lock becomes available.
var ErrLockTimeout = errors.New("chunkstore: lock timeout")

// Locker serializes access to a single layer's chunk file and Layer row
// across concurrent PATCH requests, the way a single tus upload is
// serialized against concurrent resume attempts.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]lockEntry
}

type lockEntry struct {
	released chan struct{}
}

// NewLocker returns an empty in-process locker. Locks only exist as long
// as the process is alive; this is sufficient because spec.md's
// concurrency model is explicitly single-process (no cross-node
// coordination).
func NewLocker() *Locker {
	return &Locker{locks: make(map[uuid.UUID]lockEntry)}
}

// Lock blocks until id's lock is free and then acquires it, or returns
// ErrLockTimeout if ctx is cancelled first.
func (l *Locker) Lock(ctx context.Context, id uuid.UUID) error {
	for {
		l.mu.Lock()
		entry, held := l.locks[id]
		if !held {
			l.locks[id] = lockEntry{released: make(chan struct{})}
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ErrLockTimeout
		case <-entry.released:
			// Someone else released it; loop to retry acquisition rather
			// than assuming we now own it, since another waiter may have
			// raced us to it.
		}
	}
}

// Unlock releases id's lock. It is a no-op if the lock is not held.
func (l *Locker) Unlock(id uuid.UUID) {
	l.mu.Lock()
	entry, held := l.locks[id]
	if !held {
		l.mu.Unlock()
		return
	}
	delete(l.locks, id)
	l.mu.Unlock()

	close(entry.released)
}
