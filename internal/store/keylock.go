package store

import (
	"sync"

	"github.com/gabepages/botkit/internal/models"
)

// keyLock hands out one mutex per identity so concurrent Save calls for the
// same profile are serialized while unrelated identities proceed in
// parallel. Entries are reference counted and dropped when idle.
type keyLock struct {
	mu    sync.Mutex
	locks map[models.Identity]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[models.Identity]*keyLockEntry)}
}

// Lock acquires the mutex for id, creating it on first use.
func (k *keyLock) Lock(id models.Identity) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyLockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for id and frees the entry once nobody waits on it.
func (k *keyLock) Unlock(id models.Identity) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
	}
	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
