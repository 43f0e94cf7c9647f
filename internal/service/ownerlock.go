package service

import "sync"

// OwnerLocks serializes operations that belong to the same owner while
// letting different owners proceed in parallel. Entries are reference
// counted and removed once nobody holds or waits on them.
type OwnerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func NewOwnerLocks() *OwnerLocks {
	return &OwnerLocks{locks: make(map[string]*ownerLock)}
}

// Lock blocks until ownerID is free and returns the matching unlock func.
func (l *OwnerLocks) Lock(ownerID string) func() {
	l.mu.Lock()
	ol, ok := l.locks[ownerID]
	if !ok {
		ol = &ownerLock{}
		l.locks[ownerID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()
		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, ownerID)
		}
		l.mu.Unlock()
	}
}

func (l *OwnerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
