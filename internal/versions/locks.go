package versions

import (
	"sync"

	"github.com/google/uuid"
)

// assetLocks serializes version numbering per asset inside this process.
// The row lock and unique index cover writers in other processes.
type assetLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newAssetLocks() *assetLocks {
	return &assetLocks{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock blocks until the asset is free and returns the matching unlock.
func (l *assetLocks) Lock(assetID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[assetID]
	if !ok {
		m = &refMutex{}
		l.locks[assetID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, assetID)
		}
		l.mu.Unlock()
	}
}
