package database

import (
	"slices"
	"sync"
)

// KeyedLocker hands out one mutex per entry id. Locks for ids nobody holds are
// dropped, so the map only grows with concurrent use.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until every id is held and returns the function that releases them.
// Ids are acquired in sorted order, so callers locking overlapping sets cannot
// deadlock. Duplicates are ignored.
func (k *KeyedLocker) Lock(ids ...string) (unlock func()) {
	keys := slices.Clone(ids)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyedLock, 0, len(keys))
	for _, id := range keys {
		l := k.acquire(id)
		l.mu.Lock()
		held = append(held, l)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				k.release(keys[i])
			}
		})
	}
}

func (k *KeyedLocker) acquire(id string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	return l
}

func (k *KeyedLocker) release(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

func (k *KeyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
