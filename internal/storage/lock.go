package storage

import "sync"

// lockMap hands out one exclusive lock per record id. Acquisition never
// waits: a held lock is reported to the caller instead. Entries are dropped
// once nobody references them so the map does not grow with the corpus.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*idLock)}
}

// tryLock returns a release func and true when the lock for id was free.
func (m *lockMap) tryLock(id string) (func(), bool) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &idLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	if !l.mu.TryLock() {
		m.drop(id, l)
		return nil, false
	}
	return func() {
		l.mu.Unlock()
		m.drop(id, l)
	}, true
}

func (m *lockMap) drop(id string, l *idLock) {
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
	m.mu.Unlock()
}

func (m *lockMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
