package signaling

import "sync"

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedLock serializes work per key. Different keys never share a critical
// section, and a key's mutex is dropped once nobody holds or waits for it.
type keyedLock struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

func (l *keyedLock) lock(key uint) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uint]*refMutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// held reports how many keys currently have a holder or waiter.
func (l *keyedLock) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
