package progress

import "sync"

// cardLocks hands out one mutex per card ID and forgets it once no caller
// holds or waits on it.
type cardLocks struct {
	mu    sync.Mutex
	byKey map[string]*cardLock
}

type cardLock struct {
	mu   sync.Mutex
	refs int
}

func (l *cardLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.byKey == nil {
		l.byKey = make(map[string]*cardLock)
	}
	cl, ok := l.byKey[key]
	if !ok {
		cl = &cardLock{}
		l.byKey[key] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.byKey, key)
		}
		l.mu.Unlock()
	}
}
