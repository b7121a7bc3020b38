package reconciler

import "sync"

// lockset is a keyed mutex. Entries are dropped once nobody holds or
// waits for them.
type lockset struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newLockset() *lockset {
	return &lockset{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the unlock func
func (l *lockset) Lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.mu.Unlock()

			l.mu.Lock()
			kl.refs--
			if kl.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

func (l *lockset) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
