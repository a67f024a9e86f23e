package capture

import "sync"

// pathLocks serialises writers of the same bucket path while letting different paths
// proceed in parallel. Entries are removed once no writer holds or waits on them, so the
// map stays proportional to in-flight writes rather than to every bucket ever written.
type pathLocks struct {
	locks map[string]*pathLock
	sync.Mutex
}

type pathLock struct {
	refs int
	sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: map[string]*pathLock{}}
}

// Lock blocks until the caller holds the lock for path, returning the function that
// releases it.
func (l *pathLocks) Lock(path string) (unlock func()) {
	l.Mutex.Lock()
	lock, ok := l.locks[path]
	if !ok {
		lock = &pathLock{}
		l.locks[path] = lock
	}
	lock.refs++
	l.Mutex.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		l.Mutex.Lock()
		defer l.Mutex.Unlock()

		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, path)
		}
	}
}

// size is the number of paths currently held or waited on.
func (l *pathLocks) size() int {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	return len(l.locks)
}
