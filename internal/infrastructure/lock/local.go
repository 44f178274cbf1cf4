package lock

import (
	"context"
	"fmt"
	"sync"
)

// LocalLocker serializes callers within one process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an empty process-local locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// WithLock runs fn while holding key, waiting until ctx ends at most
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ll := l.ref(key)
	defer l.unref(key, ll)

	select {
	case ll.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
	defer func() { <-ll.sem }()

	return fn(ctx)
}

func (l *LocalLocker) ref(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll, ok := l.locks[key]
	if !ok {
		ll = &localLock{sem: make(chan struct{}, 1)}
		l.locks[key] = ll
	}
	ll.refs++
	return ll
}

func (l *LocalLocker) unref(key string, ll *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, key)
	}
}

// held returns the number of keys with waiters or holders
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
