package evaluation

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// lazy holds a value that is built on first use and then reused.
// Concurrent first callers share one load; a failed load is not cached so a
// later call can retry.
type lazy[T any] struct {
	load  func(ctx context.Context) (T, error)
	group singleflight.Group

	mu     sync.RWMutex
	val    T
	loaded bool
}

func newLazy[T any](load func(ctx context.Context) (T, error)) *lazy[T] {
	return &lazy[T]{load: load}
}

func (l *lazy[T]) cached() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.val, l.loaded
}

// get returns the value, loading it if needed.
func (l *lazy[T]) get(ctx context.Context) (T, error) {
	if v, ok := l.cached(); ok {
		return v, nil
	}

	res, err, _ := l.group.Do("load", func() (any, error) {
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := l.load(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.val, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// isLoaded reports whether the value has been built.
func (l *lazy[T]) isLoaded() bool {
	_, ok := l.cached()
	return ok
}
