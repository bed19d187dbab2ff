package ratelimit

import (
	"context"
	"sync"
)

// localLocker serializes holders of the same key inside one process.
type localLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newLocalLocker() *localLocker {
	return &localLocker{held: make(map[string]chan struct{})}
}

// Acquire waits until key is free or ctx ends. A caller that gives up waiting
// gets ErrLockBusy.
func (l *localLocker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ErrLockBusy
		case <-wait:
		}
	}
}
