package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/utils/cache"
)

// DistributedLocker takes a lock shared by every replica, such as *cache.RedisCache
type DistributedLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

const (
	lockTTL   = 2 * time.Minute
	lockRetry = 100 * time.Millisecond
)

// keyedMutex serializes work per document inside one process
type keyedMutex struct {
	mu    sync.Mutex
	slots map[uint]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[uint]*slot)}
}

// lock blocks until key is free or ctx is done
func (k *keyedMutex) lock(ctx context.Context, key uint) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			k.release(key, s)
		}, nil
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key uint, s *slot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// lockDocument takes the in-process lock and then, when configured, the shared one
func (m *Matcher) lockDocument(ctx context.Context, documentID uint) (func(), error) {
	unlock, err := m.local.lock(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("waiting for document %d: %w", documentID, err)
	}
	if m.remote == nil {
		return unlock, nil
	}

	key := fmt.Sprintf(model.RedisKeyApplyLock, documentID)
	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		release, err := m.remote.AcquireLock(ctx, key, lockTTL)
		if err == nil {
			return func() {
				release()
				unlock()
			}, nil
		}
		if !errors.Is(err, cache.ErrLockHeld) {
			unlock()
			return nil, fmt.Errorf("%w: apply lock: %v", model.ErrTransient, err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			unlock()
			return nil, fmt.Errorf("waiting for document %d: %w", documentID, ctx.Err())
		}
	}
}
