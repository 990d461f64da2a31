// Package session holds the short-lived per-user state of the vending flow:
// the "ready to insert" gate the hardware bridge checks before classifying, and
// the capped list of recent detections shown to the customer.
//
// Both sit on a small key/value Store so several API processes can share them
// through Redis.
package session

import (
	"context"
	"sync"
	"time"
)

// Store is the expiring key/value backend. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (bool, string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteIfEquals removes key only while it still holds value, atomically.
	DeleteIfEquals(ctx context.Context, key string, value string) (bool, error)
	// PushCapped prepends value to the list at key and trims it to limit items.
	PushCapped(ctx context.Context, key string, value string, limit int) error
	// List returns the list at key, head first.
	List(ctx context.Context, key string) ([]string, error)
}

// keyedMutex serializes writers per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
