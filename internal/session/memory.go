package session

import (
	"context"
	"sync"
	"time"
)

type memItem struct {
	value     string
	expiresAt time.Time // zero: never
}

// MemoryStore is a process-local Store for single-machine deployments and tests.
// Expired keys are dropped when they are next read.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	lists map[string][]string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memItem),
		lists: make(map[string][]string),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return false, "", nil
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return false, "", nil
	}
	return true, item.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := memItem{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if ok {
		delete(m.items, key)
		if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
			ok = false
		}
	}
	if _, isList := m.lists[key]; isList {
		delete(m.lists, key)
		ok = true
	}
	return ok, nil
}

func (m *MemoryStore) DeleteIfEquals(_ context.Context, key string, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || item.value != value {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

func (m *MemoryStore) PushCapped(_ context.Context, key string, value string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]string{value}, m.lists[key]...)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) List(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lists[key]))
	copy(out, m.lists[key])
	return out, nil
}
