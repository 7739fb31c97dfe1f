// internal/app/system/cache/memory.go
package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Cache with TTL support. It is the default when
// no Redis address is configured.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]item
	closed bool
	stopCh chan struct{}
	now    func() time.Time
}

type item struct {
	value     []byte
	expiresAt time.Time // zero: never
}

// NewMemory returns a Memory cache. When cleanupInterval > 0 a janitor
// goroutine drops expired entries until Close.
func NewMemory(cleanupInterval time.Duration) *Memory {
	m := &Memory{
		items:  make(map[string]item),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	if cleanupInterval > 0 {
		go m.janitor(cleanupInterval)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	it, ok := m.items[key]
	if !ok || it.expired(m.now()) {
		return nil, ErrNotFound
	}

	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the janitor and rejects further use. Safe to call twice.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.items = nil
	close(m.stopCh)
	return nil
}

// Len returns the number of stored entries, expired ones included until
// the janitor runs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.removeExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, it := range m.items {
		if it.expired(now) {
			delete(m.items, k)
		}
	}
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}
