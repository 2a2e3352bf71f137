package cache

import (
	"errors"
	"sync"
	"time"
)

var ErrNotInteger = errors.New("value is not an integer")

// MemCache is a small in-memory cache backed by sync.Map.
// Items can have an optional TTL. A background cleanup goroutine
// runs when NewMemCache is given a positive cleanupInterval.
type MemCache struct {
	items sync.Map
	stop  chan struct{}
	wg    sync.WaitGroup
}

type item struct {
	mu         sync.Mutex
	value      any
	expiration int64 // unix nano; 0 means no expiration
	deleted    bool  // removed from the map; holders must reload
}

func NewMemCache(cleanupInterval time.Duration) *MemCache {
	m := &MemCache{
		stop: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		m.wg.Add(1)
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			defer m.wg.Done()
			for {
				select {
				case <-ticker.C:
					m.cleanup()
				case <-m.stop:
					return
				}
			}
		}()
	}
	return m
}

func (m *MemCache) Set(key string, value any, ttl time.Duration) {
	prev, loaded := m.items.Swap(key, &item{
		value:      value,
		expiration: expiresAt(ttl),
	})
	if loaded {
		old := prev.(*item)
		old.mu.Lock()
		old.deleted = true
		old.mu.Unlock()
	}
}

func (m *MemCache) Get(key string) (any, bool) {
	v, ok := m.items.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(*item)

	it.mu.Lock()
	defer it.mu.Unlock()
	if it.deleted {
		return nil, false
	}
	if it.isExpired() {
		m.remove(key, it)
		return nil, false
	}
	return it.value, true
}

// Increment adds delta to the integer stored at key and returns the new
// value. A missing or expired key starts a fresh window of length ttl, so
// the expiry is fixed by the first increment and not extended by later ones.
func (m *MemCache) Increment(key string, delta int64, ttl time.Duration) (int64, error) {
	for {
		actual, _ := m.items.LoadOrStore(key, &item{
			value:      int64(0),
			expiration: expiresAt(ttl),
		})
		it := actual.(*item)

		it.mu.Lock()
		if it.deleted {
			it.mu.Unlock()
			continue
		}
		if it.isExpired() {
			it.value = int64(0)
			it.expiration = expiresAt(ttl)
		}

		current, ok := it.value.(int64)
		if !ok {
			it.mu.Unlock()
			return 0, ErrNotInteger
		}
		it.value = current + delta
		it.mu.Unlock()
		return current + delta, nil
	}
}

func (m *MemCache) Close() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.wg.Wait()
	m.stop = nil
}

func expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}

func (it *item) isExpired() bool {
	if it == nil || it.expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > it.expiration
}

func (m *MemCache) cleanup() {
	m.items.Range(func(k, v any) bool {
		it := v.(*item)
		it.mu.Lock()
		if !it.deleted && it.isExpired() {
			m.remove(k, it)
		}
		it.mu.Unlock()
		return true
	})
}

// remove must be called with it.mu held.
func (m *MemCache) remove(key any, it *item) {
	if m.items.CompareAndDelete(key, it) {
		it.deleted = true
	}
}
