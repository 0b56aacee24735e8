package storage

import (
	"fmt"
	"sync"

	"github.com/on-the-ground/memo_ive_go/cachekey"
)

var _ Storage = (*Memory)(nil)

type binding struct {
	key   cachekey.CacheKey
	value any
}

// Memory keeps bindings in a hash map for the life of the process.
// There is no eviction; use a bounded custom storage when growth matters.
type Memory struct {
	mu      sync.RWMutex
	buckets map[uint64][]binding
	size    int
}

func NewMemory() *Memory {
	return &Memory{buckets: make(map[uint64][]binding)}
}

func (m *Memory) Contains(key cachekey.CacheKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.find(key)
	return ok, nil
}

func (m *Memory) Fetch(key cachekey.CacheKey) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.find(key); ok {
		return m.buckets[key.Hash()][i].value, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}

func (m *Memory) Store(key cachekey.CacheKey, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := key.Hash()
	if i, ok := m.find(key); ok {
		m.buckets[h][i].value = value
		return nil
	}
	m.buckets[h] = append(m.buckets[h], binding{key: key, value: value})
	m.size++
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[uint64][]binding)
	m.size = 0
	return nil
}

func (m *Memory) Remove(key cachekey.CacheKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(key)
	if !ok {
		return false, nil
	}
	h := key.Hash()
	bucket := m.buckets[h]
	bucket = append(bucket[:i], bucket[i+1:]...)
	if len(bucket) == 0 {
		delete(m.buckets, h)
	} else {
		m.buckets[h] = bucket
	}
	m.size--
	return true, nil
}

func (m *Memory) Keys() ([]cachekey.CacheKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]cachekey.CacheKey, 0, m.size)
	for _, bucket := range m.buckets {
		for _, b := range bucket {
			keys = append(keys, b.key)
		}
	}
	return keys, nil
}

// Len returns the number of bindings.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// find must be called with m.mu held.
func (m *Memory) find(key cachekey.CacheKey) (int, bool) {
	for i, b := range m.buckets[key.Hash()] {
		if b.key.Equal(key) {
			return i, true
		}
	}
	return 0, false
}
