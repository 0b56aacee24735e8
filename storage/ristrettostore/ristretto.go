// Package ristrettostore is a bounded in-memory storage backed by
// dgraph-io/ristretto. Admission and eviction follow ristretto's TinyLFU
// policy, so a Store may be dropped; a dropped binding is simply a later miss.
package ristrettostore

import (
	"fmt"
	"sync"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/storage"
)

// Mode is the registry mode under which this storage is usually registered.
const Mode storage.Mode = "ristretto"

var _ storage.Storage = (*Store)(nil)

type Config struct {
	// MaxEntries bounds the number of bindings kept at once.
	MaxEntries int64
	Logger     *zap.Logger
}

type entry struct {
	key   cachekey.CacheKey
	value any
}

// Store keys the ristretto cache by key hash and keeps its own index of the
// admitted keys, because ristretto cannot enumerate its contents.
type Store struct {
	cache  *ristretto.Cache[uint64, entry]
	logger *zap.Logger

	mu    sync.Mutex
	index map[uint64]cachekey.CacheKey
}

func New(cfg Config) (*Store, error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("ristrettostore: MaxEntries must be positive, got %d", cfg.MaxEntries)
	}
	s := &Store{
		logger: cfg.Logger,
		index:  make(map[uint64]cachekey.CacheKey),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, entry]{
		NumCounters:        10 * cfg.MaxEntries,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            s.forget,
		OnReject:           s.forget,
	})
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

func (s *Store) Contains(key cachekey.CacheKey) (bool, error) {
	_, ok := s.get(key)
	return ok, nil
}

func (s *Store) Fetch(key cachekey.CacheKey) (any, error) {
	if e, ok := s.get(key); ok {
		return e.value, nil
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
}

// Store never holds s.mu across ristretto calls: eviction callbacks run on
// ristretto's own goroutine and take the same lock.
func (s *Store) Store(key cachekey.CacheKey, value any) error {
	h := key.Hash()
	s.mu.Lock()
	s.index[h] = key
	s.mu.Unlock()

	if !s.cache.Set(h, entry{key: key, value: value}, 1) {
		s.logger.Debug("ristretto dropped entry", zap.Stringer("key", key))
		s.unindex(h, key)
		return nil
	}
	s.cache.Wait()
	return nil
}

func (s *Store) Clear() error {
	s.cache.Clear()
	s.mu.Lock()
	s.index = make(map[uint64]cachekey.CacheKey)
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(key cachekey.CacheKey) (bool, error) {
	if _, ok := s.get(key); !ok {
		return false, nil
	}
	h := key.Hash()
	s.cache.Del(h)
	s.unindex(h, key)
	return true, nil
}

func (s *Store) Keys() ([]cachekey.CacheKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]cachekey.CacheKey, 0, len(s.index))
	for _, k := range s.index {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close stops ristretto's background goroutines.
func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) get(key cachekey.CacheKey) (entry, bool) {
	e, ok := s.cache.Get(key.Hash())
	if !ok || !e.key.Equal(key) {
		return entry{}, false
	}
	return e, true
}

func (s *Store) forget(item *ristretto.Item[entry]) {
	s.unindex(item.Key, item.Value.key)
}

func (s *Store) unindex(h uint64, key cachekey.CacheKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.index[h]; ok && k.Equal(key) {
		delete(s.index, h)
	}
}
