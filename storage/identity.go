package storage

import (
	"fmt"

	"github.com/on-the-ground/memo_ive_go/cachekey"
)

var _ Storage = Identity{}

// Identity stores nothing: every lookup misses and every store is dropped.
type Identity struct{}

func NewIdentity() Identity { return Identity{} }

func (Identity) Contains(cachekey.CacheKey) (bool, error) { return false, nil }

func (Identity) Fetch(key cachekey.CacheKey) (any, error) {
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}

func (Identity) Store(cachekey.CacheKey, any) error     { return nil }
func (Identity) Clear() error                           { return nil }
func (Identity) Remove(cachekey.CacheKey) (bool, error) { return false, nil }
func (Identity) Keys() ([]cachekey.CacheKey, error)     { return nil, nil }
