// Package storage defines where memoized results live.
//
// Every backend implements the same six operations. The orchestrator only
// ever sees the Storage interface, so memory, disk, identity and any custom
// backend are interchangeable:
//
//	Contains  is a binding present?
//	Fetch     read a binding, ErrKeyNotFound when absent
//	Store     write a binding, silently replacing an old one
//	Clear     drop every binding
//	Remove    drop one binding, reporting whether it existed
//	Keys      snapshot of the bound keys
package storage

import (
	"errors"

	"github.com/on-the-ground/memo_ive_go/cachekey"
)

// Mode names a family of storages. Custom backends pick their own mode names.
type Mode string

const (
	// ModeMemory keeps results in process memory until cleared.
	ModeMemory Mode = "memory"

	// ModeDisk keeps one file per result under a configurable root folder.
	ModeDisk Mode = "disk"

	// ModeIdentity never keeps anything. Functions in this mode still take
	// part in dependency keys, so cheap transforms can sit in a cascade
	// without paying for storage.
	ModeIdentity Mode = "identity"

	// ModeCustom tags caller-built storages that name no mode of their own.
	ModeCustom Mode = "custom"
)

var (
	// ErrKeyNotFound is returned by Fetch for keys without a binding.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyEncoding is returned when a stored key cannot be decoded, or when
	// two distinct keys map to the same storage slot.
	ErrKeyEncoding = errors.New("key encoding error")

	// ErrStorageIO is returned when the underlying medium fails.
	ErrStorageIO = errors.New("storage io error")
)

// Storage holds the cached results of one memoized function.
// Implementations must be safe for concurrent use.
type Storage interface {
	Contains(key cachekey.CacheKey) (bool, error)
	Fetch(key cachekey.CacheKey) (any, error)
	Store(key cachekey.CacheKey, value any) error
	Clear() error
	Remove(key cachekey.CacheKey) (bool, error)
	Keys() ([]cachekey.CacheKey, error)
}
