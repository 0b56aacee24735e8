// Package identity remembers which memoized call produced which runtime
// object, without keeping those objects alive.
//
// Only values with reference identity can be tracked: non-nil pointers to
// non-zero-size values, and non-nil maps. Plain values (numbers, strings,
// structs passed by value) have no identity in Go and always fall back to
// literal keys. Objects must be heap allocated, which every pointer returned
// from a function already is.
package identity

import (
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/on-the-ground/memo_ive_go/cachekey"
)

// Registry maps object identities to the keys of the calls that produced
// them. Entries are dropped by a runtime cleanup once the object becomes
// unreachable; no sweeping is needed.
type Registry struct {
	mu      sync.Mutex
	entries map[weak.Pointer[byte]]cachekey.CacheKey
}

var _ cachekey.Lookup = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[weak.Pointer[byte]]cachekey.CacheKey),
	}
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// Default returns the process-wide registry shared by memoized functions
// that were not given one explicitly.
func Default() *Registry {
	return defaultRegistry()
}

// Register binds v's identity to k, replacing any previous binding.
// It reports false when v has no identity to track.
func (r *Registry) Register(v any, k cachekey.CacheKey) bool {
	p, ok := addressOf(v)
	if !ok {
		return false
	}
	wp := weak.Make(p)

	r.mu.Lock()
	_, existed := r.entries[wp]
	r.entries[wp] = k
	r.mu.Unlock()

	if !existed {
		runtime.AddCleanup(p, r.forget, wp)
	}
	return true
}

// RegisterElements binds each element of a tuple result to the synthetic key
// of its position. Only the direct elements are tracked.
func (r *Registry) RegisterElements(parent cachekey.CacheKey, elems []any) int {
	n := 0
	for i, e := range elems {
		if r.Register(e, parent.Element(i)) {
			n++
		}
	}
	return n
}

// Lookup returns the key registered for v's identity.
func (r *Registry) Lookup(v any) (cachekey.CacheKey, bool) {
	p, ok := addressOf(v)
	if !ok {
		return cachekey.CacheKey{}, false
	}
	wp := weak.Make(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.entries[wp]
	return k, ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) forget(wp weak.Pointer[byte]) {
	r.mu.Lock()
	delete(r.entries, wp)
	r.mu.Unlock()
}

// addressOf returns the address that identifies v, typed as *byte so that
// every tracked object shares one weak pointer type.
func addressOf(v any) (*byte, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Type().Elem().Size() == 0 {
			return nil, false
		}
	case reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
	default:
		return nil, false
	}
	return (*byte)(rv.UnsafePointer()), true
}
