// Package registry is the process-wide catalog of storages.
//
// Storages are grouped by mode and named, by default after the function they
// serve. A storage is created by its mode's Factory the first time a
// (mode, name) pair is asked for and lives as long as the registry. Nothing
// needs closing at process end.
//
// The administration helpers (ClearMode, Clear, RemoveKey, KeysOf) are thin
// layers over the Storage operations and carry no logic of their own.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/config"
	"github.com/on-the-ground/memo_ive_go/internal/keylock"
	"github.com/on-the-ground/memo_ive_go/shared/logging"
	"github.com/on-the-ground/memo_ive_go/storage"
	"github.com/on-the-ground/memo_ive_go/storage/memdbstore"
	"github.com/on-the-ground/memo_ive_go/storage/ristrettostore"
)

var (
	ErrUnknownMode    = errors.New("unknown storage mode")
	ErrUnknownStorage = errors.New("unknown storage")
	ErrStorageExists  = errors.New("storage already registered")
)

// Factory creates the storage named name for fn.
// Factories run under the registry lock and must not call back into it.
type Factory func(fn cachekey.FuncID, name string) (storage.Storage, error)

// Entry is one registered storage.
type Entry struct {
	Mode    storage.Mode
	Name    string
	Storage storage.Storage
}

type Registry struct {
	logger      *zap.Logger
	defaultMode storage.Mode
	maxEntries  int64

	mu        sync.Mutex
	factories map[storage.Mode]Factory
	storages  map[storage.Mode]map[string]storage.Storage
	locks     map[slot]*keylock.Table

	rootMu   sync.RWMutex
	diskRoot string
	roots    map[string]string
}

type slot struct {
	mode storage.Mode
	name string
}

type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(logger) }
}

// WithConfig applies the disk roots, default mode and bounded storage size
// of cfg.
func WithConfig(cfg config.Config) Option {
	return func(r *Registry) {
		r.diskRoot = cfg.DiskRoot
		r.defaultMode = storage.Mode(cfg.DefaultMode)
		r.maxEntries = cfg.MaxEntries
		for fn, root := range cfg.Roots {
			r.roots[fn] = root
		}
	}
}

// New builds a registry that knows the memory, disk, identity, ristretto
// and memdb modes.
func New(opts ...Option) *Registry {
	cfg := config.Default()
	r := &Registry{
		logger:      zap.NewNop(),
		defaultMode: storage.Mode(cfg.DefaultMode),
		maxEntries:  cfg.MaxEntries,
		factories:   make(map[storage.Mode]Factory),
		storages:    make(map[storage.Mode]map[string]storage.Storage),
		locks:       make(map[slot]*keylock.Table),
		diskRoot:    cfg.DiskRoot,
		roots:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.factories[storage.ModeMemory] = func(cachekey.FuncID, string) (storage.Storage, error) {
		return storage.NewMemory(), nil
	}
	r.factories[storage.ModeIdentity] = func(cachekey.FuncID, string) (storage.Storage, error) {
		return storage.NewIdentity(), nil
	}
	r.factories[storage.ModeDisk] = func(fn cachekey.FuncID, _ string) (storage.Storage, error) {
		return storage.NewDisk(fn, func() string { return r.RootFor(fn) },
			storage.WithDiskLogger(r.logger.With(zap.Stringer("fn", fn)))), nil
	}
	r.factories[ristrettostore.Mode] = func(fn cachekey.FuncID, _ string) (storage.Storage, error) {
		return ristrettostore.New(ristrettostore.Config{
			MaxEntries: r.maxEntries,
			Logger:     r.logger.With(zap.Stringer("fn", fn)),
		})
	}
	r.factories[memdbstore.Mode] = func(cachekey.FuncID, string) (storage.Storage, error) {
		return memdbstore.New()
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	cfg, err := config.FromEnv(config.Default())
	if err != nil {
		cfg = config.Default()
	}
	logger, lerr := cfg.Logger()
	if lerr != nil {
		logger = zap.NewNop()
	}
	if err != nil {
		logger.Warn("ignoring invalid memo environment", zap.Error(err))
	}
	return New(WithConfig(cfg), WithLogger(logger))
})

// Default returns the process-wide registry, configured from the MEMO_*
// environment on first use.
func Default() *Registry {
	return defaultRegistry()
}

// DefaultMode is the mode used for functions memoized without one.
func (r *Registry) DefaultMode() storage.Mode {
	return r.defaultMode
}

// RegisterMode installs or replaces the factory of mode. Storages already
// created under mode are kept.
func (r *Registry) RegisterMode(mode storage.Mode, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[mode] = factory
}

// Modes lists the modes that have a factory or registered storages.
func (r *Registry) Modes() []storage.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	modes := make([]storage.Mode, 0, len(r.factories))
	for m := range r.factories {
		modes = append(modes, m)
	}
	for m := range r.storages {
		if _, ok := r.factories[m]; !ok {
			modes = append(modes, m)
		}
	}
	slices.Sort(modes)
	return modes
}

// GetOrCreate returns the storage registered under (mode, name), creating
// it on first use. An empty name stands for fn's own name.
func (r *Registry) GetOrCreate(mode storage.Mode, fn cachekey.FuncID, name string) (storage.Storage, error) {
	if name == "" {
		name = fn.String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.storages[mode][name]; ok {
		return st, nil
	}
	factory, ok := r.factories[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	st, err := factory(fn, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage %q: %w", mode, name, err)
	}
	r.put(mode, name, st)
	r.logger.Debug("storage created", zap.String("mode", string(mode)), zap.String("name", name))
	return st, nil
}

// Attach registers a caller-built storage. Attaching the same instance twice
// is a no-op; a different instance under a taken name is refused.
func (r *Registry) Attach(mode storage.Mode, name string, st storage.Storage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.storages[mode][name]; ok {
		if old == st {
			return nil
		}
		return fmt.Errorf("%w: %s/%s", ErrStorageExists, mode, name)
	}
	r.put(mode, name, st)
	return nil
}

func (r *Registry) put(mode storage.Mode, name string, st storage.Storage) {
	byName, ok := r.storages[mode]
	if !ok {
		byName = make(map[string]storage.Storage)
		r.storages[mode] = byName
	}
	byName[name] = st
}

// Locks returns the per-key lease table of the storage slot (mode, name).
// Every caller computing into the same slot gets the same table, so a key
// is computed at most once at a time no matter how many wrappers share it.
func (r *Registry) Locks(mode storage.Mode, name string) *keylock.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := slot{mode, name}
	t, ok := r.locks[s]
	if !ok {
		t = keylock.New()
		r.locks[s] = t
	}
	return t
}

func (r *Registry) Lookup(mode storage.Mode, name string) (storage.Storage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.storages[mode][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownStorage, mode, name)
	}
	return st, nil
}

// List returns the storages of mode sorted by name.
func (r *Registry) List(mode storage.Mode) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.storages[mode]))
	for name, st := range r.storages[mode] {
		entries = append(entries, Entry{Mode: mode, Name: name, Storage: st})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Name < b.Name {
			return -1
		} else if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return entries
}

func (r *Registry) DiskRoot() string {
	r.rootMu.RLock()
	defer r.rootMu.RUnlock()
	return r.diskRoot
}

// SetDiskRoot moves the global disk root. Files under the old root stay
// where they are; lookups made from now on use the new root.
func (r *Registry) SetDiskRoot(root string) {
	r.rootMu.Lock()
	defer r.rootMu.Unlock()
	r.diskRoot = root
}

// SetFunctionRoot overrides the disk root of fn. An empty root removes the
// override.
func (r *Registry) SetFunctionRoot(fn cachekey.FuncID, root string) {
	r.rootMu.Lock()
	defer r.rootMu.Unlock()
	if root == "" {
		delete(r.roots, fn.String())
		return
	}
	r.roots[fn.String()] = root
}

// RootFor resolves the disk root of fn.
func (r *Registry) RootFor(fn cachekey.FuncID) string {
	r.rootMu.RLock()
	defer r.rootMu.RUnlock()
	if root, ok := r.roots[fn.String()]; ok {
		return root
	}
	return r.diskRoot
}

// ClearMode clears every storage of mode and reports all failures.
func (r *Registry) ClearMode(mode storage.Mode) error {
	var err error
	for _, e := range r.List(mode) {
		if cerr := e.Storage.Clear(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s/%s: %w", mode, e.Name, cerr))
		}
	}
	return err
}

func (r *Registry) Clear(mode storage.Mode, name string) error {
	st, err := r.Lookup(mode, name)
	if err != nil {
		return err
	}
	return st.Clear()
}

func (r *Registry) RemoveKey(mode storage.Mode, name string, key cachekey.CacheKey) (bool, error) {
	st, err := r.Lookup(mode, name)
	if err != nil {
		return false, err
	}
	return st.Remove(key)
}

func (r *Registry) KeysOf(mode storage.Mode, name string) ([]cachekey.CacheKey, error) {
	st, err := r.Lookup(mode, name)
	if err != nil {
		return nil, err
	}
	return st.Keys()
}
