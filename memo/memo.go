package memo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/identity"
	"github.com/on-the-ground/memo_ive_go/internal/keylock"
	"github.com/on-the-ground/memo_ive_go/registry"
	"github.com/on-the-ground/memo_ive_go/shared/logging"
	"github.com/on-the-ground/memo_ive_go/storage"
)

// Func is the shape of a function that can be memoized. Arguments wrapped
// with cachekey.Named reach fn unwrapped.
type Func func(ctx context.Context, args ...any) (any, error)

// Memoized wraps a Func with a storage. It is safe for concurrent use.
type Memoized struct {
	fn         Func
	id         cachekey.FuncID
	mode       storage.Mode
	name       string
	storage    storage.Storage
	identities *identity.Registry
	locks      *keylock.Table
	logger     *zap.Logger
	counters   counters
}

// New memoizes fn. Its storage comes from the registry (registry.Default
// unless WithRegistry is given) under the chosen mode and name, so two
// Memoized values with the same function identity share results.
func New(fn Func, opts ...Option) (*Memoized, error) {
	if fn == nil {
		return nil, errors.New("memo: nil function")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.funcID.IsZero() {
		o.funcID = cachekey.FuncIDOf(fn)
	}
	if o.registry == nil {
		o.registry = registry.Default()
	}
	if o.identities == nil {
		o.identities = identity.Default()
	}
	if o.mode == "" {
		if o.storage != nil {
			o.mode = storage.ModeCustom
		} else {
			o.mode = o.registry.DefaultMode()
		}
	}
	if o.name == "" {
		o.name = o.funcID.String()
	}
	if o.diskRoot != "" {
		o.registry.SetFunctionRoot(o.funcID, o.diskRoot)
	}

	st := o.storage
	if st != nil {
		if err := o.registry.Attach(o.mode, o.name, st); err != nil {
			return nil, err
		}
	} else {
		var err error
		if st, err = o.registry.GetOrCreate(o.mode, o.funcID, o.name); err != nil {
			return nil, err
		}
	}

	logger := logging.OrNop(o.logger).With(
		zap.Stringer("fn", o.funcID),
		zap.String("mode", string(o.mode)),
	)
	return &Memoized{
		fn:         fn,
		id:         o.funcID,
		mode:       o.mode,
		name:       o.name,
		storage:    st,
		identities: o.identities,
		locks:      o.registry.Locks(o.mode, o.name),
		logger:     logger,
	}, nil
}

// Call returns the memoized result of fn(args...), computing it on a miss.
// Errors from fn are returned unchanged and nothing is cached for them.
func (m *Memoized) Call(ctx context.Context, args ...any) (any, error) {
	key, err := m.Key(args...)
	if err != nil {
		return nil, err
	}

	release, err := m.locks.Acquire(ctx, key.Hash())
	if err != nil {
		return nil, err
	}
	defer release()

	value, hit, err := m.check(key)
	if err != nil {
		return nil, err
	}

	if hit {
		m.counters.hit()
		m.logger.Debug("memo hit", zap.Stringer("key", key))
	} else {
		from := time.Now()
		value, err = m.fn(ctx, unwrapNamed(args)...)
		span := m.counters.computed(from, time.Now(), err != nil)
		if err != nil {
			m.logger.Debug("memo computation failed", zap.Stringer("key", key), zap.Error(err))
			return nil, err
		}
		m.logger.Debug("memo miss", zap.Stringer("key", key), zap.Duration("took", span.Duration()))

		if err := m.storage.Store(key, value); err != nil {
			m.logger.Warn("memo store failed", zap.Stringer("key", key), zap.Error(err))
			return nil, fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	m.register(key, value)
	return value, nil
}

// check consults the storage. A binding that disappears between Contains
// and Fetch is a miss.
func (m *Memoized) check(key cachekey.CacheKey) (any, bool, error) {
	ok, err := m.storage.Contains(key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	value, err := m.storage.Fetch(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		m.logger.Warn("memo fetch failed", zap.Stringer("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	return value, true, nil
}

// register runs after hits too, so values decoded from disk as fresh
// instances keep their provenance.
func (m *Memoized) register(key cachekey.CacheKey, value any) {
	m.identities.Register(value, key)
	if t, ok := value.(Tuple); ok {
		m.identities.RegisterElements(key, t)
	}
}

// Key builds the key Call would use for args, without calling anything.
func (m *Memoized) Key(args ...any) (cachekey.CacheKey, error) {
	return cachekey.Build(m.id, m.identities, args...)
}

func (m *Memoized) FuncID() cachekey.FuncID  { return m.id }
func (m *Memoized) Mode() storage.Mode       { return m.mode }
func (m *Memoized) Name() string             { return m.name }
func (m *Memoized) Storage() storage.Storage { return m.storage }
func (m *Memoized) Stats() Stats             { return m.counters.snapshot() }

func unwrapNamed(args []any) []any {
	var out []any
	for i, arg := range args {
		named, ok := arg.(cachekey.NamedArg)
		if !ok {
			continue
		}
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i] = named.Value
	}
	if out == nil {
		return args
	}
	return out
}
