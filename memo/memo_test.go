package memo_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/config"
	"github.com/on-the-ground/memo_ive_go/identity"
	"github.com/on-the-ground/memo_ive_go/memo"
	"github.com/on-the-ground/memo_ive_go/registry"
	"github.com/on-the-ground/memo_ive_go/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	fetchID     = cachekey.FuncID{Module: "example.com/report", Name: "fetch"}
	transformID = cachekey.FuncID{Module: "example.com/report", Name: "transform"}
	summarizeID = cachekey.FuncID{Module: "example.com/report", Name: "summarize"}
	splitID     = cachekey.FuncID{Module: "example.com/report", Name: "split"}
)

type report struct {
	Source string
	Rows   []int
}

func init() {
	storage.RegisterType[*report]()
}

// env is an isolated registry and identity registry for one test.
type env struct {
	t          *testing.T
	registry   *registry.Registry
	identities *identity.Registry
}

func newEnv(t *testing.T) *env {
	cfg := config.Default()
	cfg.DiskRoot = t.TempDir()
	return &env{
		t:          t,
		registry:   registry.New(registry.WithConfig(cfg), registry.WithLogger(zaptest.NewLogger(t))),
		identities: identity.NewRegistry(),
	}
}

func (e *env) memoize(fn memo.Func, id cachekey.FuncID, opts ...memo.Option) *memo.Memoized {
	e.t.Helper()
	m, err := memo.New(fn, append([]memo.Option{
		memo.WithFuncID(id),
		memo.WithRegistry(e.registry),
		memo.WithIdentities(e.identities),
		memo.WithLogger(zaptest.NewLogger(e.t)),
	}, opts...)...)
	require.NoError(e.t, err)
	return m
}

// counted returns a fetch-like function producing a fresh *report per run.
func counted(calls *atomic.Int32) memo.Func {
	return func(_ context.Context, args ...any) (any, error) {
		calls.Add(1)
		return &report{Source: args[0].(string), Rows: []int{1, 2, 3}}, nil
	}
}

func TestCall_ComputesOnce(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	fetch := e.memoize(counted(&calls), fetchID)

	first, err := fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	second, err := fetch.Call(context.Background(), "foo")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first, second)

	stats := fetch.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Zero(t, stats.Failures)
	assert.False(t, stats.LastComputation.Start().IsZero())
}

func TestCall_DistinctArgumentsComputeIndependently(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	fetch := e.memoize(counted(&calls), fetchID)

	a, err := fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	b, err := fetch.Call(context.Background(), "bar")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "foo", a.(*report).Source)
	assert.Equal(t, "bar", b.(*report).Source)
}

func TestCall_KeyFollowsDataDependency(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	fetch := e.memoize(counted(&calls), fetchID)
	summarize := e.memoize(func(_ context.Context, args ...any) (any, error) {
		return len(args[0].(*report).Rows), nil
	}, summarizeID)

	v, err := fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	fetchKey, err := fetch.Key("foo")
	require.NoError(t, err)

	key, err := summarize.Key(v, "daily")
	require.NoError(t, err)
	daily, err := cachekey.Literal("daily")
	require.NoError(t, err)
	assert.True(t, key.Equal(cachekey.New(summarizeID, cachekey.Derived(fetchKey), daily)))
	assert.Equal(t, `example.com/report.summarize(@example.com/report.fetch("foo"), "daily")`, key.String())

	// an equal value built outside memo has no provenance
	outsider := &report{Source: "foo", Rows: []int{1, 2, 3}}
	_, err = summarize.Key(outsider, "daily")
	assert.ErrorIs(t, err, memo.ErrInvalidArgument)
}

func TestIdentityMode_NeverStoresButCascades(t *testing.T) {
	e := newEnv(t)
	var fetches, transforms, summaries atomic.Int32
	fetch := e.memoize(counted(&fetches), fetchID)
	transform := e.memoize(func(_ context.Context, args ...any) (any, error) {
		transforms.Add(1)
		in := args[0].(*report)
		out := &report{Source: in.Source}
		for _, r := range in.Rows {
			out.Rows = append(out.Rows, r*10)
		}
		return out, nil
	}, transformID, memo.WithMode(storage.ModeIdentity))
	summarize := e.memoize(func(_ context.Context, args ...any) (any, error) {
		summaries.Add(1)
		sum := 0
		for _, r := range args[0].(*report).Rows {
			sum += r
		}
		return sum, nil
	}, summarizeID)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		raw, err := fetch.Call(ctx, "foo")
		require.NoError(t, err)
		shaped, err := transform.Call(ctx, raw)
		require.NoError(t, err)

		transformKey, err := transform.Key(raw)
		require.NoError(t, err)
		assert.Equal(t, `example.com/report.transform(@example.com/report.fetch("foo"))`, transformKey.String())
		ok, err := transform.Storage().Contains(transformKey)
		require.NoError(t, err)
		assert.False(t, ok)

		summaryKey, err := summarize.Key(shaped, "daily")
		require.NoError(t, err)
		assert.Equal(t,
			`example.com/report.summarize(@example.com/report.transform(@example.com/report.fetch("foo")), "daily")`,
			summaryKey.String())

		total, err := summarize.Call(ctx, shaped, "daily")
		require.NoError(t, err)
		assert.Equal(t, 60, total)
	}

	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, int32(3), transforms.Load(), "identity mode recomputes every time")
	assert.Equal(t, int32(1), summaries.Load(), "downstream still hits through the cascade")

	keys, err := transform.Storage().Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDiskMode_RootChangeMissesThenRevertHits(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	fetch := e.memoize(func(_ context.Context, args ...any) (any, error) {
		calls.Add(1)
		return "payload:" + args[0].(string), nil
	}, fetchID, memo.WithMode(storage.ModeDisk))
	ctx := context.Background()

	_, err := fetch.Call(ctx, "foo")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	original := e.registry.DiskRoot()
	e.registry.SetDiskRoot(t.TempDir())
	_, err = fetch.Call(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "new root is a miss")

	e.registry.SetDiskRoot(original)
	v, err := fetch.Call(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "payload:foo", v)
	assert.Equal(t, int32(2), calls.Load(), "old root hits again")
}

func TestDiskMode_PerFunctionRoot(t *testing.T) {
	e := newEnv(t)
	root := t.TempDir()
	fetch := e.memoize(func(_ context.Context, args ...any) (any, error) {
		return args[0], nil
	}, fetchID, memo.WithMode(storage.ModeDisk), memo.WithDiskRoot(root))

	_, err := fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, root, e.registry.RootFor(fetchID))
	assert.DirExists(t, fetch.Storage().(*storage.Disk).Dir())
}

func TestDiskMode_HitRegistersFreshInstances(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	fetch := e.memoize(counted(&calls), fetchID, memo.WithMode(storage.ModeDisk))
	ctx := context.Background()

	first, err := fetch.Call(ctx, "foo")
	require.NoError(t, err)
	second, err := fetch.Call(ctx, "foo")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second, "disk decodes a new instance")

	k, ok := e.identities.Lookup(second)
	require.True(t, ok, "decoded instance must keep its provenance")
	want, err := fetch.Key("foo")
	require.NoError(t, err)
	assert.True(t, k.Equal(want))
}

func TestDiskMode_StoreFailureIsSurfaced(t *testing.T) {
	type unregistered struct{ N int }
	e := newEnv(t)
	fn := e.memoize(func(context.Context, ...any) (any, error) {
		return unregistered{N: 1}, nil
	}, fetchID, memo.WithMode(storage.ModeDisk))

	_, err := fn.Call(context.Background(), "foo")
	assert.ErrorIs(t, err, memo.ErrStorageIO)
}

func TestCall_ConcurrentCallersComputeOnce(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	gate := make(chan struct{})
	fetch := e.memoize(func(_ context.Context, args ...any) (any, error) {
		calls.Add(1)
		<-gate
		return &report{Source: args[0].(string)}, nil
	}, fetchID)

	const n = 32
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := fetch.Call(context.Background(), "foo")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestCall_SharedStorageSharesLocks(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	gate := make(chan struct{})
	fn := func(_ context.Context, args ...any) (any, error) {
		calls.Add(1)
		<-gate
		return args[0], nil
	}
	a := e.memoize(fn, fetchID)
	b := e.memoize(fn, fetchID)
	require.True(t, a.Storage() == b.Storage())

	var wg sync.WaitGroup
	for _, m := range []*memo.Memoized{a, b, a, b} {
		wg.Add(1)
		go func(m *memo.Memoized) {
			defer wg.Done()
			_, err := m.Call(context.Background(), "foo")
			assert.NoError(t, err)
		}(m)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestCall_DifferentKeysRunInParallel(t *testing.T) {
	e := newEnv(t)
	var running atomic.Int32
	both := make(chan struct{})
	fetch := e.memoize(func(_ context.Context, args ...any) (any, error) {
		if running.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return args[0], nil
		case <-time.After(time.Second):
			return nil, errors.New("keys were serialized")
		}
	}, fetchID)

	var wg sync.WaitGroup
	for _, arg := range []string{"foo", "bar"} {
		wg.Add(1)
		go func(arg string) {
			defer wg.Done()
			_, err := fetch.Call(context.Background(), arg)
			assert.NoError(t, err)
		}(arg)
	}
	wg.Wait()
}

func TestCall_ErrorsAreNotCached(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("boom")
	var calls atomic.Int32
	fetch := e.memoize(func(_ context.Context, args ...any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return &report{Source: args[0].(string)}, nil
	}, fetchID)

	_, err := fetch.Call(context.Background(), "foo")
	assert.Same(t, boom, err, "wrapped errors pass through unchanged")
	keys, err := fetch.Storage().Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Zero(t, e.identities.Len())

	v, err := fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", v.(*report).Source)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(1), fetch.Stats().Failures)
}

func TestCall_WaitersRetryAfterFailure(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("boom")
	var calls atomic.Int32
	started, proceed := make(chan struct{}), make(chan struct{})
	fetch := e.memoize(func(_ context.Context, args ...any) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-proceed
			return nil, boom
		}
		return "recovered", nil
	}, fetchID)

	firstErr := make(chan error, 1)
	go func() {
		_, err := fetch.Call(context.Background(), "foo")
		firstErr <- err
	}()
	<-started

	second := make(chan any, 1)
	go func() {
		v, err := fetch.Call(context.Background(), "foo")
		assert.NoError(t, err)
		second <- v
	}()
	time.Sleep(10 * time.Millisecond)
	close(proceed)

	assert.ErrorIs(t, <-firstErr, boom)
	assert.Equal(t, "recovered", <-second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_CancelledWaiterLeaves(t *testing.T) {
	e := newEnv(t)
	started, proceed := make(chan struct{}), make(chan struct{})
	fetch := e.memoize(func(context.Context, ...any) (any, error) {
		close(started)
		<-proceed
		return 1, nil
	}, fetchID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := fetch.Call(context.Background(), "foo")
		assert.NoError(t, err)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() {
		_, err := fetch.Call(ctx, "foo")
		waiterErr <- err
	}()
	cancel()
	assert.ErrorIs(t, <-waiterErr, context.Canceled)

	close(proceed)
	<-done
}

func TestCall_InvalidArgumentNeverReachesStorage(t *testing.T) {
	e := newEnv(t)
	spy := &spyStorage{Storage: storage.NewMemory()}
	var calls atomic.Int32
	fn := e.memoize(func(context.Context, ...any) (any, error) {
		calls.Add(1)
		return 1, nil
	}, fetchID, memo.WithStorage(spy))

	_, err := fn.Call(context.Background(), []int{1, 2})
	assert.ErrorIs(t, err, memo.ErrInvalidArgument)
	assert.Zero(t, calls.Load())
	assert.Zero(t, spy.ops.Load())

	assert.Equal(t, storage.ModeCustom, fn.Mode())
	st, err := e.registry.Lookup(storage.ModeCustom, fetchID.String())
	require.NoError(t, err)
	assert.Same(t, spy, st)
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	fetch := e.memoize(counted(&calls), fetchID)
	k, err := fetch.Key("foo")
	require.NoError(t, err)

	removed, err := fetch.Storage().Remove(k)
	require.NoError(t, err)
	assert.False(t, removed, "absent key")

	_, err = fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	removed, err = fetch.Storage().Remove(k)
	require.NoError(t, err)
	assert.True(t, removed)
	ok, err := fetch.Storage().Contains(k)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fetch.Call(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTuple_ElementsCarryElementKeys(t *testing.T) {
	e := newEnv(t)
	split := e.memoize(func(_ context.Context, args ...any) (any, error) {
		n := args[0].(int)
		return memo.Tuple{&report{Rows: make([]int, n/2)}, &report{Rows: make([]int, n-n/2)}, n}, nil
	}, splitID)
	summarize := e.memoize(func(_ context.Context, args ...any) (any, error) {
		return len(args[0].(*report).Rows), nil
	}, summarizeID)

	v, err := split.Call(context.Background(), 5)
	require.NoError(t, err)
	parts := v.(memo.Tuple)
	splitKey, err := split.Key(5)
	require.NoError(t, err)

	key, err := summarize.Key(parts[1])
	require.NoError(t, err)
	assert.True(t, key.Equal(cachekey.New(summarizeID, cachekey.Derived(splitKey.Element(1)))))
	assert.Equal(t, `example.com/report.summarize(@example.com/report.split(5)[1])`, key.String())

	// plain values inside the tuple have no identity
	key, err = summarize.Key(parts[2])
	require.NoError(t, err)
	assert.Equal(t, `example.com/report.summarize(5)`, key.String())
}

func TestCall_NamedArguments(t *testing.T) {
	e := newEnv(t)
	var got []any
	fn := e.memoize(func(_ context.Context, args ...any) (any, error) {
		got = args
		return 0, nil
	}, summarizeID)

	window := cachekey.Named("window", 7)
	k, err := fn.Key(window)
	require.NoError(t, err)
	assert.Equal(t, "example.com/report.summarize(window=7)", k.String())

	_, err = fn.Call(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, []any{7}, got)
}

func TestNew_Errors(t *testing.T) {
	e := newEnv(t)
	_, err := memo.New(nil)
	assert.Error(t, err)

	_, err = memo.New(func(context.Context, ...any) (any, error) { return nil, nil },
		memo.WithRegistry(e.registry), memo.WithMode("redis"))
	assert.ErrorIs(t, err, memo.ErrUnknownMode)
}

func TestNew_DerivesFuncID(t *testing.T) {
	e := newEnv(t)
	m, err := memo.New(namedForFuncID, memo.WithRegistry(e.registry))
	require.NoError(t, err)
	assert.Equal(t, "github.com/on-the-ground/memo_ive_go/memo_test", m.FuncID().Module)
	assert.Equal(t, "namedForFuncID", m.FuncID().Name)
	assert.Equal(t, m.FuncID().String(), m.Name())
	assert.Equal(t, storage.ModeMemory, m.Mode())
}

func namedForFuncID(context.Context, ...any) (any, error) { return nil, nil }

type spyStorage struct {
	storage.Storage
	ops atomic.Int32
}

func (s *spyStorage) Contains(k cachekey.CacheKey) (bool, error) {
	s.ops.Add(1)
	return s.Storage.Contains(k)
}

func (s *spyStorage) Fetch(k cachekey.CacheKey) (any, error) {
	s.ops.Add(1)
	return s.Storage.Fetch(k)
}

func (s *spyStorage) Store(k cachekey.CacheKey, v any) error {
	s.ops.Add(1)
	return s.Storage.Store(k, v)
}

func TestCall_IsolatedRegistriesDoNotShareLocks(t *testing.T) {
	first, second := newEnv(t), newEnv(t)
	gate := make(chan struct{})
	var calls atomic.Int32
	fn := func(_ context.Context, args ...any) (any, error) {
		if calls.Add(1) == 2 {
			close(gate)
		}
		select {
		case <-gate:
			return args[0], nil
		case <-time.After(time.Second):
			return nil, errors.New("registries were serialized")
		}
	}
	a := first.memoize(fn, fetchID)
	b := second.memoize(fn, fetchID)

	var wg sync.WaitGroup
	for _, m := range []*memo.Memoized{a, b} {
		wg.Add(1)
		go func(m *memo.Memoized) {
			defer wg.Done()
			_, err := m.Call(context.Background(), "foo")
			assert.NoError(t, err)
		}(m)
	}
	wg.Wait()
	assert.Equal(t, int32(2), calls.Load())
}
