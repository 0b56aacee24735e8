package memo

import (
	"context"
	"fmt"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/shared/helper"
	"github.com/on-the-ground/memo_ive_go/storage"
)

// The WrapIxOy family memoizes typed functions of x inputs and y outputs.
// The function identity comes from fn itself, so every wrapper of the same
// fn shares one storage. Two outputs are cached together as a Tuple.
// Output types are registered with the disk codec.
//
// Wrappers panic when the options name an unknown mode or a taken storage
// name, as that is a programming error.

func WrapI1O1[I1, O1 any](
	fn func(context.Context, I1) (O1, error),
	opts ...Option,
) func(context.Context, I1) (O1, error) {
	storage.RegisterType[O1]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		return fn(ctx, argAt[I1](args, 0))
	}, opts)
	return func(ctx context.Context, i1 I1) (O1, error) {
		return helper.GetTypedValueOf[O1](func() (any, error) {
			return m.Call(ctx, i1)
		})
	}
}

func WrapI2O1[I1, I2, O1 any](
	fn func(context.Context, I1, I2) (O1, error),
	opts ...Option,
) func(context.Context, I1, I2) (O1, error) {
	storage.RegisterType[O1]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		return fn(ctx, argAt[I1](args, 0), argAt[I2](args, 1))
	}, opts)
	return func(ctx context.Context, i1 I1, i2 I2) (O1, error) {
		return helper.GetTypedValueOf[O1](func() (any, error) {
			return m.Call(ctx, i1, i2)
		})
	}
}

func WrapI3O1[I1, I2, I3, O1 any](
	fn func(context.Context, I1, I2, I3) (O1, error),
	opts ...Option,
) func(context.Context, I1, I2, I3) (O1, error) {
	storage.RegisterType[O1]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		return fn(ctx, argAt[I1](args, 0), argAt[I2](args, 1), argAt[I3](args, 2))
	}, opts)
	return func(ctx context.Context, i1 I1, i2 I2, i3 I3) (O1, error) {
		return helper.GetTypedValueOf[O1](func() (any, error) {
			return m.Call(ctx, i1, i2, i3)
		})
	}
}

func WrapI4O1[I1, I2, I3, I4, O1 any](
	fn func(context.Context, I1, I2, I3, I4) (O1, error),
	opts ...Option,
) func(context.Context, I1, I2, I3, I4) (O1, error) {
	storage.RegisterType[O1]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		return fn(ctx, argAt[I1](args, 0), argAt[I2](args, 1), argAt[I3](args, 2), argAt[I4](args, 3))
	}, opts)
	return func(ctx context.Context, i1 I1, i2 I2, i3 I3, i4 I4) (O1, error) {
		return helper.GetTypedValueOf[O1](func() (any, error) {
			return m.Call(ctx, i1, i2, i3, i4)
		})
	}
}

func WrapI1O2[I1, O1, O2 any](
	fn func(context.Context, I1) (O1, O2, error),
	opts ...Option,
) func(context.Context, I1) (O1, O2, error) {
	storage.RegisterType[O1]()
	storage.RegisterType[O2]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		o1, o2, err := fn(ctx, argAt[I1](args, 0))
		if err != nil {
			return nil, err
		}
		return Tuple{o1, o2}, nil
	}, opts)
	return func(ctx context.Context, i1 I1) (O1, O2, error) {
		return splitTuple[O1, O2](m.Call(ctx, i1))
	}
}

func WrapI2O2[I1, I2, O1, O2 any](
	fn func(context.Context, I1, I2) (O1, O2, error),
	opts ...Option,
) func(context.Context, I1, I2) (O1, O2, error) {
	storage.RegisterType[O1]()
	storage.RegisterType[O2]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		o1, o2, err := fn(ctx, argAt[I1](args, 0), argAt[I2](args, 1))
		if err != nil {
			return nil, err
		}
		return Tuple{o1, o2}, nil
	}, opts)
	return func(ctx context.Context, i1 I1, i2 I2) (O1, O2, error) {
		return splitTuple[O1, O2](m.Call(ctx, i1, i2))
	}
}

func WrapI3O2[I1, I2, I3, O1, O2 any](
	fn func(context.Context, I1, I2, I3) (O1, O2, error),
	opts ...Option,
) func(context.Context, I1, I2, I3) (O1, O2, error) {
	storage.RegisterType[O1]()
	storage.RegisterType[O2]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		o1, o2, err := fn(ctx, argAt[I1](args, 0), argAt[I2](args, 1), argAt[I3](args, 2))
		if err != nil {
			return nil, err
		}
		return Tuple{o1, o2}, nil
	}, opts)
	return func(ctx context.Context, i1 I1, i2 I2, i3 I3) (O1, O2, error) {
		return splitTuple[O1, O2](m.Call(ctx, i1, i2, i3))
	}
}

func WrapI4O2[I1, I2, I3, I4, O1, O2 any](
	fn func(context.Context, I1, I2, I3, I4) (O1, O2, error),
	opts ...Option,
) func(context.Context, I1, I2, I3, I4) (O1, O2, error) {
	storage.RegisterType[O1]()
	storage.RegisterType[O2]()
	m := mustWrap(fn, func(ctx context.Context, args ...any) (any, error) {
		o1, o2, err := fn(ctx, argAt[I1](args, 0), argAt[I2](args, 1), argAt[I3](args, 2), argAt[I4](args, 3))
		if err != nil {
			return nil, err
		}
		return Tuple{o1, o2}, nil
	}, opts)
	return func(ctx context.Context, i1 I1, i2 I2, i3 I3, i4 I4) (O1, O2, error) {
		return splitTuple[O1, O2](m.Call(ctx, i1, i2, i3, i4))
	}
}

func mustWrap(fn any, call Func, opts []Option) *Memoized {
	m, err := New(call, append([]Option{WithFuncID(cachekey.FuncIDOf(fn))}, opts...)...)
	if err != nil {
		panic(err)
	}
	return m
}

func argAt[T any](args []any, i int) T {
	v, _ := helper.TypedValue[T](args[i])
	return v
}

func splitTuple[O1, O2 any](res any, err error) (O1, O2, error) {
	var (
		o1 O1
		o2 O2
	)
	if err != nil {
		return o1, o2, err
	}
	t, err := helper.TypedValue[Tuple](res)
	if err != nil {
		return o1, o2, err
	}
	if len(t) != 2 {
		return o1, o2, fmt.Errorf("%w: want a pair, got %d elements", helper.ErrUnexpectedType, len(t))
	}
	if o1, err = helper.TypedValue[O1](t[0]); err != nil {
		return o1, o2, err
	}
	if o2, err = helper.TypedValue[O2](t[1]); err != nil {
		return o1, o2, err
	}
	return o1, o2, nil
}
