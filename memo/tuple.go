package memo

import "github.com/on-the-ground/memo_ive_go/storage"

// Tuple is a fixed-arity result with elements of mixed types. Returning one
// from a memoized function registers each element under its own element key,
// so downstream calls can depend on a single element. Only the direct
// elements are tracked, not values nested inside them.
type Tuple []any

func init() {
	storage.RegisterType[Tuple]()
}
