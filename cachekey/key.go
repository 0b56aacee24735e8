package cachekey

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// CacheKey identifies one invocation of a memoized function.
// It is immutable; accessors hand out copies.
type CacheKey struct {
	fn   FuncID
	args []Token
	// elem is 0 for the whole result, i+1 for element i of a tuple result.
	elem int
	str  string
}

// New builds a key from already constructed tokens.
func New(fn FuncID, args ...Token) CacheKey {
	return newKey(fn, append([]Token(nil), args...), 0)
}

func newKey(fn FuncID, args []Token, elem int) CacheKey {
	k := CacheKey{fn: fn, args: args, elem: elem}
	k.str = k.render()
	return k
}

func (k CacheKey) Func() FuncID { return k.fn }

// Args returns a copy of the argument tokens.
func (k CacheKey) Args() []Token {
	return append([]Token(nil), k.args...)
}

// Element returns the synthetic key of element i of the tuple produced by
// the call k identifies.
func (k CacheKey) Element(i int) CacheKey {
	if i < 0 {
		panic(fmt.Sprintf("cachekey: negative element index %d", i))
	}
	return newKey(k.fn, k.args, i+1)
}

// ElementIndex reports which tuple element k denotes, if any.
func (k CacheKey) ElementIndex() (int, bool) {
	if k.elem == 0 {
		return 0, false
	}
	return k.elem - 1, true
}

// Whole returns the key of the complete result k is part of.
func (k CacheKey) Whole() CacheKey {
	if k.elem == 0 {
		return k
	}
	return newKey(k.fn, k.args, 0)
}

func (k CacheKey) IsZero() bool {
	return k.fn.IsZero() && len(k.args) == 0 && k.elem == 0
}

// Equal compares keys structurally.
func (k CacheKey) Equal(o CacheKey) bool {
	if k.fn != o.fn || k.elem != o.elem || len(k.args) != len(o.args) {
		return false
	}
	for i := range k.args {
		if !k.args[i].Equal(o.args[i]) {
			return false
		}
	}
	return true
}

// Hash is a 64-bit digest of the canonical string form.
// Distinct keys may share a hash; callers must confirm with Equal.
func (k CacheKey) Hash() uint64 {
	return xxhash.Sum64String(k.str)
}

func (k CacheKey) String() string {
	return k.str
}

func (k CacheKey) render() string {
	var b strings.Builder
	b.WriteString(k.fn.String())
	b.WriteByte('(')
	for i, arg := range k.args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.String())
	}
	b.WriteByte(')')
	if k.elem > 0 {
		fmt.Fprintf(&b, "[%d]", k.elem-1)
	}
	return b.String()
}
