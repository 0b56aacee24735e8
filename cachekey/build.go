package cachekey

import "fmt"

// Lookup resolves a runtime value to the key of the memoized call that
// produced it. The identity registry implements it.
type Lookup interface {
	Lookup(v any) (CacheKey, bool)
}

// NamedArg marks an argument as passed by keyword.
type NamedArg struct {
	Name  string
	Value any
}

// Named wraps v as a keyword argument. Named arguments take part in the key
// with their name, so f(Named("window", 7)) and f(7) are different calls.
func Named(name string, v any) NamedArg {
	return NamedArg{Name: name, Value: v}
}

// Build derives the key of calling fn with args.
// Each argument the lookup recognizes becomes a Derived token; everything
// else must have a canonical literal form.
func Build(fn FuncID, lookup Lookup, args ...any) (CacheKey, error) {
	tokens := make([]Token, len(args))
	for i, arg := range args {
		var name string
		if named, ok := arg.(NamedArg); ok {
			name, arg = named.Name, named.Value
		}
		tok, err := tokenOf(lookup, arg)
		if err != nil {
			return CacheKey{}, fmt.Errorf("%s argument %d: %w", fn, i, err)
		}
		tokens[i] = tok.WithName(name)
	}
	return newKey(fn, tokens, 0), nil
}

func tokenOf(lookup Lookup, arg any) (Token, error) {
	if lookup != nil {
		if k, ok := lookup.Lookup(arg); ok {
			return Derived(k), nil
		}
	}
	return Literal(arg)
}
