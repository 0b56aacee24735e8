package cachekey

// Kind tags the variant held by a Token.
type Kind uint8

const (
	// KindLiteral marks a plain value, stored in canonical form.
	KindLiteral Kind = iota + 1

	// KindDerived marks a value produced by an earlier memoized call.
	KindDerived
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// Token is one argument of a CacheKey.
type Token struct {
	kind Kind
	name string
	repr string
	key  *CacheKey
}

// Literal builds a literal token from v.
// It fails with ErrInvalidArgument when v has no stable canonical form.
func Literal(v any) (Token, error) {
	repr, err := canonical(v)
	if err != nil {
		return Token{}, err
	}
	return Token{kind: KindLiteral, repr: repr}, nil
}

// Derived builds a token standing for the result of the call identified by k.
func Derived(k CacheKey) Token {
	return Token{kind: KindDerived, key: &k}
}

// WithName returns a copy of t bound to a keyword name.
func (t Token) WithName(name string) Token {
	t.name = name
	return t
}

func (t Token) Kind() Kind   { return t.kind }
func (t Token) Name() string { return t.name }

// Repr returns the canonical form of a literal token, or "" for a derived one.
func (t Token) Repr() string { return t.repr }

// Key returns the producing call of a derived token.
func (t Token) Key() (CacheKey, bool) {
	if t.kind != KindDerived || t.key == nil {
		return CacheKey{}, false
	}
	return *t.key, true
}

// Equal compares tokens structurally, descending into derived keys.
func (t Token) Equal(o Token) bool {
	if t.kind != o.kind || t.name != o.name {
		return false
	}
	if t.kind == KindDerived {
		return t.key.Equal(*o.key)
	}
	return t.repr == o.repr
}

func (t Token) String() string {
	var body string
	if t.kind == KindDerived {
		body = "@" + t.key.String()
	} else {
		body = t.repr
	}
	if t.name != "" {
		return t.name + "=" + body
	}
	return body
}
