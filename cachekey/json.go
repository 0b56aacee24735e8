package cachekey

import (
	"encoding/json"
	"fmt"
)

type wireKey struct {
	Module  string      `json:"module,omitempty"`
	Name    string      `json:"name"`
	Args    []wireToken `json:"args,omitempty"`
	Element *int        `json:"element,omitempty"`
}

type wireToken struct {
	Kind string   `json:"kind"`
	Name string   `json:"name,omitempty"`
	Repr string   `json:"repr,omitempty"`
	Key  *wireKey `json:"key,omitempty"`
}

func (k CacheKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.wire())
}

func (k *CacheKey) UnmarshalJSON(data []byte) error {
	var w wireKey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := w.key()
	if err != nil {
		return err
	}
	*k = decoded
	return nil
}

func (k CacheKey) wire() wireKey {
	w := wireKey{Module: k.fn.Module, Name: k.fn.Name}
	if i, ok := k.ElementIndex(); ok {
		w.Element = &i
	}
	for _, t := range k.args {
		wt := wireToken{Kind: t.kind.String(), Name: t.name, Repr: t.repr}
		if t.kind == KindDerived {
			inner := t.key.wire()
			wt.Key = &inner
		}
		w.Args = append(w.Args, wt)
	}
	return w
}

func (w wireKey) key() (CacheKey, error) {
	tokens := make([]Token, len(w.Args))
	for i, wt := range w.Args {
		switch wt.Kind {
		case KindLiteral.String():
			tokens[i] = Token{kind: KindLiteral, name: wt.Name, repr: wt.Repr}
		case KindDerived.String():
			if wt.Key == nil {
				return CacheKey{}, fmt.Errorf("derived argument %d has no key", i)
			}
			inner, err := wt.Key.key()
			if err != nil {
				return CacheKey{}, err
			}
			tokens[i] = Derived(inner).WithName(wt.Name)
		default:
			return CacheKey{}, fmt.Errorf("argument %d has unknown kind %q", i, wt.Kind)
		}
	}
	elem := 0
	if w.Element != nil {
		if *w.Element < 0 {
			return CacheKey{}, fmt.Errorf("negative element index %d", *w.Element)
		}
		elem = *w.Element + 1
	}
	return newKey(FuncID{Module: w.Module, Name: w.Name}, tokens, elem), nil
}
