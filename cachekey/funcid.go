package cachekey

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// FuncID identifies a memoized function by the package it is defined in and
// its name within that package. Two functions with the same name in different
// packages get different identities.
type FuncID struct {
	Module string
	Name   string
}

func (f FuncID) String() string {
	if f.Module == "" {
		return f.Name
	}
	return f.Module + "." + f.Name
}

// IsZero reports whether f carries no name at all.
func (f FuncID) IsZero() bool {
	return f.Module == "" && f.Name == ""
}

// FuncIDOf derives the identity of fn from its runtime symbol.
// Closures get their enclosing function's name plus the compiler suffix
// (e.g. "TestFetch.func1"), so callers that need identities stable across
// refactors should name them explicitly.
// It panics if fn is not a non-nil function.
func FuncIDOf(fn any) FuncID {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		panic(fmt.Sprintf("FuncIDOf: %T is not a function", fn))
	}
	rf := runtime.FuncForPC(rv.Pointer())
	if rf == nil {
		return FuncID{Name: fmt.Sprintf("%T", fn)}
	}
	return ParseFuncID(rf.Name())
}

// ParseFuncID splits a fully qualified symbol such as
// "github.com/acme/report.summarize" into its package path and name.
// The runtime escapes dots in the last path element, so the first dot after
// the last slash separates the two.
func ParseFuncID(symbol string) FuncID {
	slash := strings.LastIndex(symbol, "/")
	dot := strings.Index(symbol[slash+1:], ".")
	if dot < 0 {
		return FuncID{Name: symbol}
	}
	dot += slash + 1
	return FuncID{Module: symbol[:dot], Name: symbol[dot+1:]}
}
