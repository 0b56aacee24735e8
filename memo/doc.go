// Package memo memoizes deterministic functions with data-dependency-aware
// keys.
//
// A memoized function computes each distinct argument combination once and
// answers later calls from its storage. When an argument is itself the
// result of a memoized call, the key records the producing call's key rather
// than the raw value, so results stay linked to their provenance:
//
//	fetch := memo.WrapI1O1(fetchReport)
//	summarize := memo.WrapI2O1(summarizeReport)
//
//	r, _ := fetch(ctx, "foo")             // key: fetchReport("foo")
//	s, _ := summarize(ctx, r, "daily")    // key: summarizeReport(@fetchReport("foo"), "daily")
//
// Provenance is tracked by object identity, so it only follows results that
// have one: pointers and maps. A function in identity mode never caches, but
// its results still carry keys, letting cheap transforms sit between two
// cached steps without breaking the chain.
//
// Concurrent calls with the same key compute at most once: later callers
// wait for the first and then read its stored result. A failed or cancelled
// computation stores nothing, and its waiters compute afresh.
package memo
