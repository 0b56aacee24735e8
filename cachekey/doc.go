// Package cachekey models a single memoized invocation as an immutable,
// comparable value.
//
// A CacheKey is the identity of the called function (FuncID) plus one Token
// per argument. A Token is either a Literal, holding the canonical form of a
// plain value, or Derived, holding the CacheKey of the memoized call that
// produced the argument. Derived tokens nest to arbitrary depth, so a value
// flowing through several memoized transforms keeps its whole provenance in
// the key of every downstream call:
//
//	pkg.fetch("foo")
//	pkg.summarize(@pkg.fetch("foo"), "daily")
//	pkg.summarize(@pkg.transform(@pkg.fetch("foo")), "daily")
//
// Keys compare structurally (Equal), never by reference. Hash gives a stable
// 64-bit digest of the canonical string form, usable as a bucket or file name.
//
// Build never calls the memoized function and never touches storage; the only
// outside state it reads is the Lookup it is handed.
package cachekey
