// Package regex implements the regex extension functions a streaming query
// host can call on event attributes: find, matches, lookingAt and group,
// registered under the "regex" namespace.
//
// Each function is a thin validation-and-delegation layer over a pluggable
// matcher Engine:
//
//	Setup (once per call site):
//	  - arity and parameter types are checked against the Descriptor
//	  - a constant pattern is compiled once and kept in the instance State
//
//	Execute (once per event):
//	  - null pattern is an error, null subject is a soft false
//	    (group escalates every null to an error)
//	  - the cached pattern is used if constant, otherwise the runtime
//	    pattern is compiled for this call only
//
// # State
//
// State is a two-variant value chosen at setup: constant (holds the compiled
// Pattern) or dynamic (holds nothing). It is immutable; Restore swaps the
// whole State atomically, so concurrent Execute calls never lock.
//
// Snapshot and Restore convert State to and from a flat ir.IRObject. A
// snapshot carries the pattern source, engine and anchoring, which is enough
// to rebuild an identical compiled pattern after a restart.
//
// # Engines
//
// Three engines are registered by default: "regexp2" (the default,
// backtracking with Java-like syntax), "coregex" and "re2" (RE2 family).
// Offsets passed to find are character (rune) offsets on every engine.
package regex
