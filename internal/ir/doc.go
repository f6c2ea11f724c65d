// Package ir provides the typed intermediate representation shared by the
// regex functions, the application compiler, the host runtime and the store.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Null is a value (IRNull), never a Go nil inside containers
//   - All JSON tags use snake_case
//   - Canonical JSON (RFC 8785) is the only format used for hashing
package ir
