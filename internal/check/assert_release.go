//go:build !debug

// Package check holds invariant assertions that only fire in debug builds
// (go build -tags debug). Release builds compile them away.
package check

// Assert does nothing without the debug tag.
func Assert(bool, string) {}

// Assertf does nothing without the debug tag.
func Assertf(bool, string, ...any) {}
