// Package registry provides the central "glue" between declared operations
// and the Go code that implements them.
//
// The Registry stores, per logical operation, its default implementation and
// the optional per-mode overrides used by trace and vectorized compilation.
// It also holds the parsed, format-agnostic operation definitions from the
// manifests themselves.
//
// During application startup the registry is populated and then validated to
// ensure that the Go code and the public-facing manifests are in sync,
// preventing a wide class of signature errors from surfacing mid-trace.
// After that point the registry is read-mostly: resolution happens at
// compile time, not per executed call.
package registry
