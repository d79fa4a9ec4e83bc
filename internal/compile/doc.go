// Package compile is the compilation dispatcher: it resolves the active
// variant of an operation, wraps state extraction and the vectorized-map
// transform around it as the mode requires, probes the result for trace
// safety, and caches the finished artifact keyed by call signature.
//
// Compilation itself is synchronous and single-threaded per call; the only
// concurrency this package manages comes from independent callers compiling
// the same signature at once, which a per-signature singleflight collapses
// into one physical compilation. Artifacts live until the cache is
// explicitly cleared; nothing invalidates them implicitly.
package compile
