package compile

import "sync"

// Cache holds compiled artifacts keyed by call signature. It is an explicit,
// injectable object rather than package-level state: callers that need
// isolation construct their own, and clearing is a defined operation instead
// of a process restart.
type Cache struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// NewCache returns an empty artifact cache.
func NewCache() *Cache {
	return &Cache{artifacts: make(map[string]*Artifact)}
}

// Get returns the cached artifact for a signature key, if present.
func (c *Cache) Get(key string) (*Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.artifacts[key]
	return a, ok
}

// put stores a finished artifact. Only the dispatcher writes the cache, and
// only from inside the per-signature singleflight, so a partially built
// artifact is never observable.
func (c *Cache) put(key string, a *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts[key] = a
}

// Len reports the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.artifacts)
}

// Clear drops every cached artifact. This is the only invalidation path;
// recompilation afterwards is independent of prior compiler state.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = make(map[string]*Artifact)
}
