package component

import (
	"fmt"
	"sort"

	"github.com/jasciiz/evox/internal/tensor"
)

// Snapshot is a flat mapping from dotted attribute path to tensor value.
// It is the explicit-state currency of the pure-function calling convention:
// extraction takes one in and hands one back.
type Snapshot map[string]*tensor.Tensor

// Clone returns a deep copy of the snapshot. Entries share no storage with
// the original, so a clone can be mutated freely.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for path, v := range s {
		out[path] = v.Clone()
	}
	return out
}

// Paths returns the snapshot's keys in sorted order. Every walk of a
// snapshot in this repository iterates in this order so that compilation is
// deterministic.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// KeySetEqual reports whether two snapshots cover exactly the same paths.
func KeySetEqual(a, b Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path := range a {
		if _, ok := b[path]; !ok {
			return false
		}
	}
	return true
}

// TakeSnapshot walks the component tree and returns the current state as a
// flat path-to-value mapping. Values are deep-copied: later mutation of the
// component does not retroactively change the snapshot, and two paths that
// alias the same tensor become independent entries.
func TakeSnapshot(c *Component) Snapshot {
	snap := make(Snapshot)
	takeInto(c, "", snap)
	return snap
}

func takeInto(c *Component, prefix string, snap Snapshot) {
	attrs := make([]string, 0, len(c.state))
	for name := range c.state {
		attrs = append(attrs, name)
	}
	sort.Strings(attrs)
	for _, name := range attrs {
		snap[prefix+name] = c.state[name].Clone()
	}
	for _, name := range c.order {
		takeInto(c.children[name], prefix+name+".", snap)
	}
}

// ApplySnapshot writes a snapshot back into the component tree in place.
// Paths whose owning component exists but whose attribute slot does not are
// created; this is how attributes introduced during an extracted call land on
// the live component. A path through a missing sub-component is an error.
func ApplySnapshot(c *Component, snap Snapshot) error {
	for _, path := range snap.Paths() {
		if err := c.SetStateAt(path, snap[path].Clone()); err != nil {
			return fmt.Errorf("apply snapshot: %w", err)
		}
	}
	return nil
}
