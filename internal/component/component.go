// Package component defines the stateful building block the compilation
// layer operates on.
//
// Why a tree of named attribute slots instead of a plain Go struct?
//
// The state extractor has to turn "call a method that mutates fields" into
// "call a pure function of an explicit state mapping". For that it needs to
// enumerate a component's mutable state, address each piece stably across
// calls, and write a possibly-modified mapping back. A tree of named slots
// addressed by dotted path gives all three for free: enumeration is a walk,
// addressing is the path, and write-back is a path lookup. A pointer graph
// would force reflection and break down on shared references.
//
// Attributes come in two flavors. Static configuration holds cty.Value
// settings decoded from manifests; these never change after construction and
// never appear in state snapshots. Mutable state holds tensor values; these
// are exactly what snapshots capture.
//
// Two state paths that happen to reference the same underlying tensor are
// snapshotted as two independent entries. This flattening is a documented
// approximation, not general alias tracking: downstream code relies on the
// lossy behavior, so it must not be "fixed" here.
package component

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/jasciiz/evox/internal/tensor"
)

// InPlaceMutationError reports that a component's state was assigned directly
// while the component was frozen for vectorized execution. Vectorized
// variants must return new state instead of mutating.
type InPlaceMutationError struct {
	Path string
}

// Error implements the error interface.
func (e *InPlaceMutationError) Error() string {
	return fmt.Sprintf("in-place mutation of %q under vectorization; vectorized variants must return new state", e.Path)
}

// Component is a named aggregate of sub-components and attributes. Identity
// is pointer identity: two parents holding the same child share its lifetime.
type Component struct {
	name     string
	order    []string
	children map[string]*Component
	config   map[string]cty.Value
	state    map[string]*tensor.Tensor
	frozen   atomic.Int32
}

// New creates an empty component with the given name.
func New(name string) *Component {
	return &Component{
		name:     name,
		children: make(map[string]*Component),
		config:   make(map[string]cty.Value),
		state:    make(map[string]*tensor.Tensor),
	}
}

// Name returns the component's own name.
func (c *Component) Name() string { return c.name }

// Clone returns a deep copy of the component tree. State tensors are copied;
// config values are shared, as cty values are immutable. The clone starts
// unfrozen regardless of the original's freeze depth. Compilation probes run
// against clones so that a build never touches the live tree.
func (c *Component) Clone() *Component {
	out := New(c.name)
	out.order = append(out.order, c.order...)
	for name, child := range c.children {
		out.children[name] = child.Clone()
	}
	for name, v := range c.config {
		out.config[name] = v
	}
	for name, v := range c.state {
		out.state[name] = v.Clone()
	}
	return out
}

// Attach adds child as a sub-component under the given name, replacing any
// previous child of that name.
func (c *Component) Attach(name string, child *Component) {
	if _, exists := c.children[name]; !exists {
		c.order = append(c.order, name)
	}
	c.children[name] = child
}

// Child returns the direct sub-component of that name, if present.
func (c *Component) Child(name string) (*Component, bool) {
	child, ok := c.children[name]
	return child, ok
}

// SetConfig stores a static configuration attribute. Config is not part of
// state snapshots and is not guarded by freezing.
func (c *Component) SetConfig(name string, v cty.Value) {
	c.config[name] = v
}

// Config returns a static configuration attribute.
func (c *Component) Config(name string) (cty.Value, bool) {
	v, ok := c.config[name]
	return v, ok
}

// SetState assigns a mutable state attribute. While the component is frozen
// for vectorized execution the assignment fails with InPlaceMutationError.
func (c *Component) SetState(name string, v *tensor.Tensor) error {
	if c.frozen.Load() > 0 {
		return &InPlaceMutationError{Path: name}
	}
	c.state[name] = v
	return nil
}

// State returns a mutable state attribute.
func (c *Component) State(name string) (*tensor.Tensor, bool) {
	v, ok := c.state[name]
	return v, ok
}

// Freeze marks the component tree read-only with respect to state. Used by
// the dispatcher while a vectorized variant executes. Freezes nest: the tree
// stays read-only until every Freeze has been matched by an Unfreeze, so
// overlapping vectorized executions cannot lift each other's guard.
func (c *Component) Freeze() {
	c.frozen.Add(1)
	for _, name := range c.order {
		c.children[name].Freeze()
	}
}

// Unfreeze lifts one Freeze.
func (c *Component) Unfreeze() {
	c.frozen.Add(-1)
	for _, name := range c.order {
		c.children[name].Unfreeze()
	}
}

// resolve walks a dotted path to the component owning its final segment.
func (c *Component) resolve(path string) (*Component, string, error) {
	segs := strings.Split(path, ".")
	cur := c
	for _, seg := range segs[:len(segs)-1] {
		child, ok := cur.children[seg]
		if !ok {
			return nil, "", fmt.Errorf("component %q has no sub-component %q (path %q)", cur.name, seg, path)
		}
		cur = child
	}
	return cur, segs[len(segs)-1], nil
}

// StateAt returns the state attribute at a dotted path.
func (c *Component) StateAt(path string) (*tensor.Tensor, error) {
	owner, attr, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	v, ok := owner.state[attr]
	if !ok {
		return nil, fmt.Errorf("component %q has no state attribute %q (path %q)", owner.name, attr, path)
	}
	return v, nil
}

// SetStateAt assigns the state attribute at a dotted path, creating the
// attribute if the owning component exists but the slot does not.
func (c *Component) SetStateAt(path string, v *tensor.Tensor) error {
	owner, attr, err := c.resolve(path)
	if err != nil {
		return err
	}
	if owner.frozen.Load() > 0 {
		return &InPlaceMutationError{Path: path}
	}
	owner.state[attr] = v
	return nil
}
