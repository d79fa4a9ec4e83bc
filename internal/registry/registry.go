package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/manifest"
	"github.com/jasciiz/evox/internal/tensor"
)

// Mode selects which implementation variant of an operation is active.
type Mode int

const (
	// ModeDefault is the plain implementation used outside compilation.
	ModeDefault Mode = iota
	// ModeTrace selects the trace-compilation override.
	ModeTrace
	// ModeVectorized selects the vectorized-map override.
	ModeVectorized
)

// String returns the mode name used in manifests and cache keys.
func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeTrace:
		return "trace"
	case ModeVectorized:
		return "vectorized"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a mode name to its Mode.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "default":
		return ModeDefault, nil
	case "trace":
		return ModeTrace, nil
	case "vectorized":
		return ModeVectorized, nil
	}
	return 0, fmt.Errorf("unknown compilation mode %q", name)
}

// PureFunc is the pure calling convention every compiled operation obeys:
// explicit state in, new state and results out, no hidden mutation.
type PureFunc func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error)

// StatefulFunc is the imperative authoring convention: a function that reads
// and mutates its owning component directly. The state extractor converts
// this form into a PureFunc before compilation.
type StatefulFunc func(ctx context.Context, owner *component.Component, args []*tensor.Tensor) ([]*tensor.Tensor, error)

// Operation holds the compiled Go parts of one logical operation. Exactly
// one of Stateful and Pure carries the default implementation.
type Operation struct {
	Name string

	// Owner is the component whose state the operation works on, or nil
	// for a free-standing operation.
	Owner *component.Component

	// Stateful is the default implementation in imperative form.
	Stateful StatefulFunc

	// Pure is the default implementation in pure form, for operations
	// authored without hidden state.
	Pure PureFunc

	// NumInputs and NumOutputs declare the Go implementation's arity, for
	// parity checking against the manifest.
	NumInputs  int
	NumOutputs int

	// JIT marks the operation as eligible for transparent trace
	// compilation on first dispatch.
	JIT bool
}

// Module is the interface built-in operation packages implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered operations, their per-mode overrides, and
// the manifest definitions, for a single application instance.
type Registry struct {
	ops      map[string]*Operation
	variants map[string]map[Mode]PureFunc
	defs     map[string]*manifest.Definition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		ops:      make(map[string]*Operation),
		variants: make(map[string]map[Mode]PureFunc),
		defs:     make(map[string]*manifest.Definition),
	}
}

// Operation returns the registered operation of that name.
func (r *Registry) Operation(name string) (*Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Definition returns the manifest definition of that name.
func (r *Registry) Definition(name string) (*manifest.Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Variant returns the override registered for (name, mode), if any.
func (r *Registry) Variant(name string, mode Mode) (PureFunc, bool) {
	fn, ok := r.variants[name][mode]
	return fn, ok
}

// OperationNames returns all registered operation names in sorted order.
func (r *Registry) OperationNames() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarkJIT flags an operation as eligible for transparent trace compilation
// on first dispatch.
func (r *Registry) MarkJIT(name string) error {
	op, ok := r.ops[name]
	if !ok {
		return fmt.Errorf("cannot mark unknown operation %q as jit-eligible", name)
	}
	op.JIT = true
	return nil
}

// MarkComponentJIT flags every operation owned by the given component.
// This is the bulk form behind the "annotate a composite component" call.
func (r *Registry) MarkComponentJIT(owner *component.Component) int {
	n := 0
	for _, op := range r.ops {
		if op.Owner == owner {
			op.JIT = true
			n++
		}
	}
	return n
}

// PopulateDefinitions copies loaded manifest definitions into the registry.
func (r *Registry) PopulateDefinitions(defs []*manifest.Definition) {
	for _, def := range defs {
		r.defs[def.Name] = def
	}
}
