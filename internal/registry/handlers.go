package registry

import (
	"fmt"
	"log/slog"
)

// RegisterOperation registers the default implementation of an operation.
// Registration happens at module-definition time; a duplicate name or a
// malformed operation is a programmer error.
func (r *Registry) RegisterOperation(op *Operation) {
	if op.Name == "" {
		panic("operation with empty name")
	}
	if _, exists := r.ops[op.Name]; exists {
		panic(fmt.Sprintf("operation %q already registered", op.Name))
	}
	if (op.Stateful == nil) == (op.Pure == nil) {
		panic(fmt.Sprintf("operation %q must set exactly one of Stateful and Pure", op.Name))
	}
	if op.Stateful != nil && op.Owner == nil {
		panic(fmt.Sprintf("stateful operation %q has no owning component", op.Name))
	}
	slog.Debug("Registering operation.", "name", op.Name, "stateful", op.Stateful != nil)
	r.ops[op.Name] = op
}

// RegisterVariant attaches a mode-specific override to an operation. At
// most one override exists per (operation, mode) pair; re-registration
// overwrites the previous override with a warning, not a failure.
func (r *Registry) RegisterVariant(name string, mode Mode, fn PureFunc) {
	if mode != ModeTrace && mode != ModeVectorized {
		panic(fmt.Sprintf("variant for operation %q uses mode %s; only trace and vectorized variants exist", name, mode))
	}
	if fn == nil {
		panic(fmt.Sprintf("nil variant for operation %q", name))
	}
	if _, exists := r.ops[name]; !exists {
		panic(fmt.Sprintf("variant for unregistered operation %q", name))
	}
	if _, exists := r.variants[name][mode]; exists {
		slog.Warn("Overwriting previously registered variant.", "operation", name, "mode", mode.String())
	}
	if r.variants[name] == nil {
		r.variants[name] = make(map[Mode]PureFunc)
	}
	slog.Debug("Registering variant.", "operation", name, "mode", mode.String())
	r.variants[name][mode] = fn
}
