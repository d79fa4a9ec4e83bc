package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jasciiz/evox/internal/ctxlog"
)

// SignatureMismatchError reports that an implementation disagrees with the
// operation's declared signature, or that an override disagrees with the
// default. Structural, detected eagerly at registration/validation or at
// first compile.
type SignatureMismatchError struct {
	Op     string
	Detail string
}

// Error implements the error interface.
func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch for operation %q: %s", e.Op, e.Detail)
}

// Validate performs a strict parity check between manifests and Go code.
// Every registered operation must be declared by a manifest with matching
// arity, and every registered variant must use a mode the manifest allows.
// A declared operation without Go code is only a warning, since definitions
// may ship ahead of their implementations.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	for _, name := range r.OperationNames() {
		op := r.ops[name]
		def, ok := r.defs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("operation %q registered in Go but not declared in any manifest", name))
			continue
		}
		if op.NumInputs != len(def.Inputs) {
			errs = append(errs, &SignatureMismatchError{
				Op:     name,
				Detail: fmt.Sprintf("Go implementation takes %d inputs, manifest declares %d", op.NumInputs, len(def.Inputs)),
			})
		}
		if op.NumOutputs != len(def.Outputs) {
			errs = append(errs, &SignatureMismatchError{
				Op:     name,
				Detail: fmt.Sprintf("Go implementation returns %d outputs, manifest declares %d", op.NumOutputs, len(def.Outputs)),
			})
		}
		for mode := range r.variants[name] {
			if !def.AllowsMode(mode.String()) {
				errs = append(errs, &SignatureMismatchError{
					Op:     name,
					Detail: fmt.Sprintf("override registered for mode %s, manifest allows %v", mode, def.Modes),
				})
			}
		}
	}

	for name := range r.defs {
		if _, ok := r.ops[name]; !ok {
			logger.Warn("Manifest declares operation with no registered Go implementation.", "operation", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed: %w", errors.Join(errs...))
	}
	logger.Debug("Registry validation passed.", "operations", len(r.ops))
	return nil
}
