// Package manifest defines the format-agnostic operation declarations and
// the HCL parsing that produces them.
//
// Why declare operations in manifests at all?
//
// An operation's declared signature is a contract. The Go implementation
// registered for it and every mode-specific override must honor the same
// input and output signature; the manifest is the neutral place that
// contract lives, so the registry can check Go code against it at startup
// and the dispatcher can check example inputs against it at compile time.
// This shifts signature errors from deep inside a traced execution to parse
// and registration time, where the message can still name the operation and
// the offending argument.
package manifest

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/jasciiz/evox/internal/tensor"
)

// ArgDef declares a single input or output of an operation.
type ArgDef struct {
	// Name is the argument name, taken from the HCL block label.
	Name string

	// DType is the declared element type.
	DType tensor.DType

	// Shape is the declared data shape, excluding any vectorization lane
	// dimension.
	Shape []int

	// Default is an optional value used when the caller provides none.
	// cty.NilVal means the argument is required.
	Default cty.Value
}

// Check reports whether a concrete tensor satisfies the declaration. The
// lane dimension of a batched tensor is ignored: manifests declare the shape
// one logical call sees.
func (a *ArgDef) Check(t *tensor.Tensor) error {
	if t.DType() != a.DType {
		return fmt.Errorf("argument %q: dtype %s, declared %s", a.Name, t.DType(), a.DType)
	}
	got := t.DataShape()
	if len(got) != len(a.Shape) {
		return fmt.Errorf("argument %q: shape %v, declared %v", a.Name, got, a.Shape)
	}
	for i := range got {
		if got[i] != a.Shape[i] {
			return fmt.Errorf("argument %q: shape %v, declared %v", a.Name, got, a.Shape)
		}
	}
	return nil
}

// Zero returns a zero tensor matching the declaration, for callers that
// synthesize example inputs.
func (a *ArgDef) Zero() *tensor.Tensor {
	return tensor.Zeros(a.DType, a.Shape...)
}

// Example returns a tensor matching the declaration, filled from the
// manifest default when one is declared and zero otherwise.
func (a *ArgDef) Example() (*tensor.Tensor, error) {
	if a.Default == cty.NilVal {
		return a.Zero(), nil
	}
	switch {
	case a.Default.Type() == cty.Bool:
		v := 0.0
		if a.Default.True() {
			v = 1
		}
		return tensor.FullOf(a.DType, v, a.Shape...), nil
	case a.Default.Type() == cty.Number:
		f, _ := a.Default.AsBigFloat().Float64()
		return tensor.FullOf(a.DType, f, a.Shape...), nil
	}
	return nil, fmt.Errorf("argument %q: default of type %s is not a number or bool", a.Name, a.Default.Type().FriendlyName())
}

// Definition is the format-agnostic declaration of one operation.
type Definition struct {
	Name        string
	Description string

	// Modes lists the compilation modes an override may be registered for.
	// An empty list permits overrides for any mode.
	Modes []string

	// Inputs and Outputs are ordered as declared in the manifest.
	Inputs  []*ArgDef
	Outputs []*ArgDef

	// SourceFile records which manifest file declared the operation, for
	// error messages.
	SourceFile string
}

// AllowsMode reports whether an override may be registered for the given
// mode name.
func (d *Definition) AllowsMode(mode string) bool {
	if len(d.Modes) == 0 {
		return true
	}
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// CheckInputs validates a concrete argument list against the declaration.
func (d *Definition) CheckInputs(args []*tensor.Tensor) error {
	if len(args) != len(d.Inputs) {
		return fmt.Errorf("operation %q: %d arguments, declared %d", d.Name, len(args), len(d.Inputs))
	}
	for i, arg := range args {
		if err := d.Inputs[i].Check(arg); err != nil {
			return fmt.Errorf("operation %q: %w", d.Name, err)
		}
	}
	return nil
}

// CheckOutputs validates concrete results against the declaration.
func (d *Definition) CheckOutputs(results []*tensor.Tensor) error {
	if len(results) != len(d.Outputs) {
		return fmt.Errorf("operation %q: %d results, declared %d", d.Name, len(results), len(d.Outputs))
	}
	for i, res := range results {
		if err := d.Outputs[i].Check(res); err != nil {
			return fmt.Errorf("operation %q: %w", d.Name, err)
		}
	}
	return nil
}
