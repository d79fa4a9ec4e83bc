package compile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/extract"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/trace"
	"github.com/jasciiz/evox/internal/vfix"
)

// probe traces the candidate function twice against the example inputs: once
// as given and once with every input value perturbed. Like-shaped inputs
// must produce the same structural journal and the same output signatures;
// divergence means the function branches natively on data outside a
// combinator. Runtime errors raised here, iteration limits included, surface
// as a failed compilation.
func (c *Compiler) probe(ctx context.Context, opName string, fn registry.PureFunc, seed uint64, exampleState component.Snapshot, exampleArgs []*tensor.Tensor) ([]string, error) {
	run := func(state component.Snapshot, args []*tensor.Tensor) (*trace.Journal, []string, []string, error) {
		jctx, journal := trace.WithJournal(ctx)
		jctx = vfix.WithStream(jctx, vfix.NewStream(seed))
		outState, results, err := fn(jctx, state, args)
		if err != nil {
			return nil, nil, nil, err
		}
		outSigs := make([]string, len(results))
		for i, r := range results {
			outSigs[i] = r.Signature()
		}
		stateSigs := make([]string, 0, len(outState))
		for _, path := range outState.Paths() {
			stateSigs = append(stateSigs, path+"="+outState[path].Signature())
		}
		return journal, outSigs, stateSigs, nil
	}

	j1, out1, st1, err := run(cloneState(exampleState), cloneArgs(exampleArgs))
	if err != nil {
		return nil, fmt.Errorf("compile: probing %q: %w", opName, err)
	}
	j2, out2, st2, err := run(perturbState(exampleState), perturbArgs(exampleArgs))
	if err != nil {
		return nil, fmt.Errorf("compile: probing %q with perturbed inputs: %w", opName, err)
	}

	if !trace.Equal(j1, j2) {
		return nil, &UncorrectableControlFlowError{
			Op:     opName,
			Detail: fmt.Sprintf("structural events diverge across probe runs: %v vs %v", j1.Events(), j2.Events()),
		}
	}
	if !equalStrings(out1, out2) {
		return nil, &UncorrectableControlFlowError{
			Op:     opName,
			Detail: fmt.Sprintf("result signatures diverge across probe runs: %v vs %v", out1, out2),
		}
	}
	if !equalStrings(st1, st2) {
		return nil, &UncorrectableControlFlowError{
			Op:     opName,
			Detail: fmt.Sprintf("state signatures diverge across probe runs: %v vs %v", st1, st2),
		}
	}
	return out1, nil
}

// checkOverrideParity runs the default implementation on the same example
// inputs and compares per-lane output signatures with the override's. An
// override whose signature differs from the default's is rejected at first
// compile, per the registration contract.
func (c *Compiler) checkOverrideParity(ctx context.Context, opName string, ext *extract.Extracted, seed uint64, exampleState component.Snapshot, exampleArgs []*tensor.Tensor, overrideOutSigs []string) error {
	dctx := vfix.WithStream(ctx, vfix.NewStream(seed))

	// The default sees one logical call: strip the lane batching from the
	// example inputs before running it.
	_, results, err := ext.Func()(dctx, firstLaneState(exampleState), firstLaneArgs(exampleArgs))
	if err != nil {
		// A default that itself compiles nestedly cannot run standalone
		// inside this build; the override is exactly what makes the
		// operation compilable, so parity has nothing to compare against.
		var conflict *NestedCompilationConflictError
		if errors.As(err, &conflict) {
			return nil
		}
		return fmt.Errorf("compile: probing default of %q for override parity: %w", opName, err)
	}
	if len(results) != len(overrideOutSigs) {
		return &registry.SignatureMismatchError{
			Op:     opName,
			Detail: fmt.Sprintf("override returns %d results, default returns %d", len(overrideOutSigs), len(results)),
		}
	}
	for i, r := range results {
		overrideData := dataSigOf(overrideOutSigs[i])
		if r.DataSignature() != overrideData {
			return &registry.SignatureMismatchError{
				Op:     opName,
				Detail: fmt.Sprintf("override result %d is %s, default produces %s", i, overrideData, r.DataSignature()),
			}
		}
	}
	return nil
}

func cloneState(state component.Snapshot) component.Snapshot {
	return state.Clone()
}

func cloneArgs(args []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(args))
	for i, a := range args {
		out[i] = a.Clone()
	}
	return out
}

func perturbArgs(args []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(args))
	for i, a := range args {
		out[i] = perturb(a)
	}
	return out
}

func perturbState(state component.Snapshot) component.Snapshot {
	out := make(component.Snapshot, len(state))
	for path, v := range state {
		out[path] = perturb(v)
	}
	return out
}

// perturb shifts every numeric element by one and flips every boolean, to
// give the second probe run different values under identical shapes.
func perturb(t *tensor.Tensor) *tensor.Tensor {
	switch t.DType() {
	case tensor.Bool:
		flipped, err := tensor.Not(t)
		if err != nil {
			return t.Clone()
		}
		return flipped
	case tensor.Int64:
		shifted, err := tensor.Add(t, tensor.IntScalar(1))
		if err != nil {
			return t.Clone()
		}
		return shifted
	default:
		shifted, err := tensor.Add(t, tensor.Scalar(1))
		if err != nil {
			return t.Clone()
		}
		return shifted
	}
}

func firstLaneState(state component.Snapshot) component.Snapshot {
	out := make(component.Snapshot, len(state))
	for path, v := range state {
		out[path] = firstLane(v)
	}
	return out
}

func firstLaneArgs(args []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(args))
	for i, a := range args {
		out[i] = firstLane(a)
	}
	return out
}

func firstLane(t *tensor.Tensor) *tensor.Tensor {
	if t.BatchLevel() == 0 {
		return t.Clone()
	}
	lane, err := tensor.Lane(t, 0)
	if err != nil {
		return t.Clone()
	}
	return lane
}

// dataSigOf strips the lane component out of a rendered signature.
func dataSigOf(sig string) string {
	const marker = "[lanes:"
	start := strings.Index(sig, marker)
	if start < 0 {
		return sig
	}
	end := strings.IndexByte(sig[start:], ']')
	if end < 0 {
		return sig
	}
	return sig[:start] + sig[start+end+1:]
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
