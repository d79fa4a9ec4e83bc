package flow

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/trace"
)

// Switch generalizes Cond to n-ary selection. Every branch executes on every
// call; an integer index tensor selects the surviving result per element.
type Switch struct {
	branches []Branch
}

// NewSwitch builds an n-ary selector. All branches must declare the same
// state key set; mismatch is rejected before any execution.
func NewSwitch(branches []Branch) (*Switch, error) {
	if len(branches) == 0 {
		return nil, fmt.Errorf("flow: switch with no branches")
	}
	for i, b := range branches {
		if b.Fn == nil {
			return nil, fmt.Errorf("flow: switch branch %d without body", i)
		}
		if !compatibleKeys(branches[0], b) {
			return nil, fmt.Errorf("flow: switch branch %d declares a different state key set than branch 0", i)
		}
	}
	return &Switch{branches: branches}, nil
}

// Evaluate runs every branch and selects elementwise by the integer index
// tensor. Indices clamp to the valid branch range, matching the saturating
// behavior callers rely on for sentinel indices.
func (s *Switch) Evaluate(ctx context.Context, index *tensor.Tensor, state component.Snapshot, args ...*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	if index.DType() != tensor.Int64 {
		return nil, nil, fmt.Errorf("flow: switch index is %s, want i64", index.DType())
	}
	trace.Record(ctx, "switch", "branches=%d", len(s.branches))

	outStates := make([]component.Snapshot, len(s.branches))
	outResults := make([][]*tensor.Tensor, len(s.branches))
	for i, b := range s.branches {
		view, err := b.view(state)
		if err != nil {
			return nil, nil, err
		}
		outStates[i], outResults[i], err = b.Fn(ctx, view, cloneArgs(args))
		if err != nil {
			return nil, nil, fmt.Errorf("flow: switch branch %d: %w", i, err)
		}
	}

	// Fold from the last branch down so that an index >= n selects branch
	// n-1 and an index < 0 selects branch 0.
	accState := outStates[len(s.branches)-1]
	accResults := outResults[len(s.branches)-1]
	for i := len(s.branches) - 2; i >= 0; i-- {
		pred, err := tensor.LessEq(index, tensor.IntScalar(int64(i)))
		if err != nil {
			return nil, nil, err
		}
		accState, accResults, err = mergeOutputs(pred, outStates[i], outResults[i], accState, accResults)
		if err != nil {
			return nil, nil, fmt.Errorf("flow: switch merge at branch %d: %w", i, err)
		}
	}
	return commit(state, accState), accResults, nil
}
