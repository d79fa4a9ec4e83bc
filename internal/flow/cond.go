package flow

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/trace"
)

// Cond is the two-way conditional combinator. Both branches execute on every
// call; the predicate selects the surviving result per element.
type Cond struct {
	onTrue  Branch
	onFalse Branch
}

// NewCond builds a conditional from its branches. Branches declaring
// different state key sets are rejected here, before any execution.
func NewCond(onTrue, onFalse Branch) (*Cond, error) {
	if onTrue.Fn == nil || onFalse.Fn == nil {
		return nil, fmt.Errorf("flow: cond branch without body")
	}
	if !compatibleKeys(onTrue, onFalse) {
		return nil, fmt.Errorf("flow: cond branches declare different state key sets")
	}
	return &Cond{onTrue: onTrue, onFalse: onFalse}, nil
}

// Evaluate runs both branches on the given state and operands and merges
// their outputs elementwise by pred. pred must be a bool tensor, either
// rank-0 or a per-lane vector matching the lane count of batched operands.
func (c *Cond) Evaluate(ctx context.Context, pred *tensor.Tensor, state component.Snapshot, args ...*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	if pred.DType() != tensor.Bool {
		return nil, nil, fmt.Errorf("flow: cond predicate is %s, want bool", pred.DType())
	}
	trace.Record(ctx, "cond", "branches=2")

	viewTrue, err := c.onTrue.view(state)
	if err != nil {
		return nil, nil, err
	}
	viewFalse, err := c.onFalse.view(state)
	if err != nil {
		return nil, nil, err
	}

	// Unconditional evaluation of both sides: a vectorized caller needs both
	// computation graphs, whatever the predicate happens to hold.
	stateTrue, resTrue, err := c.onTrue.Fn(ctx, viewTrue, cloneArgs(args))
	if err != nil {
		return nil, nil, fmt.Errorf("flow: cond true branch: %w", err)
	}
	stateFalse, resFalse, err := c.onFalse.Fn(ctx, viewFalse, cloneArgs(args))
	if err != nil {
		return nil, nil, fmt.Errorf("flow: cond false branch: %w", err)
	}

	mergedState, results, err := mergeOutputs(pred, stateTrue, resTrue, stateFalse, resFalse)
	if err != nil {
		return nil, nil, err
	}
	return commit(state, mergedState), results, nil
}

func cloneArgs(args []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(args))
	for i, a := range args {
		out[i] = a.Clone()
	}
	return out
}
