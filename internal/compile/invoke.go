package compile

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/extract"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
)

// Invoke executes a registered operation against its live owning component,
// committing the resulting state back in place. This is the imperative front
// door: callers keep writing `increment()`-style calls while jit-eligible
// operations transparently compile under trace mode on first use with a new
// input signature.
func (c *Compiler) Invoke(ctx context.Context, opName string, args ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	op, ok := c.reg.Operation(opName)
	if !ok {
		return nil, fmt.Errorf("invoke: unknown operation %q", opName)
	}
	ext, err := extract.Extract(op)
	if err != nil {
		return nil, err
	}

	state := ext.InitState()
	var newState component.Snapshot
	var results []*tensor.Tensor

	if op.JIT {
		artifact, err := c.Compile(ctx, opName, registry.ModeTrace, args)
		if err != nil {
			return nil, err
		}
		newState, results, err = artifact.Call(ctx, state, args)
		if err != nil {
			return nil, err
		}
	} else {
		newState, results, err = ext.Call(ctx, state, args)
		if err != nil {
			return nil, err
		}
	}

	if err := ext.SetState(newState); err != nil {
		return nil, fmt.Errorf("invoke: committing state of %q: %w", opName, err)
	}
	return results, nil
}
