// Package counter is the smallest stateful operation in the tree: one
// mutable scalar and an increment. It doubles as the reference example for
// the imperative authoring style the extraction layer exists to serve.
package counter

import (
	"context"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Comp *component.Component
}

// New creates the module with a fresh counter component at zero.
func New() *Module {
	comp := component.New("counter")
	if err := comp.SetState("value", tensor.Scalar(0)); err != nil {
		panic(err)
	}
	return &Module{Comp: comp}
}

// OnIncrement is the default implementation: imperative, mutating the
// owning component directly.
func OnIncrement(ctx context.Context, owner *component.Component, args []*tensor.Tensor) ([]*tensor.Tensor, error) {
	cur, _ := owner.State("value")
	next, err := tensor.Add(cur, args[0])
	if err != nil {
		return nil, err
	}
	if err := owner.SetState("value", next); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{next.Clone()}, nil
}

// onIncrementVectorized is the natively batched override: value and delta
// arrive lane-batched, and new state is returned rather than written back.
func onIncrementVectorized(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	next, err := tensor.Add(state["value"], args[0])
	if err != nil {
		return nil, nil, err
	}
	out := state.Clone()
	out["value"] = next
	return out, []*tensor.Tensor{next.Clone()}, nil
}

// Register registers the counter operation and its vectorized override.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperation(&registry.Operation{
		Name:       "counter.increment",
		Owner:      m.Comp,
		Stateful:   OnIncrement,
		NumInputs:  1,
		NumOutputs: 1,
	})
	r.RegisterVariant("counter.increment", registry.ModeVectorized, onIncrementVectorized)
}
