// Package randomwalk exercises the randomness fix-up: each step draws from
// the ambient random stream, so under vectorized execution every lane must
// receive an independent draw rather than one broadcast sample.
package randomwalk

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/vfix"
)

// Dim is the walk's embedding dimension.
const Dim = 3

// Module implements the registry.Module interface for this package.
type Module struct {
	Comp *component.Component
}

// New creates the module with a walker at the origin and a static step
// scale.
func New() *Module {
	comp := component.New("randomwalk")
	if err := comp.SetState("position", tensor.Zeros(tensor.Float64, Dim)); err != nil {
		panic(err)
	}
	comp.SetConfig("scale", cty.NumberFloatVal(0.1))
	return &Module{Comp: comp}
}

// OnStep moves the walker by a uniform draw centered on zero, scaled by the
// static scale attribute.
func OnStep(ctx context.Context, owner *component.Component, args []*tensor.Tensor) ([]*tensor.Tensor, error) {
	scaleVal, _ := owner.Config("scale")
	scale, _ := scaleVal.AsBigFloat().Float64()

	draw, err := vfix.Draw(ctx, Dim)
	if err != nil {
		return nil, err
	}
	centered, err := tensor.Sub(draw, tensor.Scalar(0.5))
	if err != nil {
		return nil, err
	}
	step, err := tensor.Mul(centered, tensor.Scalar(scale))
	if err != nil {
		return nil, err
	}

	cur, _ := owner.State("position")
	next, err := tensor.Add(cur, step)
	if err != nil {
		return nil, err
	}
	if err := owner.SetState("position", next); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{next.Clone()}, nil
}

// Register registers the step operation. No vectorized override exists on
// purpose: the dispatcher's vmap fallback carries this operation, which is
// exactly the path the per-lane stream splitting protects.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperation(&registry.Operation{
		Name:       "randomwalk.step",
		Owner:      m.Comp,
		Stateful:   OnStep,
		NumInputs:  0,
		NumOutputs: 1,
	})
}
