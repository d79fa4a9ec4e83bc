// Package bandit exercises the control-flow combinators in a realistic
// shape: an annealing loop built on While and an explore/exploit decision
// built on Cond.
package bandit

import (
	"context"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/flow"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/vfix"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Comp *component.Component

	anneal *flow.While
	choose *flow.Cond
}

// New creates the module with a bandit component at temperature 1.
func New() *Module {
	comp := component.New("bandit")
	if err := comp.SetState("temperature", tensor.Scalar(1)); err != nil {
		panic(err)
	}

	anneal, err := flow.NewWhile(
		func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (*tensor.Tensor, error) {
			return tensor.Greater(state["temperature"], args[0])
		},
		flow.Branch{
			Name: "halve",
			Keys: []string{"temperature"},
			Fn: func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
				next, err := tensor.Mul(state["temperature"], tensor.Scalar(0.5))
				if err != nil {
					return nil, nil, err
				}
				state["temperature"] = next
				return state, args, nil
			},
		},
	)
	if err != nil {
		panic(err)
	}

	choose, err := flow.NewCond(
		flow.Branch{
			Name: "exploit",
			Keys: []string{},
			Fn: func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
				return state, []*tensor.Tensor{args[0].Clone()}, nil
			},
		},
		flow.Branch{
			Name: "explore",
			Keys: []string{},
			Fn: func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
				draw, err := vfix.Draw(ctx)
				if err != nil {
					return nil, nil, err
				}
				return state, []*tensor.Tensor{draw}, nil
			},
		},
	)
	if err != nil {
		panic(err)
	}

	return &Module{Comp: comp, anneal: anneal, choose: choose}
}

// onAnneal halves the temperature until it drops to the target, freezing
// finished lanes when executed batched.
func (m *Module) onAnneal(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	outState, _, err := m.anneal.Loop(ctx, state, args...)
	if err != nil {
		return nil, nil, err
	}
	return outState, []*tensor.Tensor{outState["temperature"].Clone()}, nil
}

// onChoose returns the score itself when it clears the threshold, and an
// exploratory draw otherwise. Both branches run on every call; the
// predicate selects per lane.
func (m *Module) onChoose(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	pred, err := tensor.Greater(args[0], args[1])
	if err != nil {
		return nil, nil, err
	}
	return m.choose.Evaluate(ctx, pred, state, args...)
}

// Register registers both operations in pure form.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperation(&registry.Operation{
		Name:       "bandit.anneal",
		Owner:      m.Comp,
		Pure:       m.onAnneal,
		NumInputs:  1,
		NumOutputs: 1,
	})
	r.RegisterOperation(&registry.Operation{
		Name:       "bandit.choose",
		Owner:      m.Comp,
		Pure:       m.onChoose,
		NumInputs:  2,
		NumOutputs: 1,
	})
}
