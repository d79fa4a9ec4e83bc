package testutil

import (
	"context"
	"sync/atomic"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
)

// CounterModule is a self-contained stateful operation for tests: one scalar
// attribute incremented by the first operand. Calls counts default
// implementation invocations, which lets compilation tests assert how many
// times a build actually ran the function.
type CounterModule struct {
	Name  string
	Comp  *component.Component
	Calls atomic.Int64
}

// NewCounterModule creates the module and its component. The operation
// registers as Name+".add".
func NewCounterModule(name string) *CounterModule {
	comp := component.New(name)
	if err := comp.SetState("total", tensor.Scalar(0)); err != nil {
		panic(err)
	}
	return &CounterModule{Name: name, Comp: comp}
}

// OpName returns the registered operation name.
func (m *CounterModule) OpName() string { return m.Name + ".add" }

// Register registers the test operation's Go handler.
func (m *CounterModule) Register(r *registry.Registry) {
	r.RegisterOperation(&registry.Operation{
		Name:  m.OpName(),
		Owner: m.Comp,
		Stateful: func(_ context.Context, owner *component.Component, args []*tensor.Tensor) ([]*tensor.Tensor, error) {
			m.Calls.Add(1)
			cur, _ := owner.State("total")
			next, err := tensor.Add(cur, args[0])
			if err != nil {
				return nil, err
			}
			if err := owner.SetState("total", next); err != nil {
				return nil, err
			}
			return []*tensor.Tensor{next.Clone()}, nil
		},
		NumInputs:  1,
		NumOutputs: 1,
	})
}
