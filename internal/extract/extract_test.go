package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
)

// newCounterOp builds the canonical imperative operation: one component with
// a "counter" attribute and an increment mutating it in place.
func newCounterOp(t *testing.T) (*registry.Operation, *component.Component) {
	t.Helper()
	comp := component.New("obj")
	require.NoError(t, comp.SetState("counter", tensor.Scalar(0)))
	op := &registry.Operation{
		Name:  "obj.increment",
		Owner: comp,
		Stateful: func(_ context.Context, owner *component.Component, args []*tensor.Tensor) ([]*tensor.Tensor, error) {
			cur, _ := owner.State("counter")
			next, err := tensor.Add(cur, args[0])
			if err != nil {
				return nil, err
			}
			if err := owner.SetState("counter", next); err != nil {
				return nil, err
			}
			return []*tensor.Tensor{next.Clone()}, nil
		},
		NumInputs:  1,
		NumOutputs: 1,
	}
	return op, comp
}

func TestExtract_StatefulBecomesPure(t *testing.T) {
	t.Parallel()

	op, comp := newCounterOp(t)
	ext, err := Extract(op)
	require.NoError(t, err)

	state := ext.InitState()
	require.Equal(t, []string{"counter"}, state.Paths())
	require.Equal(t, 0.0, state["counter"].At(0))

	one := []*tensor.Tensor{tensor.Scalar(1)}
	state1, res1, err := ext.Call(context.Background(), state, one)
	require.NoError(t, err)
	require.Equal(t, 1.0, state1["counter"].At(0))
	require.Equal(t, 1.0, res1[0].At(0))

	state2, res2, err := ext.Call(context.Background(), state1, one)
	require.NoError(t, err)
	require.Equal(t, 2.0, state2["counter"].At(0))
	require.Equal(t, 2.0, res2[0].At(0))

	// Pure calls never commit: the live component still holds zero.
	live, _ := comp.State("counter")
	require.Equal(t, 0.0, live.At(0))

	// Committing is explicit.
	require.NoError(t, ext.SetState(state2))
	live, _ = comp.State("counter")
	require.Equal(t, 2.0, live.At(0))
}

func TestExtract_CallIsReplayable(t *testing.T) {
	t.Parallel()

	op, _ := newCounterOp(t)
	ext, err := Extract(op)
	require.NoError(t, err)

	state := component.Snapshot{"counter": tensor.Scalar(10)}
	args := []*tensor.Tensor{tensor.Scalar(5)}

	// The same explicit state must produce the same outcome every time,
	// regardless of call order.
	for i := 0; i < 3; i++ {
		outState, res, err := ext.Call(context.Background(), state.Clone(), args)
		require.NoError(t, err)
		require.Equal(t, 15.0, outState["counter"].At(0))
		require.Equal(t, 15.0, res[0].At(0))
	}
}

func TestExtract_IntroducedAttributeAppearsInState(t *testing.T) {
	t.Parallel()

	comp := component.New("obj")
	require.NoError(t, comp.SetState("a", tensor.Scalar(1)))
	op := &registry.Operation{
		Name:  "obj.spawn",
		Owner: comp,
		Stateful: func(_ context.Context, owner *component.Component, _ []*tensor.Tensor) ([]*tensor.Tensor, error) {
			if err := owner.SetState("b", tensor.Scalar(2)); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}
	ext, err := Extract(op)
	require.NoError(t, err)

	outState, _, err := ext.Call(context.Background(), ext.InitState(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, outState.Paths())
	require.Equal(t, 2.0, outState["b"].At(0))
}

func TestExtract_DetachedNeverTouchesLiveComponent(t *testing.T) {
	t.Parallel()

	op, comp := newCounterOp(t)
	ext, err := Extract(op)
	require.NoError(t, err)

	det := ext.Detached()
	require.Equal(t, 0.0, det.InitState()["counter"].At(0))

	// Freezing the live component would make any write against it fail, so
	// a successful detached call proves it runs entirely on the clone.
	comp.Freeze()
	outState, res, err := det.Call(context.Background(), det.InitState(), []*tensor.Tensor{tensor.Scalar(4)})
	comp.Unfreeze()
	require.NoError(t, err)
	require.Equal(t, 4.0, outState["counter"].At(0))
	require.Equal(t, 4.0, res[0].At(0))

	// Committing through the detached view lands on the clone only.
	require.NoError(t, det.SetState(outState))
	live, _ := comp.State("counter")
	require.Equal(t, 0.0, live.At(0))
}

func TestExtract_PurePassesThrough(t *testing.T) {
	t.Parallel()

	op := &registry.Operation{
		Name: "free.id",
		Pure: func(_ context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
			return state, args, nil
		},
	}
	ext, err := Extract(op)
	require.NoError(t, err)
	require.Empty(t, ext.InitState())

	// A free-standing operation has nowhere to commit state to.
	require.NoError(t, ext.SetState(component.Snapshot{}))
	require.Error(t, ext.SetState(component.Snapshot{"x": tensor.Scalar(1)}))
}

func TestExtract_RejectsMalformedOperations(t *testing.T) {
	t.Parallel()

	_, err := Extract(&registry.Operation{Name: "none"})
	require.Error(t, err)

	_, err = Extract(&registry.Operation{
		Name: "orphan",
		Stateful: func(_ context.Context, _ *component.Component, _ []*tensor.Tensor) ([]*tensor.Tensor, error) {
			return nil, nil
		},
	})
	require.Error(t, err)
}
