package compile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/testutil"
	"github.com/jasciiz/evox/internal/vfix"
)

func stackScalars(t *testing.T, vals ...float64) *tensor.Tensor {
	t.Helper()
	lanes := make([]*tensor.Tensor, len(vals))
	for i, v := range vals {
		lanes[i] = tensor.Scalar(v)
	}
	stacked, err := tensor.Stack(1, lanes...)
	require.NoError(t, err)
	return stacked
}

func TestVectorized_FallbackVmapRunsPerLane(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	mod := testutil.NewCounterModule("obj")
	mod.Register(reg)
	c := New(reg, nil)
	ctx := testutil.QuietContext()

	// Batch the owning component's state before compiling: vectorized
	// execution runs all lanes of the component in lockstep.
	require.NoError(t, mod.Comp.SetState("total", stackScalars(t, 10, 20)))

	args := []*tensor.Tensor{stackScalars(t, 1, 2)}
	artifact, err := c.Compile(ctx, mod.OpName(), registry.ModeVectorized, args)
	require.NoError(t, err)
	require.Equal(t, registry.ModeVectorized, artifact.Mode())

	state := component.TakeSnapshot(mod.Comp)
	outState, results, err := artifact.Call(ctx, state, args)
	require.NoError(t, err)

	require.True(t, tensor.Equal(outState["total"], stackScalars(t, 11, 22)))
	require.Len(t, results, 1)
	require.True(t, tensor.Equal(results[0], stackScalars(t, 11, 22)))
	require.Equal(t, 1, results[0].BatchLevel())
}

func TestVectorized_RequiresABatchedInput(t *testing.T) {
	t.Parallel()

	c, mod := newCounterCompiler(t)
	_, err := c.Compile(testutil.QuietContext(), mod.OpName(), registry.ModeVectorized, []*tensor.Tensor{tensor.Scalar(1)})
	require.Error(t, err)
	require.ErrorContains(t, err, "lane-batched")
}

func TestVectorized_RejectsLaneDisagreement(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterOperation(&registry.Operation{
		Name: "pair.op",
		Pure: func(_ context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
			return state, []*tensor.Tensor{args[0].Clone()}, nil
		},
		NumInputs:  2,
		NumOutputs: 1,
	})
	c := New(reg, nil)

	args := []*tensor.Tensor{stackScalars(t, 1, 2), stackScalars(t, 1, 2, 3)}
	_, err := c.Compile(testutil.QuietContext(), "pair.op", registry.ModeVectorized, args)
	require.Error(t, err)
	require.ErrorContains(t, err, "disagree")
}

func TestVectorized_PerLaneRandomStreams(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterOperation(&registry.Operation{
		Name: "noise.perlane",
		Pure: func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
			draw, err := vfix.Draw(ctx)
			if err != nil {
				return nil, nil, err
			}
			return state, []*tensor.Tensor{draw}, nil
		},
		NumInputs:  1,
		NumOutputs: 1,
	})
	c := New(reg, nil)
	ctx := testutil.QuietContext()

	args := []*tensor.Tensor{stackScalars(t, 0, 0, 0)}
	artifact, err := c.Compile(ctx, "noise.perlane", registry.ModeVectorized, args)
	require.NoError(t, err)

	_, results, err := artifact.Call(ctx, component.Snapshot{}, args)
	require.NoError(t, err)

	lanes, err := tensor.Unstack(results[0])
	require.NoError(t, err)
	require.Len(t, lanes, 3)
	for i := 0; i < len(lanes); i++ {
		for j := i + 1; j < len(lanes); j++ {
			require.False(t, tensor.Equal(lanes[i], lanes[j]),
				"lanes %d and %d drew the same value; streams were not split", i, j)
		}
	}
}

func TestVectorized_NativeOverrideRunsBatched(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	mod := testutil.NewCounterModule("obj")
	mod.Register(reg)
	reg.RegisterVariant(mod.OpName(), registry.ModeVectorized,
		func(_ context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
			next, err := tensor.Add(state["total"], args[0])
			if err != nil {
				return nil, nil, err
			}
			out := state.Clone()
			out["total"] = next
			return out, []*tensor.Tensor{next.Clone()}, nil
		})
	c := New(reg, nil)
	ctx := testutil.QuietContext()

	require.NoError(t, mod.Comp.SetState("total", stackScalars(t, 1, 2)))
	args := []*tensor.Tensor{stackScalars(t, 10, 10)}

	artifact, err := c.Compile(ctx, mod.OpName(), registry.ModeVectorized, args)
	require.NoError(t, err)

	before := mod.Calls.Load()
	outState, _, err := artifact.Call(ctx, component.TakeSnapshot(mod.Comp), args)
	require.NoError(t, err)
	require.True(t, tensor.Equal(outState["total"], stackScalars(t, 11, 12)))
	require.Equal(t, before, mod.Calls.Load(), "the override, not the default, must serve the call")
}

func TestVectorized_OverrideMutatingOwnerFails(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	mod := testutil.NewCounterModule("obj")
	mod.Register(reg)
	reg.RegisterVariant(mod.OpName(), registry.ModeVectorized,
		func(_ context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
			// Reaches around the pure convention: assigns the live
			// component instead of returning new state.
			if err := mod.Comp.SetState("total", args[0].Clone()); err != nil {
				return nil, nil, err
			}
			return state, []*tensor.Tensor{args[0].Clone()}, nil
		})
	c := New(reg, nil)

	require.NoError(t, mod.Comp.SetState("total", stackScalars(t, 1, 2)))
	args := []*tensor.Tensor{stackScalars(t, 10, 10)}

	_, err := c.Compile(testutil.QuietContext(), mod.OpName(), registry.ModeVectorized, args)
	var mutErr *component.InPlaceMutationError
	require.ErrorAs(t, err, &mutErr)
}

func TestVectorized_OverrideParityMismatch(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	mod := testutil.NewCounterModule("obj")
	mod.Register(reg)
	reg.RegisterVariant(mod.OpName(), registry.ModeVectorized,
		func(_ context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
			// Wrong result shape: the default returns a scalar per lane.
			out, err := tensor.Stack(1, tensor.Full(0, 3), tensor.Full(0, 3))
			if err != nil {
				return nil, nil, err
			}
			return state.Clone(), []*tensor.Tensor{out}, nil
		})
	c := New(reg, nil)

	require.NoError(t, mod.Comp.SetState("total", stackScalars(t, 1, 2)))
	args := []*tensor.Tensor{stackScalars(t, 10, 10)}

	_, err := c.Compile(testutil.QuietContext(), mod.OpName(), registry.ModeVectorized, args)
	var sigErr *registry.SignatureMismatchError
	require.ErrorAs(t, err, &sigErr)
}
