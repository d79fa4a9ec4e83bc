package counter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/compile"
	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/testutil"
)

func TestIncrement_Imperative(t *testing.T) {
	t.Parallel()

	mod := New()
	reg := registry.New()
	mod.Register(reg)
	c := compile.New(reg, nil)
	ctx := testutil.QuietContext()

	res, err := c.Invoke(ctx, "counter.increment", tensor.Scalar(3))
	require.NoError(t, err)
	require.Equal(t, 3.0, res[0].At(0))

	res, err = c.Invoke(ctx, "counter.increment", tensor.Scalar(4))
	require.NoError(t, err)
	require.Equal(t, 7.0, res[0].At(0))

	live, _ := mod.Comp.State("value")
	require.Equal(t, 7.0, live.At(0))
}

func TestIncrement_VectorizedOverrideMatchesDefault(t *testing.T) {
	t.Parallel()

	mod := New()
	reg := registry.New()
	mod.Register(reg)
	c := compile.New(reg, nil)
	ctx := testutil.QuietContext()

	// Two lanes at different counts, incremented by different deltas.
	values, err := tensor.Stack(1, tensor.Scalar(10), tensor.Scalar(20))
	require.NoError(t, err)
	require.NoError(t, mod.Comp.SetState("value", values))
	deltas, err := tensor.Stack(1, tensor.Scalar(1), tensor.Scalar(2))
	require.NoError(t, err)

	artifact, err := c.Compile(ctx, "counter.increment", registry.ModeVectorized, []*tensor.Tensor{deltas})
	require.NoError(t, err)

	outState, results, err := artifact.Call(ctx, component.TakeSnapshot(mod.Comp), []*tensor.Tensor{deltas})
	require.NoError(t, err)

	want, err := tensor.Stack(1, tensor.Scalar(11), tensor.Scalar(22))
	require.NoError(t, err)
	require.True(t, tensor.Equal(outState["value"], want))
	require.True(t, tensor.Equal(results[0], want))
}
