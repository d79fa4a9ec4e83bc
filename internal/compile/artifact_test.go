package compile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/testutil"
)

func TestArtifact_Accessors(t *testing.T) {
	t.Parallel()

	c, mod := newCounterCompiler(t)
	a, err := c.Compile(testutil.QuietContext(), mod.OpName(), registry.ModeTrace, []*tensor.Tensor{tensor.Scalar(1)})
	require.NoError(t, err)

	require.Equal(t, mod.OpName(), a.Operation())
	require.Equal(t, registry.ModeTrace, a.Mode())
	require.Contains(t, a.Key(), mod.OpName())
	require.Contains(t, a.Key(), "trace")
	require.Equal(t, []string{"f64[]@cpu"}, a.OutputSignatures())
}

func TestArtifact_RejectsMismatchedCallInputs(t *testing.T) {
	t.Parallel()

	c, mod := newCounterCompiler(t)
	ctx := testutil.QuietContext()
	a, err := c.Compile(ctx, mod.OpName(), registry.ModeTrace, []*tensor.Tensor{tensor.Scalar(1)})
	require.NoError(t, err)

	goodState := component.Snapshot{"total": tensor.Scalar(0)}

	t.Run("wrong operand count", func(t *testing.T) {
		t.Parallel()
		_, _, err := a.Call(ctx, goodState.Clone(), nil)
		require.Error(t, err)
	})
	t.Run("wrong operand signature", func(t *testing.T) {
		t.Parallel()
		_, _, err := a.Call(ctx, goodState.Clone(), []*tensor.Tensor{tensor.Full(1, 3)})
		require.Error(t, err)
	})
	t.Run("missing state entry", func(t *testing.T) {
		t.Parallel()
		_, _, err := a.Call(ctx, component.Snapshot{}, []*tensor.Tensor{tensor.Scalar(1)})
		require.Error(t, err)
	})
	t.Run("unexpected state entry", func(t *testing.T) {
		t.Parallel()
		bad := goodState.Clone()
		bad["ghost"] = tensor.Scalar(1)
		_, _, err := a.Call(ctx, bad, []*tensor.Tensor{tensor.Scalar(1)})
		require.Error(t, err)
	})
	t.Run("wrong state signature", func(t *testing.T) {
		t.Parallel()
		bad := component.Snapshot{"total": tensor.IntScalar(0)}
		_, _, err := a.Call(ctx, bad, []*tensor.Tensor{tensor.Scalar(1)})
		require.Error(t, err)
	})
	t.Run("matching inputs succeed", func(t *testing.T) {
		t.Parallel()
		outState, results, err := a.Call(ctx, goodState.Clone(), []*tensor.Tensor{tensor.Scalar(1)})
		require.NoError(t, err)
		require.Equal(t, 1.0, outState["total"].At(0))
		require.Equal(t, 1.0, results[0].At(0))
	})
}
