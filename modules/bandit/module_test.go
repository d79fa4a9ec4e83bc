package bandit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/flow"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/testutil"
	"github.com/jasciiz/evox/internal/vfix"
)

func TestAnneal_HalvesUntilTarget(t *testing.T) {
	t.Parallel()

	mod := New()
	state := component.Snapshot{"temperature": tensor.Scalar(1)}
	target := tensor.Scalar(0.1)

	outState, results, err := mod.onAnneal(testutil.QuietContext(), state, []*tensor.Tensor{target})
	require.NoError(t, err)

	// 1 -> 0.5 -> 0.25 -> 0.125 -> 0.0625, the first value at or below 0.1.
	require.Equal(t, 0.0625, outState["temperature"].At(0))
	require.Equal(t, 0.0625, results[0].At(0))
}

func TestAnneal_FreezesPerLane(t *testing.T) {
	t.Parallel()

	mod := New()
	temps, err := tensor.Stack(1, tensor.Scalar(1), tensor.Scalar(0.05))
	require.NoError(t, err)
	state := component.Snapshot{"temperature": temps}
	targets, err := tensor.Stack(1, tensor.Scalar(0.1), tensor.Scalar(0.1))
	require.NoError(t, err)

	outState, _, err := mod.onAnneal(testutil.QuietContext(), state, []*tensor.Tensor{targets})
	require.NoError(t, err)

	// Lane 1 starts below the target and must come through untouched while
	// lane 0 keeps halving.
	want, err := tensor.Stack(1, tensor.Scalar(0.0625), tensor.Scalar(0.05))
	require.NoError(t, err)
	require.True(t, tensor.Equal(outState["temperature"], want))
}

func TestAnneal_UnreachableTargetHitsIterationLimit(t *testing.T) {
	t.Parallel()

	mod := New()
	state := component.Snapshot{"temperature": tensor.Scalar(1)}
	// Halving never reaches zero.
	target := tensor.Scalar(0)

	_, _, err := mod.onAnneal(testutil.QuietContext(), state, []*tensor.Tensor{target})
	var limitErr *flow.IterationLimitError
	require.ErrorAs(t, err, &limitErr)
}

func TestChoose_ExploitsAboveThreshold(t *testing.T) {
	t.Parallel()

	mod := New()
	ctx := vfix.WithStream(testutil.QuietContext(), vfix.NewStream(3))

	_, results, err := mod.onChoose(ctx, component.Snapshot{}, []*tensor.Tensor{tensor.Scalar(0.9), tensor.Scalar(0.5)})
	require.NoError(t, err)
	require.Equal(t, 0.9, results[0].At(0), "a score above the threshold is returned as-is")

	_, results, err = mod.onChoose(ctx, component.Snapshot{}, []*tensor.Tensor{tensor.Scalar(0.2), tensor.Scalar(0.5)})
	require.NoError(t, err)
	require.NotEqual(t, 0.2, results[0].At(0), "a score below the threshold yields an exploratory draw")
	require.GreaterOrEqual(t, results[0].At(0), 0.0)
	require.Less(t, results[0].At(0), 1.0)
}

func TestChoose_PerLaneSelection(t *testing.T) {
	t.Parallel()

	mod := New()
	ctx := vfix.WithStream(testutil.QuietContext(), vfix.NewStream(3))
	ctx = vfix.WithScope(ctx, 1, 2)

	scores, err := tensor.Stack(1, tensor.Scalar(0.9), tensor.Scalar(0.1))
	require.NoError(t, err)
	thresholds, err := tensor.Stack(1, tensor.Scalar(0.5), tensor.Scalar(0.5))
	require.NoError(t, err)

	_, results, err := mod.onChoose(ctx, component.Snapshot{}, []*tensor.Tensor{scores, thresholds})
	require.NoError(t, err)

	lanes, err := tensor.Unstack(results[0])
	require.NoError(t, err)
	require.Equal(t, 0.9, lanes[0].At(0), "lane 0 exploits")
	require.NotEqual(t, 0.1, lanes[1].At(0), "lane 1 explores")
}
