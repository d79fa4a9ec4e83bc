package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsInOrder(t *testing.T) {
	t.Parallel()

	ctx, j := WithJournal(context.Background())
	Record(ctx, "cond", "branches=%d", 2)
	Record(ctx, "rng", "uniform%v", []int{3})

	require.Equal(t, []string{"cond:branches=2", "rng:uniform[3]"}, j.Events())
}

func TestRecord_NoOpWithoutJournal(t *testing.T) {
	t.Parallel()

	// Must not panic; outside of tracing recording goes nowhere.
	Record(context.Background(), "cond", "branches=%d", 2)
	require.Nil(t, FromContext(context.Background()))
}

func TestSilence_ShadowsTheJournal(t *testing.T) {
	t.Parallel()

	ctx, j := WithJournal(context.Background())
	Record(ctx, "while", "limit=%d", 8)

	quiet := Silence(ctx)
	Record(quiet, "cond", "branches=2")
	Record(quiet, "rng", "uniform[]")

	require.Equal(t, []string{"while:limit=8"}, j.Events(), "silenced records must not reach the journal")
	require.Nil(t, FromContext(quiet))

	// Silencing an untraced context is a no-op.
	require.Equal(t, context.Background(), Silence(context.Background()))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	ctxA, a := WithJournal(context.Background())
	ctxB, b := WithJournal(context.Background())
	Record(ctxA, "while", "limit=%d", 8)
	Record(ctxB, "while", "limit=%d", 8)
	require.True(t, Equal(a, b))

	Record(ctxB, "rng", "uniform[]")
	require.False(t, Equal(a, b))

	ctxC, c := WithJournal(context.Background())
	Record(ctxC, "while", "limit=%d", 9)
	require.False(t, Equal(a, c))
}
