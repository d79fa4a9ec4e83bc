package compile

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/trace"
	"github.com/jasciiz/evox/internal/vfix"
)

// laneCount determines how many lanes a vectorized call serves from its
// batched inputs. At least one operand or state entry must carry a lane
// dimension; every batched input must agree on the count.
func laneCount(state component.Snapshot, args []*tensor.Tensor) (int, error) {
	lanes := 0
	note := func(t *tensor.Tensor, what string) error {
		if t.BatchLevel() == 0 {
			return nil
		}
		if lanes == 0 {
			lanes = t.Lanes()
			return nil
		}
		if t.Lanes() != lanes {
			return fmt.Errorf("vectorized inputs disagree on lane count: %s has %d, earlier inputs have %d", what, t.Lanes(), lanes)
		}
		return nil
	}
	for i, arg := range args {
		if err := note(arg, fmt.Sprintf("operand %d", i)); err != nil {
			return 0, err
		}
	}
	for _, path := range state.Paths() {
		if err := note(state[path], fmt.Sprintf("state %q", path)); err != nil {
			return 0, err
		}
	}
	if lanes == 0 {
		return 0, fmt.Errorf("vectorized compilation requires at least one lane-batched input")
	}
	return lanes, nil
}

// vmapWrap lifts a per-call pure function to lane-batched execution. Each
// lane runs the function on its slice of the inputs under an independent
// split of the random stream; results and state stack back into batched form
// tagged with the vmap level. This is the fallback when no natively batched
// vectorized override is registered.
func vmapWrap(opName string, fn registry.PureFunc) registry.PureFunc {
	return func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
		lanes, err := laneCount(state, args)
		if err != nil {
			return nil, nil, fmt.Errorf("vmap %s: %w", opName, err)
		}
		level := vfix.ScopeLevel(ctx) + 1
		trace.Record(ctx, "vmap", "op=%s lanes=%d level=%d", opName, lanes, level)

		base := vfix.StreamFrom(ctx)
		if base == nil {
			base = vfix.NewStream(0)
		}

		laneStates := make([]component.Snapshot, lanes)
		laneResults := make([][]*tensor.Tensor, lanes)
		for l := 0; l < lanes; l++ {
			laneState, err := sliceState(state, l)
			if err != nil {
				return nil, nil, fmt.Errorf("vmap %s: %w", opName, err)
			}
			laneArgs, err := sliceArgs(args, l)
			if err != nil {
				return nil, nil, fmt.Errorf("vmap %s: %w", opName, err)
			}
			// Per-lane stream split is the randomness fix-up: without it
			// every lane would see the same draw.
			lctx := vfix.WithStream(ctx, base.Split(uint64(l)))
			laneStates[l], laneResults[l], err = fn(lctx, laneState, laneArgs)
			if err != nil {
				return nil, nil, fmt.Errorf("vmap %s: lane %d: %w", opName, l, err)
			}
		}

		outState, err := stackStates(level, laneStates)
		if err != nil {
			return nil, nil, fmt.Errorf("vmap %s: %w", opName, err)
		}
		outResults, err := stackResults(level, laneResults)
		if err != nil {
			return nil, nil, fmt.Errorf("vmap %s: %w", opName, err)
		}
		return outState, outResults, nil
	}
}

// frozenWrap prepares a natively batched vectorized override for execution:
// the owning component is frozen so that an override reaching around the
// pure convention to mutate state directly fails with InPlaceMutationError,
// and a vmap scope is installed so random draws split per lane.
func frozenWrap(owner *component.Component, fn registry.PureFunc) registry.PureFunc {
	return func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
		lanes, err := laneCount(state, args)
		if err != nil {
			return nil, nil, err
		}
		level := vfix.ScopeLevel(ctx) + 1
		ctx = vfix.WithScope(ctx, level, lanes)
		if owner != nil {
			owner.Freeze()
			defer owner.Unfreeze()
		}
		return fn(ctx, state, args)
	}
}

// sliceState extracts lane l's view of a snapshot. Unbatched entries are
// shared across lanes and pass through as copies.
func sliceState(state component.Snapshot, l int) (component.Snapshot, error) {
	out := make(component.Snapshot, len(state))
	for _, path := range state.Paths() {
		v := state[path]
		if v.BatchLevel() == 0 {
			out[path] = v.Clone()
			continue
		}
		lane, err := tensor.Lane(v, l)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", path, err)
		}
		out[path] = lane
	}
	return out, nil
}

func sliceArgs(args []*tensor.Tensor, l int) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(args))
	for i, arg := range args {
		if arg.BatchLevel() == 0 {
			out[i] = arg.Clone()
			continue
		}
		lane, err := tensor.Lane(arg, l)
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		out[i] = lane
	}
	return out, nil
}

func stackStates(level int, laneStates []component.Snapshot) (component.Snapshot, error) {
	first := laneStates[0]
	out := make(component.Snapshot, len(first))
	for _, path := range first.Paths() {
		vals := make([]*tensor.Tensor, len(laneStates))
		for l, s := range laneStates {
			v, ok := s[path]
			if !ok {
				return nil, fmt.Errorf("lane %d dropped state entry %q", l, path)
			}
			vals[l] = v
		}
		stacked, err := tensor.Stack(level, vals...)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", path, err)
		}
		out[path] = stacked
	}
	for l, s := range laneStates {
		if !component.KeySetEqual(first, s) {
			return nil, fmt.Errorf("lane %d produced a different state key set than lane 0", l)
		}
	}
	return out, nil
}

func stackResults(level int, laneResults [][]*tensor.Tensor) ([]*tensor.Tensor, error) {
	n := len(laneResults[0])
	out := make([]*tensor.Tensor, n)
	for l, res := range laneResults {
		if len(res) != n {
			return nil, fmt.Errorf("lane %d returned %d results, lane 0 returned %d", l, len(res), n)
		}
	}
	for i := 0; i < n; i++ {
		vals := make([]*tensor.Tensor, len(laneResults))
		for l := range laneResults {
			vals[l] = laneResults[l][i]
		}
		stacked, err := tensor.Stack(level, vals...)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		out[i] = stacked
	}
	return out, nil
}
