// Package flow provides the vectorization-safe replacements for native
// conditionals and loops.
//
// Why can a vectorized function not just use `if` and `for`?
//
// A vectorized caller executes many logical predicate values at once, one
// per lane. A native branch transfers control for the whole batch, so it
// would apply one lane's decision to every lane. The combinators here invert
// that: every branch body runs unconditionally over the full batch, and the
// predicate selects the surviving result per element afterwards. The same
// applies to loops, where finished lanes are frozen in place while the rest
// keep iterating.
//
// Combinator values are created once per call site and hold no state between
// invocations beyond the branch closures themselves.
package flow

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/tensor"
)

// BranchFunc is the body of one branch: a pure function of explicit state
// and operands.
type BranchFunc func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error)

// CondFunc evaluates a loop condition over explicit state and operands,
// returning a bool tensor: rank-0 for plain execution or a per-lane vector
// under vectorization.
type CondFunc func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (*tensor.Tensor, error)

// Branch binds a branch body to the subset of state it may read and write.
// A nil Keys slice grants the whole snapshot.
type Branch struct {
	Name string
	Keys []string
	Fn   BranchFunc
}

// view returns the snapshot slice a branch is allowed to see.
func (b Branch) view(state component.Snapshot) (component.Snapshot, error) {
	if b.Keys == nil {
		return state.Clone(), nil
	}
	out := make(component.Snapshot, len(b.Keys))
	for _, key := range b.Keys {
		v, ok := state[key]
		if !ok {
			return nil, fmt.Errorf("flow: branch %q declares state key %q not present in snapshot", b.Name, key)
		}
		out[key] = v.Clone()
	}
	return out, nil
}

// keySet renders the declared key set for compatibility checks.
func (b Branch) keySet() map[string]struct{} {
	if b.Keys == nil {
		return nil
	}
	set := make(map[string]struct{}, len(b.Keys))
	for _, key := range b.Keys {
		set[key] = struct{}{}
	}
	return set
}

func compatibleKeys(a, b Branch) bool {
	as, bs := a.keySet(), b.keySet()
	if (as == nil) != (bs == nil) {
		return false
	}
	if len(as) != len(bs) {
		return false
	}
	for key := range as {
		if _, ok := bs[key]; !ok {
			return false
		}
	}
	return true
}

// mergeOutputs selects between two branch outcomes per element of pred.
// Both outcomes must agree on result count, result signatures and state key
// sets; disagreement is a structural error.
func mergeOutputs(pred *tensor.Tensor,
	sa component.Snapshot, ra []*tensor.Tensor,
	sb component.Snapshot, rb []*tensor.Tensor,
) (component.Snapshot, []*tensor.Tensor, error) {
	if len(ra) != len(rb) {
		return nil, nil, fmt.Errorf("flow: branches return %d vs %d results", len(ra), len(rb))
	}
	if !component.KeySetEqual(sa, sb) {
		return nil, nil, fmt.Errorf("flow: branches touch different state key sets")
	}
	results := make([]*tensor.Tensor, len(ra))
	for i := range ra {
		if !tensor.SameSignature(ra[i], rb[i]) {
			return nil, nil, fmt.Errorf("flow: result %d signatures diverge: %s vs %s", i, ra[i].Signature(), rb[i].Signature())
		}
		merged, err := tensor.Where(pred, ra[i], rb[i])
		if err != nil {
			return nil, nil, fmt.Errorf("flow: merging result %d: %w", i, err)
		}
		results[i] = merged
	}
	state := make(component.Snapshot, len(sa))
	for _, path := range sa.Paths() {
		va, vb := sa[path], sb[path]
		if !tensor.SameSignature(va, vb) {
			return nil, nil, fmt.Errorf("flow: state %q signatures diverge: %s vs %s", path, va.Signature(), vb.Signature())
		}
		merged, err := tensor.Where(pred, va, vb)
		if err != nil {
			return nil, nil, fmt.Errorf("flow: merging state %q: %w", path, err)
		}
		state[path] = merged
	}
	return state, results, nil
}

// commit folds a branch's (possibly restricted) output state back over the
// full input snapshot.
func commit(full component.Snapshot, out component.Snapshot) component.Snapshot {
	merged := full.Clone()
	for path, v := range out {
		merged[path] = v.Clone()
	}
	return merged
}
