package flow

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/trace"
)

// DefaultIterationLimit bounds While loops whose callers do not set an
// explicit cap.
const DefaultIterationLimit = 1024

// IterationLimitError reports a While loop that exceeded its iteration cap
// before every lane's condition went false.
type IterationLimitError struct {
	Limit int
}

// Error implements the error interface.
func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("while loop exceeded iteration limit %d", e.Limit)
}

// While is the loop combinator. The body must be shape- and dtype-stable:
// each iteration's output retypechecks against the next iteration's input.
// Under vectorization the loop runs until the condition is false for every
// lane; lanes that finish early are frozen, carrying their state and
// operands forward unchanged.
type While struct {
	cond  CondFunc
	body  Branch
	limit int
}

// NewWhile builds a loop combinator with the default iteration cap.
func NewWhile(cond CondFunc, body Branch) (*While, error) {
	if cond == nil || body.Fn == nil {
		return nil, fmt.Errorf("flow: while without condition or body")
	}
	return &While{cond: cond, body: body, limit: DefaultIterationLimit}, nil
}

// WithLimit returns a copy of the loop bounded by the given cap.
func (w *While) WithLimit(limit int) *While {
	out := *w
	out.limit = limit
	return &out
}

// Loop iterates the body while the condition holds for at least one lane.
// It returns the final state and the operands as they stood when every lane
// terminated. Exceeding the iteration cap fails with IterationLimitError.
func (w *While) Loop(ctx context.Context, state component.Snapshot, args ...*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	trace.Record(ctx, "while", "limit=%d", w.limit)

	// Iterations run silenced: the trip count may legitimately depend on
	// data, so events recorded inside the condition or body must not leak
	// into the enclosing journal. The loop contributes exactly one event.
	ctx = trace.Silence(ctx)

	cur := state.Clone()
	curArgs := cloneArgs(args)

	active, err := w.cond(ctx, cur.Clone(), cloneArgs(curArgs))
	if err != nil {
		return nil, nil, fmt.Errorf("flow: while condition: %w", err)
	}
	if active.DType() != tensor.Bool {
		return nil, nil, fmt.Errorf("flow: while condition yields %s, want bool", active.DType())
	}

	for iter := 0; ; iter++ {
		cont, err := tensor.Any(active)
		if err != nil {
			return nil, nil, err
		}
		if !cont {
			return cur, curArgs, nil
		}
		if iter >= w.limit {
			return nil, nil, &IterationLimitError{Limit: w.limit}
		}

		view, err := w.body.view(cur)
		if err != nil {
			return nil, nil, err
		}
		nextState, nextArgs, err := w.body.Fn(ctx, view, cloneArgs(curArgs))
		if err != nil {
			return nil, nil, fmt.Errorf("flow: while body at iteration %d: %w", iter, err)
		}
		nextFull := commit(cur, nextState)

		// Retypecheck: the body's output must feed the next iteration.
		if err := sameShapeAs(cur, curArgs, nextFull, nextArgs); err != nil {
			return nil, nil, fmt.Errorf("flow: while body is not shape-stable at iteration %d: %w", iter, err)
		}

		// Freeze masking: lanes already terminated keep their previous
		// state and operands verbatim.
		cur, curArgs, err = mergeOutputs(active, nextFull, nextArgs, cur, curArgs)
		if err != nil {
			return nil, nil, err
		}

		active, err = w.nextActive(ctx, active, cur, curArgs)
		if err != nil {
			return nil, nil, err
		}
	}
}

// nextActive re-evaluates the condition and conjoins it with the previous
// mask, so a lane that terminates once can never resume.
func (w *While) nextActive(ctx context.Context, active *tensor.Tensor, state component.Snapshot, args []*tensor.Tensor) (*tensor.Tensor, error) {
	pred, err := w.cond(ctx, state.Clone(), cloneArgs(args))
	if err != nil {
		return nil, fmt.Errorf("flow: while condition: %w", err)
	}
	if pred.DType() != tensor.Bool {
		return nil, fmt.Errorf("flow: while condition yields %s, want bool", pred.DType())
	}
	return tensor.And(active, pred)
}

func sameShapeAs(prevState component.Snapshot, prevArgs []*tensor.Tensor, nextState component.Snapshot, nextArgs []*tensor.Tensor) error {
	if !component.KeySetEqual(prevState, nextState) {
		return fmt.Errorf("state key sets diverge")
	}
	for _, path := range prevState.Paths() {
		if !tensor.SameSignature(prevState[path], nextState[path]) {
			return fmt.Errorf("state %q: %s becomes %s", path, prevState[path].Signature(), nextState[path].Signature())
		}
	}
	if len(prevArgs) != len(nextArgs) {
		return fmt.Errorf("operand count %d becomes %d", len(prevArgs), len(nextArgs))
	}
	for i := range prevArgs {
		if !tensor.SameSignature(prevArgs[i], nextArgs[i]) {
			return fmt.Errorf("operand %d: %s becomes %s", i, prevArgs[i].Signature(), nextArgs[i].Signature())
		}
	}
	return nil
}
