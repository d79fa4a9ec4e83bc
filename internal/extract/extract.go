// Package extract converts stateful operations into pure functions of an
// explicit state argument.
//
// Why route every compilation through this conversion?
//
// The downstream tracer can only ingest side-effect-free functions: it
// replays a recorded execution against new inputs, so any state a function
// reads or writes must flow through its arguments and results. Extraction
// bridges the gap between that requirement and the imperative authoring
// style: the author mutates component attributes freely, and the extracted
// form threads a snapshot through the call instead.
//
// The conversion is path-based, not reference-based. An attribute introduced
// during a call shows up in the returned state even though the initial
// snapshot never contained it, and two paths aliasing one tensor become
// independent entries. The latter is an accepted, documented approximation;
// callers depend on the lossy behavior, so it is preserved rather than
// fixed.
package extract

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
)

// Extracted is the pure-functional view of an operation: an initial-state
// producer, a state writer, and a pure call taking and returning explicit
// state.
type Extracted struct {
	owner    *component.Component
	stateful registry.StatefulFunc
	call     registry.PureFunc
}

// Extract builds the pure-functional view of a registered operation. A
// stateful default implementation is wrapped so that its component reads and
// writes are routed through snapshots; an already-pure implementation passes
// through untouched.
func Extract(op *registry.Operation) (*Extracted, error) {
	switch {
	case op.Stateful != nil:
		if op.Owner == nil {
			return nil, fmt.Errorf("extract: stateful operation %q has no owning component", op.Name)
		}
		return &Extracted{owner: op.Owner, stateful: op.Stateful, call: statefulCall(op.Owner, op.Stateful)}, nil
	case op.Pure != nil:
		return &Extracted{owner: op.Owner, call: op.Pure}, nil
	}
	return nil, fmt.Errorf("extract: operation %q has no implementation", op.Name)
}

// Detached returns a view bound to a deep clone of the owning component. The
// detached view calls the same implementation, but every snapshot the call
// applies or takes goes through the clone, so the live component is never
// read or written. The dispatcher compiles against detached views: probe
// executions scribble on the clone while concurrent callers keep snapshotting
// the original undisturbed.
func (e *Extracted) Detached() *Extracted {
	if e.owner == nil {
		return e
	}
	clone := e.owner.Clone()
	out := &Extracted{owner: clone, stateful: e.stateful, call: e.call}
	if e.stateful != nil {
		out.call = statefulCall(clone, e.stateful)
	}
	return out
}

// InitState walks the owning component tree and returns the initial state
// mapping. A free-standing operation starts from an empty snapshot.
func (e *Extracted) InitState() component.Snapshot {
	if e.owner == nil {
		return make(component.Snapshot)
	}
	return component.TakeSnapshot(e.owner)
}

// SetState writes a snapshot back into the owning component in place.
func (e *Extracted) SetState(state component.Snapshot) error {
	if e.owner == nil {
		if len(state) > 0 {
			return fmt.Errorf("extract: cannot apply state to a free-standing operation")
		}
		return nil
	}
	return component.ApplySnapshot(e.owner, state)
}

// Call invokes the operation as a pure function: the given state is applied,
// the operation runs, and the resulting state is captured and returned. The
// owning component's prior attribute values are restored afterwards, so a
// Call does not commit anything; committing is SetState's job.
func (e *Extracted) Call(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	return e.call(ctx, state, args)
}

// Func returns the pure call as a registry.PureFunc for the dispatcher.
func (e *Extracted) Func() registry.PureFunc {
	return e.call
}

// statefulCall adapts an imperative implementation to the pure convention.
func statefulCall(owner *component.Component, fn registry.StatefulFunc) registry.PureFunc {
	return func(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
		saved := component.TakeSnapshot(owner)
		if err := component.ApplySnapshot(owner, state); err != nil {
			return nil, nil, fmt.Errorf("extract: applying input state: %w", err)
		}

		results, err := fn(ctx, owner, args)
		if err != nil {
			// Best-effort restore; the call failed and its error wins.
			_ = component.ApplySnapshot(owner, saved)
			return nil, nil, err
		}

		newState := component.TakeSnapshot(owner)

		// Restore the owner's previous values. Attributes the call
		// introduced keep their slots (path-based tracking captures them in
		// newState either way); their pre-call absence is not recreated.
		if err := component.ApplySnapshot(owner, saved); err != nil {
			return nil, nil, fmt.Errorf("extract: restoring owner state: %w", err)
		}
		return newState, results, nil
	}
}
