package app

import (
	"context"
	"fmt"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/ctxlog"
	"github.com/jasciiz/evox/internal/extract"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/vfix"
)

// Run executes the main application logic based on the provided configuration.
// With no operation named it lists the registered operations; otherwise it
// compiles the operation under the configured mode, runs the artifact once on
// example inputs synthesized from the manifest, and prints the results.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.OpName == "" {
		return a.listOperations()
	}

	mode, err := registry.ParseMode(appConfig.Mode)
	if err != nil {
		return err
	}
	op, ok := a.registry.Operation(appConfig.OpName)
	if !ok {
		return fmt.Errorf("unknown operation %q", appConfig.OpName)
	}
	def, ok := a.registry.Definition(op.Name)
	if !ok {
		return fmt.Errorf("operation %q has no manifest declaration", op.Name)
	}

	args := make([]*tensor.Tensor, len(def.Inputs))
	for i, in := range def.Inputs {
		ex, err := in.Example()
		if err != nil {
			return fmt.Errorf("synthesizing inputs for %q: %w", op.Name, err)
		}
		args[i] = ex
	}

	ext, err := extract.Extract(op)
	if err != nil {
		return err
	}

	// Vectorized runs execute all lanes in lockstep, so both the operands and
	// the owning component's state get a leading lane dimension.
	if mode == registry.ModeVectorized {
		args = batchArgs(args, appConfig.Lanes)
		if err := ext.SetState(batchState(ext.InitState(), appConfig.Lanes)); err != nil {
			return fmt.Errorf("batching state of %q: %w", op.Name, err)
		}
	}

	if appConfig.Seed != 0 {
		ctx = vfix.WithStream(ctx, vfix.NewStream(appConfig.Seed))
	}

	a.logger.Info("Compiling operation.", "operation", op.Name, "mode", mode.String())
	artifact, err := a.compiler.Compile(ctx, op.Name, mode, args)
	if err != nil {
		return fmt.Errorf("compiling %q: %w", op.Name, err)
	}

	state := ext.InitState()
	newState, results, err := artifact.Call(ctx, state, args)
	if err != nil {
		return fmt.Errorf("running %q: %w", op.Name, err)
	}
	if err := ext.SetState(newState); err != nil {
		return fmt.Errorf("committing state of %q: %w", op.Name, err)
	}
	a.logger.Info("Run finished.", "operation", op.Name, "cache_size", a.compiler.Cache().Len())

	for i, res := range results {
		name := fmt.Sprintf("result %d", i)
		if i < len(def.Outputs) {
			name = def.Outputs[i].Name
		}
		fmt.Fprintf(a.outW, "%s = %s\n", name, res)
	}
	for _, path := range newState.Paths() {
		fmt.Fprintf(a.outW, "state %s = %s\n", path, newState[path])
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// listOperations prints the registered operations and their declared
// signatures.
func (a *App) listOperations() error {
	for _, name := range a.registry.OperationNames() {
		def, ok := a.registry.Definition(name)
		if !ok {
			fmt.Fprintf(a.outW, "%s (undeclared)\n", name)
			continue
		}
		fmt.Fprintf(a.outW, "%s  in=%d out=%d  %s\n", name, len(def.Inputs), len(def.Outputs), def.Description)
	}
	return nil
}

// batchArgs stacks lanes copies of each example operand into lane-batched
// form at vmap level 1.
func batchArgs(args []*tensor.Tensor, lanes int) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(args))
	for i, arg := range args {
		out[i] = mustStackClones(arg, lanes)
	}
	return out
}

// batchState stacks every snapshot entry to lane-batched form.
func batchState(state component.Snapshot, lanes int) component.Snapshot {
	out := make(component.Snapshot, len(state))
	for _, path := range state.Paths() {
		out[path] = mustStackClones(state[path], lanes)
	}
	return out
}

func mustStackClones(t *tensor.Tensor, lanes int) *tensor.Tensor {
	vals := make([]*tensor.Tensor, lanes)
	for l := range vals {
		vals[l] = t.Clone()
	}
	// Stacking identical unbatched clones cannot fail.
	stacked, err := tensor.Stack(1, vals...)
	if err != nil {
		panic(err)
	}
	return stacked
}
