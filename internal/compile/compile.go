package compile

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/ctxlog"
	"github.com/jasciiz/evox/internal/extract"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
)

// Compiler resolves, probes and caches compiled operation artifacts.
type Compiler struct {
	reg   *registry.Registry
	cache *Cache
	group singleflight.Group
}

// New creates a Compiler over a registry. A nil cache gets a fresh one; a
// shared cache may be injected for cross-compiler reuse or test isolation.
func New(reg *registry.Registry, cache *Cache) *Compiler {
	if cache == nil {
		cache = NewCache()
	}
	return &Compiler{reg: reg, cache: cache}
}

// Cache returns the compiler's artifact cache.
func (c *Compiler) Cache() *Cache { return c.cache }

// frame records one active compilation on the stack carried through ctx.
type frame struct {
	op   string
	mode registry.Mode
	key  string
}

type stackKey struct{}

func stackFrom(ctx context.Context) []frame {
	s, _ := ctx.Value(stackKey{}).([]frame)
	return s
}

func pushFrame(ctx context.Context, f frame) context.Context {
	prev := stackFrom(ctx)
	next := make([]frame, len(prev), len(prev)+1)
	copy(next, prev)
	return context.WithValue(ctx, stackKey{}, append(next, f))
}

func chainOf(stack []frame, tail frame) []string {
	chain := make([]string, 0, len(stack)+1)
	for _, f := range stack {
		chain = append(chain, f.op+"/"+f.mode.String())
	}
	return append(chain, tail.op+"/"+tail.mode.String())
}

// Compile builds (or returns from cache) the artifact for one operation
// under one compilation mode, specialized to the shapes of the example
// operands. For a stateful operation the example state is the owning
// component's current snapshot.
func (c *Compiler) Compile(ctx context.Context, opName string, mode registry.Mode, exampleArgs []*tensor.Tensor) (*Artifact, error) {
	logger := ctxlog.FromContext(ctx)

	if mode != registry.ModeTrace && mode != registry.ModeVectorized {
		return nil, fmt.Errorf("compile: mode %s is not a compilation mode; use trace or vectorized", mode)
	}
	op, ok := c.reg.Operation(opName)
	if !ok {
		return nil, fmt.Errorf("compile: unknown operation %q", opName)
	}

	ext, err := extract.Extract(op)
	if err != nil {
		return nil, err
	}
	exampleState := ext.InitState()
	key := cacheKey(opName, mode, exampleState, exampleArgs)

	if a, hit := c.cache.Get(key); hit {
		logger.Debug("Compile cache hit.", "key", key)
		return a, nil
	}

	stack := stackFrom(ctx)
	if err := checkNesting(c.reg, stack, opName, mode, key); err != nil {
		return nil, err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A waiter that lost the race re-checks the cache before building.
		if a, hit := c.cache.Get(key); hit {
			return a, nil
		}
		// Build against a detached view: probe runs scribble on a clone of
		// the owning component, never on the live tree, so sibling builds of
		// other signatures can keep snapshotting it concurrently.
		a, err := c.build(pushFrame(ctx, frame{op: opName, mode: mode, key: key}), op, ext.Detached(), mode, key, exampleState, exampleArgs)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Compilation finished.", "key", key)
	return v.(*Artifact), nil
}

// checkNesting enforces the mode-recursion rules. Re-entering the exact
// same compilation, or vectorizing an operation inside its own trace compile
// with no vectorized override to break the cycle, would specialize without
// bound.
func checkNesting(reg *registry.Registry, stack []frame, opName string, mode registry.Mode, key string) error {
	tail := frame{op: opName, mode: mode, key: key}
	for _, f := range stack {
		if f.key == key {
			return &NestedCompilationConflictError{Op: opName, Chain: chainOf(stack, tail)}
		}
	}
	if mode == registry.ModeVectorized {
		if _, overridden := reg.Variant(opName, registry.ModeVectorized); !overridden {
			for _, f := range stack {
				if f.op == opName && f.mode == registry.ModeTrace {
					return &NestedCompilationConflictError{Op: opName, Chain: chainOf(stack, tail)}
				}
			}
		}
	}
	if mode == registry.ModeTrace {
		if _, overridden := reg.Variant(opName, registry.ModeTrace); !overridden {
			tracedAt := -1
			for i, f := range stack {
				if f.op == opName && f.mode == registry.ModeTrace {
					tracedAt = i
					break
				}
			}
			if tracedAt >= 0 {
				for _, f := range stack[tracedAt+1:] {
					if f.mode == registry.ModeVectorized {
						return &NestedCompilationConflictError{Op: opName, Chain: chainOf(stack, tail)}
					}
				}
			}
		}
	}
	return nil
}

// build performs one physical compilation. Runs inside the per-signature
// singleflight.
func (c *Compiler) build(ctx context.Context, op *registry.Operation, ext *extract.Extracted, mode registry.Mode, key string, exampleState component.Snapshot, exampleArgs []*tensor.Tensor) (*Artifact, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Compiling operation.", "operation", op.Name, "mode", mode.String(), "key", key)

	// Eager signature check against the manifest, if one declared the
	// operation.
	if def, ok := c.reg.Definition(op.Name); ok {
		if err := def.CheckInputs(exampleArgs); err != nil {
			return nil, &registry.SignatureMismatchError{Op: op.Name, Detail: err.Error()}
		}
	}

	var fn registry.PureFunc
	variant, overridden := c.reg.Variant(op.Name, mode)
	switch {
	case mode == registry.ModeTrace && overridden:
		fn = variant
	case mode == registry.ModeTrace:
		fn = ext.Func()
	case overridden:
		fn = frozenWrap(op.Owner, variant)
	default:
		fn = vmapWrap(op.Name, ext.Func())
	}

	seed := seedFor(key)
	outSigs, err := c.probe(ctx, op.Name, fn, seed, exampleState, exampleArgs)
	if err != nil {
		return nil, err
	}

	// An override must keep the default's output signature. The lane
	// dimension is ignored: a vectorized override legitimately returns
	// batched values where the default returns one lane's worth.
	if overridden {
		if err := c.checkOverrideParity(ctx, op.Name, ext, seed, exampleState, exampleArgs, outSigs); err != nil {
			return nil, err
		}
	}

	stateSigs := make(map[string]string, len(exampleState))
	for _, path := range exampleState.Paths() {
		stateSigs[path] = exampleState[path].Signature()
	}
	argSigs := make([]string, len(exampleArgs))
	for i, arg := range exampleArgs {
		argSigs[i] = arg.Signature()
	}

	return &Artifact{
		key:       key,
		op:        op.Name,
		mode:      mode,
		fn:        fn,
		stateSigs: stateSigs,
		argSigs:   argSigs,
		outSigs:   outSigs,
		seed:      seed,
	}, nil
}
