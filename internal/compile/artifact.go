package compile

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jasciiz/evox/internal/component"
	"github.com/jasciiz/evox/internal/registry"
	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/vfix"
)

// Artifact is the result of compiling one operation under one
// (mode, input-signature) key. It is a callable with the pure calling
// convention: state and operands in, new state and results out.
type Artifact struct {
	key       string
	op        string
	mode      registry.Mode
	fn        registry.PureFunc
	stateSigs map[string]string
	argSigs   []string
	outSigs   []string
	seed      uint64
}

// Key returns the cache key the artifact was compiled under.
func (a *Artifact) Key() string { return a.key }

// Operation returns the compiled operation's name.
func (a *Artifact) Operation() string { return a.op }

// Mode returns the compilation mode the artifact was built for.
func (a *Artifact) Mode() registry.Mode { return a.mode }

// OutputSignatures returns the result signatures fixed at compile time.
func (a *Artifact) OutputSignatures() []string {
	out := make([]string, len(a.outSigs))
	copy(out, a.outSigs)
	return out
}

// Call executes the compiled artifact. Inputs must match the signature the
// artifact was compiled for. When the caller has not installed a random
// stream, a stream seeded from the signature key is used, so identical
// inputs produce bit-identical outputs across calls and recompilations.
func (a *Artifact) Call(ctx context.Context, state component.Snapshot, args []*tensor.Tensor) (component.Snapshot, []*tensor.Tensor, error) {
	if err := a.checkInputs(state, args); err != nil {
		return nil, nil, err
	}
	if vfix.StreamFrom(ctx) == nil {
		ctx = vfix.WithStream(ctx, vfix.NewStream(a.seed))
	}
	return a.fn(ctx, state, args)
}

func (a *Artifact) checkInputs(state component.Snapshot, args []*tensor.Tensor) error {
	if len(args) != len(a.argSigs) {
		return fmt.Errorf("artifact %s: %d operands, compiled for %d", a.key, len(args), len(a.argSigs))
	}
	for i, arg := range args {
		if arg.Signature() != a.argSigs[i] {
			return fmt.Errorf("artifact %s: operand %d is %s, compiled for %s", a.key, i, arg.Signature(), a.argSigs[i])
		}
	}
	if len(state) != len(a.stateSigs) {
		return fmt.Errorf("artifact %s: state has %d entries, compiled for %d", a.key, len(state), len(a.stateSigs))
	}
	for _, path := range state.Paths() {
		want, ok := a.stateSigs[path]
		if !ok {
			return fmt.Errorf("artifact %s: unexpected state entry %q", a.key, path)
		}
		if got := state[path].Signature(); got != want {
			return fmt.Errorf("artifact %s: state %q is %s, compiled for %s", a.key, path, got, want)
		}
	}
	return nil
}

// cacheKey derives the signature key for one compilation: operation
// identity, mode, and the shape/dtype/device tuple of every input, state
// entries included since state is an input of the pure form.
func cacheKey(op string, mode registry.Mode, state component.Snapshot, args []*tensor.Tensor) string {
	var b strings.Builder
	b.WriteString(op)
	b.WriteByte('|')
	b.WriteString(mode.String())
	for _, arg := range args {
		b.WriteByte('|')
		b.WriteString(arg.Signature())
	}
	for _, path := range state.Paths() {
		b.WriteByte('|')
		b.WriteString(path)
		b.WriteByte('=')
		b.WriteString(state[path].Signature())
	}
	return b.String()
}

// seedFor derives the artifact's default random seed from its key, so that
// recompiling after a cache clear reproduces the original draws.
func seedFor(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
