// Package vfix corrects the metadata a naive vectorizing transform would
// otherwise mishandle.
//
// Two things break when a function written for one logical call is executed
// for N lanes at once. Random draws must yield an independent stream per
// lane rather than one shared draw broadcast to every lane, and tensors
// crossing the vectorization boundary must carry a tag distinguishing the
// lane dimension from a genuine data dimension so that shape-dependent logic
// inside combinators runs per lane. This package owns both corrections: the
// seed-splittable Stream, and the vmap scope that tells Draw how many lanes
// it is serving.
//
// Operations this layer cannot fix, such as data-dependent native branching
// outside a combinator, are left uncorrected; the trace probe in the
// dispatcher catches the detectable cases and the rest is a documented
// capability boundary of the core.
package vfix

import (
	"context"
	"math/rand/v2"

	"github.com/jasciiz/evox/internal/tensor"
	"github.com/jasciiz/evox/internal/trace"
)

// Stream is a deterministic random stream that can be split into
// statistically independent child streams. Splitting is keyed, so the child
// for a given lane index is reproducible regardless of draw order.
type Stream struct {
	seed uint64
	rng  *rand.Rand
}

// streamMix separates child seeds from sibling and parent seeds.
const streamMix = 0x9e3779b97f4a7c15

// NewStream returns a stream rooted at the given seed.
func NewStream(seed uint64) *Stream {
	return &Stream{seed: seed, rng: rand.New(rand.NewPCG(seed, seed^streamMix))}
}

// Split derives the independent child stream for key i. Two splits with the
// same key yield identically seeded streams.
func (s *Stream) Split(i uint64) *Stream {
	child := s.seed ^ (i+1)*streamMix
	child ^= child >> 29
	child *= 0xbf58476d1ce4e5b9
	child ^= child >> 32
	return NewStream(child)
}

// Uniform draws one value in [0, 1).
func (s *Stream) Uniform() float64 {
	return s.rng.Float64()
}

type streamKey struct{}
type scopeKey struct{}

// scope marks a region of execution as running under a vectorized map.
type scope struct {
	level int
	lanes int
}

// WithStream returns a context carrying the given stream.
func WithStream(ctx context.Context, s *Stream) context.Context {
	return context.WithValue(ctx, streamKey{}, s)
}

// StreamFrom returns the stream installed in ctx, or nil.
func StreamFrom(ctx context.Context) *Stream {
	s, _ := ctx.Value(streamKey{}).(*Stream)
	return s
}

// WithScope marks ctx as executing inside a vectorized map of the given
// nesting level and lane count. Natively batched vectorized overrides run
// under such a scope so that Draw produces per-lane streams.
func WithScope(ctx context.Context, level, lanes int) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{level: level, lanes: lanes})
}

// ScopeLevel returns the vmap nesting level active in ctx, or 0.
func ScopeLevel(ctx context.Context) int {
	if sc, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return sc.level
	}
	return 0
}

// ScopeLanes returns the lane count of the active vmap scope, or 0.
func ScopeLanes(ctx context.Context) int {
	if sc, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return sc.lanes
	}
	return 0
}

// Draw samples a uniform tensor of the given data shape from the stream in
// ctx. Inside a vmap scope the draw is corrected: each lane samples from its
// own split of the stream and the results stack into a lane-batched tensor
// tagged with the scope's level. Outside a scope a single unbatched tensor
// is drawn.
func Draw(ctx context.Context, shape ...int) (*tensor.Tensor, error) {
	trace.Record(ctx, "rng", "uniform%v", shape)
	base := StreamFrom(ctx)
	if base == nil {
		base = NewStream(0)
	}
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	if sc == nil {
		return fill(base, shape), nil
	}
	lanes := make([]*tensor.Tensor, sc.lanes)
	for l := 0; l < sc.lanes; l++ {
		lanes[l] = fill(base.Split(uint64(l)), shape)
	}
	return tensor.Stack(sc.level, lanes...)
}

func fill(s *Stream, shape []int) *tensor.Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = s.Uniform()
	}
	out, err := tensor.FromSlice(vals, shape...)
	if err != nil {
		// shape came from Zeros on the same dims; cannot fail
		panic(err)
	}
	return out
}
