// Package trace provides the execution journal used during trace
// compilation.
//
// A journal records the structural events of one execution: combinator entry
// points, random draws and their shapes, vectorized-map boundaries. Events
// that depend only on the function's structure appear identically on every
// run with like-shaped inputs; the dispatcher exploits this by probing a
// candidate function twice with different input values and comparing
// journals. A divergence means the function branched natively on data
// outside a combinator, which a traced artifact cannot reproduce.
package trace

import (
	"context"
	"fmt"
)

type key struct{}

var journalKey = key{}

// Journal is an append-only sequence of structural events.
type Journal struct {
	events []string
}

// WithJournal returns a context carrying a fresh journal plus the journal
// itself.
func WithJournal(ctx context.Context) (context.Context, *Journal) {
	j := &Journal{}
	return context.WithValue(ctx, journalKey, j), j
}

// FromContext returns the journal embedded in ctx, or nil when execution is
// not being traced.
func FromContext(ctx context.Context) *Journal {
	j, _ := ctx.Value(journalKey).(*Journal)
	return j
}

// Silence returns a context that records no events, shadowing any journal in
// ctx. Loop combinators run their iterations under a silenced context so
// that a data-dependent trip count stays structurally opaque: only the loop's
// own entry event reaches the enclosing journal.
func Silence(ctx context.Context) context.Context {
	if FromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, journalKey, (*Journal)(nil))
}

// Record appends a structural event to the journal in ctx, if any. Callers
// record unconditionally; outside of tracing this is a no-op.
func Record(ctx context.Context, kind, format string, args ...any) {
	j := FromContext(ctx)
	if j == nil {
		return
	}
	j.events = append(j.events, kind+":"+fmt.Sprintf(format, args...))
}

// Events returns the recorded events in order.
func (j *Journal) Events() []string {
	return j.events
}

// Equal reports whether two journals recorded the same event sequence.
func Equal(a, b *Journal) bool {
	if len(a.events) != len(b.events) {
		return false
	}
	for i := range a.events {
		if a.events[i] != b.events[i] {
			return false
		}
	}
	return true
}
