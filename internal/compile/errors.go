package compile

import "fmt"

// NestedCompilationConflictError reports recursion through compilation
// modes: a trace compile containing a vectorized compile that would itself
// trace the same operation again with no override to break the cycle.
// Allowing it would specialize the operation inside its own specialization
// without bound.
type NestedCompilationConflictError struct {
	Op    string
	Chain []string
}

// Error implements the error interface.
func (e *NestedCompilationConflictError) Error() string {
	return fmt.Sprintf("nested compilation conflict for operation %q (compile chain %v)", e.Op, e.Chain)
}

// UncorrectableControlFlowError reports that an operation's structure
// changed between probe executions with like-shaped inputs: it branches
// natively on data outside a combinator, which a traced artifact cannot
// reproduce. Surfaced as a failed compilation, never retried.
type UncorrectableControlFlowError struct {
	Op     string
	Detail string
}

// Error implements the error interface.
func (e *UncorrectableControlFlowError) Error() string {
	return fmt.Sprintf("uncorrectable control flow in operation %q: %s", e.Op, e.Detail)
}
