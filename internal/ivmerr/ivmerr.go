// Package ivmerr defines the error taxonomy shared by every ivmengine
// package. Each class corresponds to one bucket in the engine's error
// taxonomy: callers match on class, not on individual sentinel values.
package ivmerr

import (
	"fmt"
	"runtime/debug"

	"github.com/zeebo/errs"
)

var (
	// Validation covers argument/validator failures and AST invariant
	// violations (e.g. limit/orderBy inside a junction inner edge).
	Validation = errs.Class("validation")
	// Schema covers unknown table, column, or relationship names.
	Schema = errs.Class("schema")
	// Store covers primary-key conflicts and missing-row operations.
	Store = errs.Class("store")
	// OperatorInvariant covers impossible operator states; fatal to the
	// owning view.
	OperatorInvariant = errs.Class("operator-invariant")
	// ChangeSource covers resets, version gaps, and unknown messages
	// from the upstream change producer.
	ChangeSource = errs.Class("change-source")
	// Cancellation covers cooperative cancellation and deadlines.
	Cancellation = errs.Class("cancellation")
	// Planner covers planner-internal faults; by contract these never
	// fail a query, they degrade to a default plan, but the class
	// exists so that degraded-plan events can still be logged/classified.
	Planner = errs.Class("planner")
	// Evaluation covers a predicate evaluation error for a single row.
	// It does not poison other rows or other queries.
	Evaluation = errs.Class("evaluation")
)

// InvariantError records the offending node alongside a stack trace,
// mirroring the teacher's CreateResolveError pattern of attaching a
// capture-site stack to a fatal internal fault.
type InvariantError struct {
	Op         string
	Cause      error
	StackTrace []byte
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("operator invariant violated during %s: %v", e.Op, e.Cause)
}

func (e *InvariantError) Unwrap() error {
	return e.Cause
}

// NewInvariant wraps cause as a fatal OperatorInvariant error, capturing
// a stack trace at the call site for postmortem diagnostics.
func NewInvariant(op string, cause error) error {
	return OperatorInvariant.Wrap(&InvariantError{
		Op:         op,
		Cause:      cause,
		StackTrace: debug.Stack(),
	})
}
