package solver

import (
	"errors"
	"fmt"
)

// ErrNoFeasibleSolver means the capability filter eliminated every
// registered solver for a problem shape. A configuration error, not a
// runtime one: registering the greedy fallback makes it unreachable.
var ErrNoFeasibleSolver = errors.New("solver: no registered solver can handle this problem")

// ExecutionError wraps a failure inside a specific solver's Solve. The
// fallback chain recovers from it locally; callers only see it when the
// whole chain is exhausted.
type ExecutionError struct {
	Solver Kind
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("solver %s: %v", e.Solver, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ServiceError is a structured error reported by an external VRP service,
// as opposed to a transport failure. Not retried: the service understood
// the request and rejected it.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("vrp service error %s: %s", e.Code, e.Message)
}
