package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkflowExhausted indicates a run hit the graph's step ceiling before reaching End.
	// Callers should treat it as retryable.
	ErrWorkflowExhausted = errors.New("workflow: step limit exhausted")

	// ErrNilState indicates a run was started, or a step returned, without a state.
	ErrNilState = errors.New("workflow: nil state")
)

// ExecutionError carries the context of a failed run.
type ExecutionError struct {
	Graph string
	Node  NodeID
	Path  []NodeID
	Err   error
}

func (e *ExecutionError) Error() string {
	path := make([]string, len(e.Path))
	for i, n := range e.Path {
		path[i] = string(n)
	}
	return fmt.Sprintf("workflow %q: node %q failed (path %s): %v",
		e.Graph, e.Node, strings.Join(path, " -> "), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a failure the caller may retry as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWorkflowExhausted)
}
