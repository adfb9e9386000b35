package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking. These describe faults of the
// sandbox itself, never of the submitted program.
var (
	ErrWorkspace     = errors.New("workspace unavailable")
	ErrSourceWrite   = errors.New("writing source failed")
	ErrInvalidConfig = errors.New("invalid sandbox config")
	ErrInvalidLimits = errors.New("invalid resource limits")
	ErrCancelled     = errors.New("execution cancelled")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsWorkspaceError reports whether err came from creating or populating the
// per-execution directory. Those indicate host trouble (disk full, tmp not
// writable) and should surface as a server error.
func IsWorkspaceError(err error) bool {
	return errors.Is(err, ErrWorkspace) || errors.Is(err, ErrSourceWrite)
}
