package sandbox

import (
	"fmt"
	"os/exec"
)

// Isolation modes accepted by NewIsolator.
const (
	IsolationAuto      = ""
	IsolationNone      = "none"
	IsolationRlimit    = "rlimit"
	IsolationNamespace = "namespace"
)

// Isolator confines a child process. Prepare runs before the process is
// started and may only adjust cmd. Attach runs right after start with the
// child's pid.
//
// Stronger backends (seccomp jail, microVM) can be added behind this
// interface without touching the runner.
type Isolator interface {
	Name() string
	Prepare(cmd *exec.Cmd) error
	Attach(pid int) error
}

// NewIsolator builds the isolator for mode. IsolationAuto picks the
// strongest mode that works without extra privileges on this platform.
func NewIsolator(mode string, limits ResourceLimits) (Isolator, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case IsolationAuto:
		return newPlatformIsolator(limits), nil
	case IsolationNone:
		return noneIsolator{}, nil
	case IsolationRlimit:
		return newRlimitIsolator(limits, false)
	case IsolationNamespace:
		return newRlimitIsolator(limits, true)
	default:
		return nil, fmt.Errorf("%w: unknown isolation mode %q", ErrInvalidConfig, mode)
	}
}

// noneIsolator only places the child in its own process group so the whole
// tree can be signalled. It applies no resource ceilings.
type noneIsolator struct{}

func (noneIsolator) Name() string { return IsolationNone }

func (noneIsolator) Prepare(cmd *exec.Cmd) error {
	setProcessGroup(cmd)
	return nil
}

func (noneIsolator) Attach(int) error { return nil }
