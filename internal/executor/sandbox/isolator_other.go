//go:build !linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

func newRlimitIsolator(ResourceLimits, bool) (Isolator, error) {
	return nil, fmt.Errorf("%w: rlimit and namespace isolation require linux", ErrInvalidConfig)
}

func newPlatformIsolator(ResourceLimits) Isolator {
	return noneIsolator{}
}

func setProcessGroup(*exec.Cmd) {}

// Without process groups only the direct child can be signalled.
func terminateGroup(cmd *exec.Cmd) error { return killGroup(cmd) }

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
