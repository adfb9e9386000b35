//go:build !linux

package sandbox

import (
	"fmt"
	"os/exec"
	"time"
)

type cgroupManager struct{}

func newCgroupManager(string, ResourceLimits) (*cgroupManager, error) {
	return nil, fmt.Errorf("%w: cgroup_root requires linux", ErrInvalidConfig)
}

type cgroupScope struct{}

func (*cgroupManager) Open(string) (*cgroupScope, error) {
	return nil, fmt.Errorf("%w: cgroups require linux", ErrInvalidConfig)
}

func (*cgroupScope) Apply(*exec.Cmd)     {}
func (*cgroupScope) Kill() error         { return nil }
func (*cgroupScope) Close(time.Duration) {}

// Without /proc there is nothing to scan; the direct child is all the
// runner can reach.
func reapMarked(string) (int, error) { return 0, nil }
