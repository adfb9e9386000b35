//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type rlimitIsolator struct {
	limits     ResourceLimits
	namespaces bool
}

func newRlimitIsolator(limits ResourceLimits, namespaces bool) (Isolator, error) {
	return &rlimitIsolator{limits: limits, namespaces: namespaces}, nil
}

func newPlatformIsolator(limits ResourceLimits) Isolator {
	return &rlimitIsolator{limits: limits}
}

func (r *rlimitIsolator) Name() string {
	if r.namespaces {
		return IsolationNamespace
	}
	return IsolationRlimit
}

// Prepare puts the child in a new process group and has the kernel kill it
// if the server dies first. In namespace mode the child also gets fresh
// user, PID, network, IPC and UTS namespaces. The child is init of its PID
// namespace, so when it dies the kernel kills everything else inside. The
// empty network namespace has only a downed loopback, which cuts off all
// network access.
func (r *rlimitIsolator) Prepare(cmd *exec.Cmd) error {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if r.namespaces {
		attr.Cloneflags = syscall.CLONE_NEWUSER | syscall.CLONE_NEWPID |
			syscall.CLONE_NEWNET | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUTS
		attr.GidMappingsEnableSetgroups = false
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	}
	cmd.SysProcAttr = attr
	return nil
}

// Attach lowers the child's rlimits with prlimit(2). The child has already
// exec'd by the time this runs, so there is a window of a few microseconds
// where it runs unconstrained; closing it needs a re-exec helper that calls
// setrlimit before exec.
func (r *rlimitIsolator) Attach(pid int) error {
	for _, l := range r.rlimits() {
		rl := unix.Rlimit{Cur: l.value, Max: l.value}
		if err := unix.Prlimit(pid, l.resource, &rl, nil); err != nil {
			if errors.Is(err, unix.ESRCH) {
				// already gone; Wait will report how
				return nil
			}
			return fmt.Errorf("prlimit %s: %w", l.name, err)
		}
	}
	return nil
}

type rlimitSetting struct {
	name     string
	resource int
	value    uint64
}

func (r *rlimitIsolator) rlimits() []rlimitSetting {
	l := r.limits
	out := []rlimitSetting{{name: "RLIMIT_CORE", resource: unix.RLIMIT_CORE, value: 0}}
	if l.CPUSeconds > 0 {
		out = append(out, rlimitSetting{"RLIMIT_CPU", unix.RLIMIT_CPU, safeUint64(l.CPUSeconds)})
	}
	if l.MemoryMB > 0 {
		out = append(out, rlimitSetting{"RLIMIT_AS", unix.RLIMIT_AS, safeUint64(l.MemoryMB) * mib})
	}
	if l.MaxProcesses > 0 {
		// counts every process of the host uid, not just this execution's;
		// a cgroup's pids.max replaces it when cgroup_root is set
		out = append(out, rlimitSetting{"RLIMIT_NPROC", unix.RLIMIT_NPROC, safeUint64(l.MaxProcesses)})
	}
	if l.FileSizeMB > 0 {
		out = append(out, rlimitSetting{"RLIMIT_FSIZE", unix.RLIMIT_FSIZE, safeUint64(l.FileSizeMB) * mib})
	}
	if l.OpenFiles > 0 {
		out = append(out, rlimitSetting{"RLIMIT_NOFILE", unix.RLIMIT_NOFILE, safeUint64(l.OpenFiles)})
	}
	return out
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}

// signalGroup delivers sig to every process in the child's group. ESRCH
// means the group is already empty and is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func terminateGroup(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGTERM) }

func killGroup(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGKILL) }
