//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// cgroupManager creates one cgroup v2 leaf per execution under a delegated
// root. The child is cloned straight into its leaf, so every descendant is
// accounted there no matter what session or group it moves to, and
// cgroup.kill takes the whole tree down at once.
type cgroupManager struct {
	root   string
	limits ResourceLimits
}

func newCgroupManager(root string, limits ResourceLimits) (*cgroupManager, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return nil, fmt.Errorf("%w: cgroup_root %s: %v", ErrInvalidConfig, root, err)
	}
	if st.Type != unix.CGROUP2_SUPER_MAGIC {
		return nil, fmt.Errorf("%w: cgroup_root %s is not a cgroup v2 mount", ErrInvalidConfig, root)
	}
	// best effort: the controllers may already be enabled by whoever
	// delegated the root, and Open reports it if they are not
	_ = os.WriteFile(filepath.Join(root, "cgroup.subtree_control"), []byte("+pids +memory"), 0o644)

	m := &cgroupManager{root: root, limits: limits}
	leaf, err := m.Open("check_" + strconv.Itoa(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	leaf.Close(time.Second)
	return m, nil
}

// cgroupScope is the leaf of one execution.
type cgroupScope struct {
	path string
	dir  *os.File
}

func (m *cgroupManager) Open(id string) (*cgroupScope, error) {
	path := filepath.Join(m.root, workspacePrefix+id)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating cgroup: %w", err)
	}
	scope := &cgroupScope{path: path}

	pids := "max"
	if m.limits.MaxProcesses > 0 {
		pids = strconv.FormatInt(m.limits.MaxProcesses, 10)
	}
	if err := scope.write("pids.max", pids); err != nil {
		scope.Close(0)
		return nil, err
	}
	if m.limits.MemoryMB > 0 {
		if err := scope.write("memory.max", strconv.FormatInt(m.limits.MemoryMB*mib, 10)); err != nil {
			scope.Close(0)
			return nil, err
		}
	}

	dir, err := os.Open(path)
	if err != nil {
		scope.Close(0)
		return nil, fmt.Errorf("opening cgroup: %w", err)
	}
	scope.dir = dir
	return scope, nil
}

// Apply makes cmd start inside the leaf. It must run after the isolator's
// Prepare, which replaces SysProcAttr.
func (s *cgroupScope) Apply(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.UseCgroupFD = true
	cmd.SysProcAttr.CgroupFD = int(s.dir.Fd())
}

// Kill SIGKILLs every process in the leaf. Kernels older than 5.14 have no
// cgroup.kill; there the members are signalled one by one.
func (s *cgroupScope) Kill() error {
	if _, err := os.Stat(filepath.Join(s.path, "cgroup.kill")); err == nil {
		return s.write("cgroup.kill", "1")
	}
	for round := 0; round < maxReapRounds; round++ {
		pids, err := s.procs()
		if err != nil || len(pids) == 0 {
			return err
		}
		for _, pid := range pids {
			_ = unix.Kill(pid, syscall.SIGKILL)
		}
		time.Sleep(reapPause)
	}
	return nil
}

// Close kills what is left and removes the leaf, waiting up to grace for
// the kernel to empty it.
func (s *cgroupScope) Close(grace time.Duration) {
	if s.dir != nil {
		_ = s.Kill()
		s.dir.Close()
	}
	deadline := time.Now().Add(grace)
	for {
		err := unix.Rmdir(s.path)
		if err == nil || errors.Is(err, unix.ENOENT) || time.Now().After(deadline) {
			return
		}
		time.Sleep(reapPause)
	}
}

func (s *cgroupScope) procs() ([]int, error) {
	data, err := os.ReadFile(filepath.Join(s.path, "cgroup.procs"))
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, f := range strings.Fields(string(data)) {
		if pid, err := strconv.Atoi(f); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (s *cgroupScope) write(name, value string) error {
	if err := os.WriteFile(filepath.Join(s.path, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
