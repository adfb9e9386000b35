//go:build linux

package sandbox

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	maxReapRounds = 10
	reapPause     = 10 * time.Millisecond
)

// reapMarked SIGKILLs every live process whose environment carries marker,
// together with all of their descendants. A process that calls setsid or
// setpgid leaves the execution's group but keeps the environment it was
// started with, so this finds what a group kill misses. A child that execs
// with a scrubbed environment is still caught while its marked parent
// lives.
//
// It repeats until a scan finds nothing, so children forked during a scan
// are picked up by the next one. It returns how many processes it signalled.
func reapMarked(marker string) (int, error) {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return 0, err
	}

	self := os.Getpid()
	killed := make(map[int]struct{})
	for round := 0; round < maxReapRounds; round++ {
		victims, err := markedTree(fs, marker, self)
		if err != nil {
			return len(killed), err
		}
		if len(victims) == 0 {
			return len(killed), nil
		}
		for _, pid := range victims {
			if err := unix.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				return len(killed), err
			}
			killed[pid] = struct{}{}
		}
		time.Sleep(reapPause)
	}
	return len(killed), nil
}

// markedTree lists live pids that carry marker or descend from one that does.
func markedTree(fs procfs.FS, marker string, self int) ([]int, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}

	children := make(map[int][]int)
	var queue []int
	for _, p := range procs {
		if p.PID == self {
			continue
		}
		st, err := p.Stat()
		if err != nil || st.State == "Z" || st.State == "X" {
			continue
		}
		children[st.PPID] = append(children[st.PPID], p.PID)
		if hasMarker(p, marker) {
			queue = append(queue, p.PID)
		}
	}

	seen := make(map[int]struct{}, len(queue))
	var out []int
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		out = append(out, pid)
		queue = append(queue, children[pid]...)
	}
	return out, nil
}

func hasMarker(p procfs.Proc, marker string) bool {
	env, err := p.Environ()
	if err != nil {
		// other users' processes are unreadable and cannot be ours
		return false
	}
	for _, kv := range env {
		if kv == marker {
			return true
		}
	}
	return false
}
