package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

// execMarkerEnv is set to the workspace ID in every child's environment.
// Descendants inherit it, which is how reapMarked finds them after they
// leave the process group.
const execMarkerEnv = "TRACECODE_EXEC_ID"

// RawResult is what the runner observed, before classification.
type RawResult struct {
	ExitCode    int
	Signal      string // set when the child was killed by a signal
	Stdout      string
	Stderr      string
	TimedOut    bool
	SpawnFailed bool
	SpawnErr    error
	Cancelled   bool
	Truncated   bool
	Elapsed     time.Duration
}

// Runner launches one interpreter process inside a workspace and waits for
// it under a hard deadline.
type Runner struct {
	isolator  Isolator
	cgroups   *cgroupManager // nil unless sandbox.cgroup_root is set
	killGrace time.Duration
	maxOutput int
	logger    *slog.Logger
}

type RunnerOption func(*Runner)

// withCgroups starts every child in its own cgroup leaf under m.
func withCgroups(m *cgroupManager) RunnerOption {
	return func(r *Runner) { r.cgroups = m }
}

func NewRunner(isolator Isolator, killGrace time.Duration, maxOutput int, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		isolator:  isolator,
		killGrace: killGrace,
		maxOutput: maxOutput,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs desc against the source already written in ws. It returns an
// error only when the sandbox itself could not be set up around the child;
// every behaviour of the child, including failing to start, is described by
// the RawResult.
//
// No process started by the child outlives Execute. The group is signalled
// while the leader runs; afterwards every process carrying the workspace
// marker is killed, and so is the cgroup leaf when one is configured.
//
// Execute never blocks longer than roughly deadline + 2*killGrace: one grace
// period between SIGTERM and SIGKILL, one for cmd.WaitDelay to give up on
// pipes held open by escaped descendants.
func (r *Runner) Execute(ctx context.Context, ws *Workspace, desc Descriptor, stdin string, deadline time.Duration) (RawResult, error) {
	cmd := exec.Command(desc.Executable, desc.Argv()...)
	cmd.Dir = ws.Dir
	cmd.Env = environ(ws, desc)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	stdout := newLimitedBuffer(r.maxOutput)
	stderr := newLimitedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.killGrace

	if err := r.isolator.Prepare(cmd); err != nil {
		return RawResult{}, fmt.Errorf("preparing isolation: %w", err)
	}

	var scope *cgroupScope
	if r.cgroups != nil {
		var err error
		if scope, err = r.cgroups.Open(ws.ID); err != nil {
			return RawResult{}, err
		}
		defer scope.Close(r.killGrace)
		scope.Apply(cmd)
	}
	marker := execMarkerEnv + "=" + ws.ID

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawResult{ExitCode: -1, SpawnFailed: true, SpawnErr: err}, nil
	}

	if err := r.isolator.Attach(cmd.Process.Pid); err != nil {
		// fail closed: never let the program run without its limits
		_ = killGroup(cmd)
		_ = cmd.Wait()
		r.reap(marker, scope)
		return RawResult{}, fmt.Errorf("applying limits: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var res RawResult
	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.TimedOut = true
		waitErr = r.terminate(cmd, done, marker, scope)
	case <-ctx.Done():
		res.Cancelled = true
		_ = killGroup(cmd)
		r.reap(marker, scope)
		waitErr = <-done
	}
	res.Elapsed = time.Since(start)

	// The leader is reaped by now and its pid may already belong to someone
	// else, so stragglers are found by marker rather than by group.
	r.reap(marker, scope)

	if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			r.logger.Debug("wait returned non-exit error", slog.Any("error", waitErr))
		}
	}

	res.ExitCode, res.Signal = exitStatus(cmd.ProcessState)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	return res, nil
}

// terminate asks the group to stop, then forces the whole tree after the
// grace period.
func (r *Runner) terminate(cmd *exec.Cmd, done <-chan error, marker string, scope *cgroupScope) error {
	if err := terminateGroup(cmd); err != nil {
		r.logger.Debug("SIGTERM to process group failed", slog.Any("error", err))
	}
	grace := time.NewTimer(r.killGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-grace.C:
		_ = killGroup(cmd)
		r.reap(marker, scope)
		return <-done
	}
}

// reap kills every process left over from one execution.
func (r *Runner) reap(marker string, scope *cgroupScope) {
	if scope != nil {
		if err := scope.Kill(); err != nil {
			r.logger.Warn("cgroup kill failed", slog.Any("error", err))
		}
	}
	n, err := reapMarked(marker)
	if err != nil {
		r.logger.Warn("sweeping leftover processes failed", slog.Any("error", err))
	}
	if n > 0 {
		r.logger.Debug("killed leftover processes", slog.Int("count", n))
	}
}

// exitStatus maps a finished process to an exit code. A process killed by a
// signal reports 128+signo like a shell would.
func exitStatus(ps *os.ProcessState) (int, string) {
	if ps == nil {
		return -1, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), ws.Signal().String()
	}
	return ps.ExitCode(), ""
}

// environ builds the child's environment from scratch. Nothing of the
// server's own environment leaks through except PATH.
func environ(ws *Workspace, desc Descriptor) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = defaultPath
	}
	env := []string{
		"PATH=" + path,
		"HOME=" + ws.Dir,
		"TMPDIR=" + ws.Dir,
		"LANG=C.UTF-8",
		execMarkerEnv + "=" + ws.ID,
	}
	return append(env, desc.Env...)
}
