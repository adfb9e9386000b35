// Package sandbox runs untrusted source code as a confined child process.
//
// One execution is a linear pipeline:
//
//	WorkspaceManager.Acquire → Runner.Execute → Classify → WorkspaceManager.Release
//
// Release is deferred, so the workspace disappears on every path including
// timeouts and internal faults. Sandbox holds no per-execution state and is
// safe for concurrent use; the only thing concurrent executions share is the
// workspace root, and every workspace gets a unique directory under it.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tracecode/internal/executor"
)

const (
	DefaultDeadline       = 10 * time.Second
	DefaultKillGrace      = 500 * time.Millisecond
	DefaultMaxOutputBytes = 1 << 20
)

// Config controls every execution run by a Sandbox.
type Config struct {
	Deadline       time.Duration `mapstructure:"deadline"`
	KillGrace      time.Duration `mapstructure:"kill_grace"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"` // 0 = unlimited
	Isolation      string        `mapstructure:"isolation"`
	WorkRoot       string        `mapstructure:"work_root"`   // "" = os.TempDir()
	PythonPath     string        `mapstructure:"python_path"` // overrides the python3 lookup
	// CgroupRoot is a delegated cgroup v2 directory. When set, every
	// execution runs in its own leaf there, with pids.max and memory.max
	// taken from Limits.
	CgroupRoot string         `mapstructure:"cgroup_root"`
	Limits     ResourceLimits `mapstructure:"limits"`
}

func DefaultConfig() Config {
	return Config{
		Deadline:       DefaultDeadline,
		KillGrace:      DefaultKillGrace,
		MaxOutputBytes: DefaultMaxOutputBytes,
		Isolation:      IsolationAuto,
		Limits:         DefaultLimits(),
	}
}

func (c Config) Validate() error {
	if c.Deadline <= 0 {
		return fmt.Errorf("%w: deadline must be positive, got %s", ErrInvalidConfig, c.Deadline)
	}
	if c.KillGrace <= 0 {
		return fmt.Errorf("%w: kill_grace must be positive, got %s", ErrInvalidConfig, c.KillGrace)
	}
	if c.MaxOutputBytes < 0 {
		return fmt.Errorf("%w: max_output_bytes must not be negative", ErrInvalidConfig)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max_concurrent must not be negative", ErrInvalidConfig)
	}
	// a busy loop must hit the wall deadline before RLIMIT_CPU sends SIGXCPU
	if cpu := time.Duration(c.Limits.CPUSeconds) * time.Second; cpu > 0 && cpu <= c.Deadline {
		return fmt.Errorf("%w: limits.cpu_seconds (%s) must exceed deadline (%s)", ErrInvalidConfig, cpu, c.Deadline)
	}
	return c.Limits.Validate()
}

// Observer receives one callback per execution. Implementations must be
// safe for concurrent use.
type Observer interface {
	ExecutionStarted(language string)
	ExecutionFinished(language string, res *executor.ExecutionResult)
	ExecutionFailed(language, op string)
}

type nopObserver struct{}

func (nopObserver) ExecutionStarted(string)                             {}
func (nopObserver) ExecutionFinished(string, *executor.ExecutionResult) {}
func (nopObserver) ExecutionFailed(string, string)                      {}

type Option func(*Sandbox)

func WithObserver(o Observer) Option {
	return func(s *Sandbox) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithIsolator replaces the isolator chosen from Config.Isolation.
func WithIsolator(iso Isolator) Option {
	return func(s *Sandbox) {
		if iso != nil {
			s.isolator = iso
		}
	}
}

// Sandbox implements executor.Executor.
type Sandbox struct {
	cfg        Config
	workspaces *WorkspaceManager
	runner     *Runner
	isolator   Isolator
	languages  map[Language]Descriptor
	sem        chan struct{}
	observer   Observer
	logger     *slog.Logger
}

var _ executor.Executor = (*Sandbox)(nil)

func New(cfg Config, logger *slog.Logger, opts ...Option) (*Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sandbox{
		cfg:        cfg,
		workspaces: NewWorkspaceManager(cfg.WorkRoot, logger),
		languages:  make(map[Language]Descriptor, len(registry)),
		observer:   nopObserver{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	var runnerOpts []RunnerOption
	isoLimits := cfg.Limits
	if cfg.CgroupRoot != "" {
		cg, err := newCgroupManager(cfg.CgroupRoot, cfg.Limits)
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, withCgroups(cg))
		// pids.max counts this execution only
		isoLimits.MaxProcesses = 0
	}

	if s.isolator == nil {
		iso, err := NewIsolator(cfg.Isolation, isoLimits)
		if err != nil {
			return nil, err
		}
		s.isolator = iso
	}

	for name, desc := range registry {
		if desc.Compile != nil {
			return nil, fmt.Errorf("%w: %s: compile steps are not supported", ErrInvalidConfig, name)
		}
		if name == LanguagePython && cfg.PythonPath != "" {
			desc.Executable = cfg.PythonPath
		}
		s.languages[name] = desc
	}

	if cfg.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	s.runner = NewRunner(s.isolator, cfg.KillGrace, cfg.MaxOutputBytes, logger, runnerOpts...)

	logger.Info("sandbox ready",
		slog.String("isolation", s.isolator.Name()),
		slog.Duration("deadline", cfg.Deadline),
		slog.String("work_root", s.workspaces.Root()),
		slog.String("cgroup_root", cfg.CgroupRoot),
		slog.Int("max_concurrent", cfg.MaxConcurrent),
	)
	return s, nil
}

// Isolation names the active isolator.
func (s *Sandbox) Isolation() string { return s.isolator.Name() }

// Deadline is the wall-clock budget of every execution.
func (s *Sandbox) Deadline() time.Duration { return s.cfg.Deadline }

// Execute runs req and classifies the result. See executor.Executor for the
// error contract.
func (s *Sandbox) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	execID := xid.New().String()
	logger := s.logger.With(
		slog.String("exec_id", execID),
		slog.String("language", req.Language),
	)

	desc, ok := s.languages[Language(req.Language)]
	if !ok {
		res := Unsupported(req.Language)
		s.observer.ExecutionStarted(req.Language)
		s.observer.ExecutionFinished(req.Language, res)
		logger.Info("language not supported")
		return res, nil
	}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())}
		}
	}

	s.observer.ExecutionStarted(req.Language)

	ws, err := s.workspaces.Acquire()
	if err != nil {
		s.observer.ExecutionFailed(req.Language, "acquire_workspace")
		logger.Error("workspace unavailable", slog.Any("error", err))
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_workspace", Err: err}
	}
	defer s.workspaces.Release(ws)

	if _, err := ws.WriteSource(desc.SourceFile, req.Code); err != nil {
		s.observer.ExecutionFailed(req.Language, "write_source")
		logger.Error("writing source failed", slog.Any("error", err))
		return nil, &ExecutionError{ExecID: execID, Op: "write_source", Err: err}
	}

	raw, err := s.runner.Execute(ctx, ws, desc, req.Stdin, s.cfg.Deadline)
	if err != nil {
		s.observer.ExecutionFailed(req.Language, "isolate")
		logger.Error("isolating child failed", slog.Any("error", err))
		return nil, &ExecutionError{ExecID: execID, Op: "isolate", Err: err}
	}
	if raw.Cancelled {
		s.observer.ExecutionFailed(req.Language, "cancelled")
		logger.Info("execution cancelled by caller", slog.Duration("elapsed", raw.Elapsed))
		return nil, &ExecutionError{ExecID: execID, Op: "run", Err: fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())}
	}
	if raw.SpawnFailed {
		logger.Error("interpreter could not be started",
			slog.String("executable", desc.Executable),
			slog.Any("error", raw.SpawnErr),
		)
	}

	res := Classify(raw, desc, s.cfg.Deadline)
	s.observer.ExecutionFinished(req.Language, res)

	logger.Info("execution finished",
		slog.String("status", string(res.Status)),
		slog.Int("exit_code", raw.ExitCode),
		slog.Duration("elapsed", raw.Elapsed),
		slog.Bool("truncated", raw.Truncated),
	)
	return res, nil
}
