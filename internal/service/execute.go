// Package service holds the business rules between the HTTP handlers and
// the repositories:
//
//	Handler (HTTP) → Service (validation, orchestration) → Repository (DB)
//	                       ↘ executor.Executor (sandbox)
//
// Services take and return plain Go values and apperror kinds, never HTTP
// types, so the same logic backs the API and the CLI.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/hints"
	"github.com/sakif/tracecode/internal/model"
	"github.com/sakif/tracecode/internal/repository"
)

// Validation constants.
const (
	MaxCodeLength   = 100000 // ~100KB of source
	MaxStdinLength  = 100000
	DefaultLanguage = "python"
)

// HintGenerator explains a failed run. Implementations may be slow or
// remote; errors are logged and never fail the request.
type HintGenerator interface {
	Generate(ctx context.Context, req hints.Request) (*hints.Result, error)
}

// SubmissionRecorder is told about every persisted submission.
type SubmissionRecorder interface {
	SubmissionCreated()
}

// RunOptions are the extras accepted by RunAndSave and Debug.
type RunOptions struct {
	ExpectedOutput string
	WantHints      bool
}

// RunResult is an execution result plus whatever was persisted or
// generated for it.
type RunResult struct {
	*executor.ExecutionResult
	SubmissionID string   `json:"submissionId,omitempty"`
	ErrorType    string   `json:"errorType,omitempty"`
	Hints        []string `json:"hints,omitempty"`
	RootCause    string   `json:"rootCause,omitempty"`
}

// ExecuteService validates requests, runs them and optionally records them
// in the submission history.
type ExecuteService struct {
	exec     executor.Executor
	subs     repository.SubmissionRepository
	hints    HintGenerator
	recorder SubmissionRecorder
	logger   *slog.Logger
}

// ExecuteOption configures optional collaborators.
type ExecuteOption func(*ExecuteService)

// WithHintGenerator enables hints for failed runs.
func WithHintGenerator(g HintGenerator) ExecuteOption {
	return func(s *ExecuteService) { s.hints = g }
}

func WithSubmissionRecorder(r SubmissionRecorder) ExecuteOption {
	return func(s *ExecuteService) { s.recorder = r }
}

func NewExecuteService(
	exec executor.Executor,
	subs repository.SubmissionRepository,
	logger *slog.Logger,
	opts ...ExecuteOption,
) *ExecuteService {
	s := &ExecuteService{
		exec:   exec,
		subs:   subs,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes req without touching the history.
//
// A returned error is either a validation failure (apperror.ErrValidation)
// or an internal sandbox fault. Everything the submitted program does wrong
// is reported through the result status.
func (s *ExecuteService) Run(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, req)
}

func (s *ExecuteService) execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	result, err := s.exec.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("service/execute: running %s code: %w", req.Language, err)
	}
	return result, nil
}

// RunAndSave runs req for an authenticated user and stores the outcome.
func (s *ExecuteService) RunAndSave(ctx context.Context, userID string, req executor.ExecutionRequest, opts RunOptions) (*RunResult, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.runWithHistory(ctx, userID, req, opts)
}

// Debug always asks for hints on failure. userID may be empty, in which
// case nothing is persisted.
func (s *ExecuteService) Debug(ctx context.Context, userID string, req executor.ExecutionRequest, opts RunOptions) (*RunResult, error) {
	opts.WantHints = true
	return s.runWithHistory(ctx, userID, req, opts)
}

// Hints runs the hint generator directly on a caller-supplied error. Used
// when the client already has a result and only wants guidance.
func (s *ExecuteService) Hints(ctx context.Context, req hints.Request) (*hints.Result, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if s.hints == nil {
		return nil, apperror.NotFound("hint generator", "default")
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	res, err := s.hints.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("service/execute: generating hints: %w", err)
	}
	return res, nil
}

func (s *ExecuteService) runWithHistory(ctx context.Context, userID string, req executor.ExecutionRequest, opts RunOptions) (*RunResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	result, err := s.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &RunResult{ExecutionResult: result}

	if !result.Success && opts.WantHints {
		s.attachHints(ctx, out, req, opts.ExpectedOutput)
	}

	if userID == "" {
		return out, nil
	}

	sub := &model.Submission{
		UserID:        userID,
		Code:          req.Code,
		Language:      req.Language,
		Stdin:         req.Stdin,
		Output:        result.Output,
		Diagnostic:    result.Diagnostic,
		Status:        string(result.Status),
		ExecutionTime: result.ElapsedSeconds,
		ErrorType:     out.ErrorType,
		Hints:         out.Hints,
		RootCause:     out.RootCause,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("service/execute: saving submission: %w", err)
	}
	if s.recorder != nil {
		s.recorder.SubmissionCreated()
	}

	s.logger.Info("submission saved",
		slog.String("submissionID", sub.ID),
		slog.String("userID", userID),
		slog.String("status", sub.Status),
	)

	out.SubmissionID = sub.ID
	return out, nil
}

func (s *ExecuteService) attachHints(ctx context.Context, out *RunResult, req executor.ExecutionRequest, expected string) {
	if s.hints == nil {
		return
	}

	// the diagnostic is the more useful signal; fall back to stdout for
	// programs that print their own errors
	errText := out.Diagnostic
	if errText == "" {
		errText = out.Output
	}

	h, err := s.hints.Generate(ctx, hints.Request{
		Code:           req.Code,
		Language:       req.Language,
		Error:          errText,
		ExpectedOutput: expected,
	})
	if err != nil {
		s.logger.Warn("hint generation failed", slog.String("error", err.Error()))
		return
	}
	out.ErrorType = h.ErrorType
	out.Hints = h.Hints
	out.RootCause = h.RootCause
}

func normalizeRequest(req executor.ExecutionRequest) (executor.ExecutionRequest, error) {
	if strings.TrimSpace(req.Code) == "" {
		return req, apperror.ValidationFailed("code", "code is required")
	}
	if len(req.Code) > MaxCodeLength {
		return req, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or fewer", MaxCodeLength))
	}
	if len(req.Stdin) > MaxStdinLength {
		return req, apperror.ValidationFailed("stdin",
			fmt.Sprintf("stdin must be %d bytes or fewer", MaxStdinLength))
	}
	req.Language = strings.TrimSpace(req.Language)
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	return req, nil
}
