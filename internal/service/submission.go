package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/model"
	"github.com/sakif/tracecode/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// SubmissionService exposes a user's own history. Every method is scoped
// to the caller's user ID.
type SubmissionService struct {
	repo     repository.SubmissionRepository
	recorder SubmissionRecorder
	logger   *slog.Logger
}

type SubmissionOption func(*SubmissionService)

// WithCreateRecorder counts submissions saved through Create.
func WithCreateRecorder(r SubmissionRecorder) SubmissionOption {
	return func(s *SubmissionService) { s.recorder = r }
}

func NewSubmissionService(repo repository.SubmissionRepository, logger *slog.Logger, opts ...SubmissionOption) *SubmissionService {
	s := &SubmissionService{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is a run the client already performed and wants kept.
type CreateInput struct {
	Code          string   `json:"code"`
	Language      string   `json:"language"`
	Stdin         string   `json:"stdin"`
	Output        string   `json:"output"`
	Diagnostic    string   `json:"diagnostic"`
	Status        string   `json:"status"`
	ExecutionTime float64  `json:"executionTime"`
	ErrorType     string   `json:"errorType"`
	Hints         []string `json:"hints"`
	RootCause     string   `json:"rootCause"`
}

// Create stores a result without executing anything. Status must be one of
// the four sandbox statuses; the legacy "error" is stored as runtime_error.
func (s *SubmissionService) Create(ctx context.Context, userID string, in CreateInput) (*model.Submission, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if len(in.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or fewer", MaxCodeLength))
	}
	if len(in.Stdin) > MaxStdinLength {
		return nil, apperror.ValidationFailed("stdin",
			fmt.Sprintf("stdin must be %d bytes or fewer", MaxStdinLength))
	}
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == repository.StatusFilterError {
		status = string(executor.StatusRuntimeError)
	}
	if !executor.Status(status).Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", in.Status))
	}
	if in.ExecutionTime < 0 {
		return nil, apperror.ValidationFailed("executionTime", "executionTime must not be negative")
	}
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = DefaultLanguage
	}

	sub := &model.Submission{
		UserID:        userID,
		Code:          in.Code,
		Language:      language,
		Stdin:         in.Stdin,
		Output:        in.Output,
		Diagnostic:    in.Diagnostic,
		Status:        status,
		ExecutionTime: in.ExecutionTime,
		ErrorType:     in.ErrorType,
		Hints:         in.Hints,
		RootCause:     in.RootCause,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("service/submission: creating for %s: %w", userID, err)
	}
	if s.recorder != nil {
		s.recorder.SubmissionCreated()
	}

	s.logger.Info("submission saved",
		slog.String("submissionID", sub.ID),
		slog.String("userID", userID),
		slog.String("status", sub.Status),
	)
	return sub, nil
}

// List clamps the page to [1, MaxListLimit] (zero means DefaultListLimit)
// and rejects unknown status filters. The clamped filter is returned so the
// handler can echo the effective limit and offset.
func (s *SubmissionService) List(ctx context.Context, userID string, filter repository.SubmissionFilter) (*repository.SubmissionPage, repository.SubmissionFilter, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	filter.Language = strings.TrimSpace(filter.Language)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if !validStatusFilter(filter.Status) {
		return nil, filter, apperror.ValidationFailed("status",
			fmt.Sprintf("unknown status %q", filter.Status))
	}

	page, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, filter, fmt.Errorf("service/submission: listing for %s: %w", userID, err)
	}
	return page, filter, nil
}

// Get returns ErrForbidden for submissions owned by another user.
func (s *SubmissionService) Get(ctx context.Context, id, userID string) (*model.Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, apperror.Forbidden("you do not have access to this submission")
	}
	return sub, nil
}

func (s *SubmissionService) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return err
	}
	s.logger.Info("submission deleted",
		slog.String("submissionID", id),
		slog.String("userID", userID),
	)
	return nil
}

func (s *SubmissionService) Stats(ctx context.Context, userID string) (*model.SubmissionStats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/submission: stats for %s: %w", userID, err)
	}
	return stats, nil
}

func validStatusFilter(status string) bool {
	switch status {
	case "", repository.StatusFilterSuccess, repository.StatusFilterError:
		return true
	}
	return executor.Status(status).Valid()
}
