package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/hints"
	"github.com/sakif/tracecode/internal/model"
	"github.com/sakif/tracecode/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	byEmail map[string]*model.User
	byGHID  map[int64]*model.User
	nextID  int

	// non-nil to simulate a database failure
	createErr  error
	upsertErr  error
	getByIDErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
		byGHID:  make(map[int64]*model.User),
		nextID:  1,
	}
}

func (f *fakeUserRepo) insert(user *model.User) {
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	if user.Email != "" {
		f.byEmail[user.Email] = &copied
	}
	if user.GitHubID != 0 {
		f.byGHID[user.GitHubID] = &copied
	}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, taken := f.byEmail[user.Email]; taken && user.Email != "" {
		return apperror.Conflict("user", user.Email)
	}
	f.insert(user)
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGHID[user.GitHubID]; ok {
		existing.Login = user.Login
		existing.AvatarURL = user.AvatarURL
		if existing.Email == "" {
			existing.Email = user.Email
		}
		*user = *existing
		return nil
	}
	if user.Name == "" {
		user.Name = user.Login
	}
	f.insert(user)
	return nil
}

// fakeSubmissionRepo is an in-memory repository.SubmissionRepository.
type fakeSubmissionRepo struct {
	mu      sync.Mutex
	subs    []*model.Submission
	nextID  int
	lastFil repository.SubmissionFilter

	createErr error
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{nextID: 1}
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	sub.ID = fmt.Sprintf("sub-%d", f.nextID)
	f.nextID++
	sub.CreatedAt = time.Now()
	copied := *sub
	f.subs = append(f.subs, &copied)
	return nil
}

func (f *fakeSubmissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("submission", id)
}

func (f *fakeSubmissionRepo) List(ctx context.Context, userID string, filter repository.SubmissionFilter) (*repository.SubmissionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFil = filter

	page := &repository.SubmissionPage{Submissions: []model.Submission{}}
	for i := len(f.subs) - 1; i >= 0; i-- {
		s := f.subs[i]
		if s.UserID != userID {
			continue
		}
		page.Total++
		if page.Total <= filter.Offset || len(page.Submissions) >= filter.Limit {
			continue
		}
		page.Submissions = append(page.Submissions, *s)
	}
	return page, nil
}

func (f *fakeSubmissionRepo) Delete(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.ID != id {
			continue
		}
		if s.UserID != userID {
			return apperror.Forbidden("you do not have access to this submission")
		}
		f.subs = append(f.subs[:i], f.subs[i+1:]...)
		return nil
	}
	return apperror.NotFound("submission", id)
}

func (f *fakeSubmissionRepo) Stats(ctx context.Context, userID string) (*model.SubmissionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &model.SubmissionStats{Languages: map[string]int{}, ErrorTypes: map[string]int{}}
	for _, s := range f.subs {
		if s.UserID != userID {
			continue
		}
		stats.TotalSubmissions++
		stats.Languages[s.Language]++
		if s.Succeeded() {
			stats.SuccessCount++
		}
	}
	stats.ErrorCount = stats.TotalSubmissions - stats.SuccessCount
	return stats, nil
}

func (f *fakeSubmissionRepo) all() []*model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*model.Submission(nil), f.subs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// mockExecutor returns a canned result and remembers the last request.
type mockExecutor struct {
	mu     sync.Mutex
	result *executor.ExecutionResult
	err    error
	last   executor.ExecutionRequest
	calls  int
}

func (m *mockExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = req
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	copied := *m.result
	return &copied, nil
}

func successResult() *executor.ExecutionResult {
	return &executor.ExecutionResult{
		Success:        true,
		Output:         "hello\n",
		Diagnostic:     "Execution successful",
		ElapsedSeconds: 0.021,
		Status:         executor.StatusSuccess,
	}
}

func runtimeErrorResult() *executor.ExecutionResult {
	return &executor.ExecutionResult{
		Output:         "",
		Diagnostic:     "ZeroDivisionError: division by zero",
		ElapsedSeconds: 0.03,
		Status:         executor.StatusRuntimeError,
	}
}

// stubHints records requests and returns a fixed result or error.
type stubHints struct {
	mu   sync.Mutex
	last hints.Request
	n    int
	err  error
}

func (s *stubHints) Generate(ctx context.Context, req hints.Request) (*hints.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	s.n++
	if s.err != nil {
		return nil, s.err
	}
	return &hints.Result{
		ErrorType: hints.TypeRuntime,
		Hints:     []string{"look at the divisor"},
		RootCause: "division by zero",
	}, nil
}

type countingRecorder struct {
	mu sync.Mutex
	n  int
}

func (c *countingRecorder) SubmissionCreated() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}
