// Package repository declares the storage contracts. Services depend on these
// interfaces; internal/repository/sqlite provides the implementation.
package repository

import (
	"context"

	"github.com/sakif/tracecode/internal/model"
)

// Status filter aliases accepted in addition to an exact stored status.
const (
	StatusFilterSuccess = "success"
	StatusFilterError   = "error" // anything that is not a success
)

// ListOptions pages a result set.
type ListOptions struct {
	Limit  int
	Offset int
}

// SubmissionFilter narrows a user's submission history. Empty fields match
// everything.
type SubmissionFilter struct {
	ListOptions
	Language string
	Status   string
}

// SubmissionPage is one page of results plus the size of the whole filtered
// set.
type SubmissionPage struct {
	Submissions []model.Submission
	Total       int
}

type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	// List returns the user's submissions newest first.
	List(ctx context.Context, userID string, filter SubmissionFilter) (*SubmissionPage, error)
	// Delete removes the submission only when userID owns it.
	Delete(ctx context.Context, id, userID string) error
	Stats(ctx context.Context, userID string) (*model.SubmissionStats, error)
}

// UserRepository method names carry a User suffix so one type can implement
// both interfaces.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHubUser creates the user or refreshes the GitHub profile
	// fields of the existing one, matched by GitHub ID.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
}
