package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/model"
	"github.com/sakif/tracecode/internal/repository"
)

var _ repository.SubmissionRepository = (*DB)(nil)

const submissionColumns = `id, user_id, code, language, stdin, output, diagnostic, status,
	execution_time, error_type, hints, root_cause, created_at`

// Create inserts sub, assigning its ID and CreatedAt.
func (db *DB) Create(ctx context.Context, sub *model.Submission) error {
	sub.ID = xid.New().String()
	sub.CreatedAt = time.Now().UTC()
	if sub.Hints == nil {
		sub.Hints = []string{}
	}

	hints, err := json.Marshal(sub.Hints)
	if err != nil {
		return fmt.Errorf("sqlite: encoding hints: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.Code,
		sub.Language,
		sub.Stdin,
		sub.Output,
		sub.Diagnostic,
		sub.Status,
		sub.ExecutionTime,
		sub.ErrorType,
		string(hints),
		sub.RootCause,
		sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting submission: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := scanSubmission(db.conn.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("submission", id)
		}
		return nil, fmt.Errorf("sqlite: getting submission %s: %w", id, err)
	}
	return sub, nil
}

// List applies the filter then pages the result, newest first. rowid breaks
// ties between rows created in the same instant.
func (db *DB) List(ctx context.Context, userID string, filter repository.SubmissionFilter) (*repository.SubmissionPage, error) {
	where, args := submissionWhere(userID, filter)

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: counting submissions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE `+where+`
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing submissions: %w", err)
	}
	defer rows.Close()

	page := &repository.SubmissionPage{Submissions: []model.Submission{}, Total: total}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning submission: %w", err)
		}
		page.Submissions = append(page.Submissions, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating submissions: %w", err)
	}
	return page, nil
}

func submissionWhere(userID string, filter repository.SubmissionFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}

	if filter.Language != "" {
		clauses = append(clauses, "language = ?")
		args = append(args, filter.Language)
	}
	switch filter.Status {
	case "":
	case repository.StatusFilterError:
		clauses = append(clauses, "status != 'success'")
	default:
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	return strings.Join(clauses, " AND "), args
}

// Delete removes the submission if userID owns it. Missing rows are
// ErrNotFound, rows owned by someone else are ErrForbidden.
func (db *DB) Delete(ctx context.Context, id, userID string) error {
	var owner string
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id FROM submissions WHERE id = ?`, id,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("submission", id)
		}
		return fmt.Errorf("sqlite: looking up submission %s: %w", id, err)
	}
	if owner != userID {
		return apperror.Forbidden("you do not have access to this submission")
	}

	// user_id in the WHERE clause as well, in case ownership changed
	// between the two statements
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM submissions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting submission %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("submission", id)
	}
	return nil
}

// Stats aggregates the user's whole history. Failed runs without a hint
// classification are counted under their sandbox status in ErrorTypes.
func (db *DB) Stats(ctx context.Context, userID string) (*model.SubmissionStats, error) {
	stats := &model.SubmissionStats{
		Languages:  map[string]int{},
		ErrorTypes: map[string]int{},
	}

	var avg float64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(execution_time), 0)
		 FROM submissions WHERE user_id = ?`, userID,
	).Scan(&stats.TotalSubmissions, &stats.SuccessCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating submissions: %w", err)
	}
	stats.ErrorCount = stats.TotalSubmissions - stats.SuccessCount
	if stats.TotalSubmissions > 0 {
		rate := float64(stats.SuccessCount) / float64(stats.TotalSubmissions) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	stats.AvgExecutionTime = math.Round(avg*1000) / 1000

	if err := db.countInto(ctx, stats.Languages,
		`SELECT language, COUNT(*) FROM submissions WHERE user_id = ? GROUP BY language`, userID); err != nil {
		return nil, fmt.Errorf("sqlite: counting languages: %w", err)
	}
	if err := db.countInto(ctx, stats.ErrorTypes,
		`SELECT CASE WHEN error_type != '' THEN error_type ELSE status END AS kind, COUNT(*)
		 FROM submissions WHERE user_id = ? AND status != 'success' GROUP BY kind`, userID); err != nil {
		return nil, fmt.Errorf("sqlite: counting error types: %w", err)
	}

	return stats, nil
}

func (db *DB) countInto(ctx context.Context, dst map[string]int, query string, args ...any) error {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dst[key] = count
	}
	return rows.Err()
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var (
		s     model.Submission
		hints string
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Code,
		&s.Language,
		&s.Stdin,
		&s.Output,
		&s.Diagnostic,
		&s.Status,
		&s.ExecutionTime,
		&s.ErrorType,
		&hints,
		&s.RootCause,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Hints = []string{}
	if hints != "" {
		if err := json.Unmarshal([]byte(hints), &s.Hints); err != nil {
			return nil, fmt.Errorf("decoding hints: %w", err)
		}
	}
	return &s, nil
}
