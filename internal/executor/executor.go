// Package executor defines the contract between the HTTP/service layers and
// whatever actually runs untrusted code.
//
// The only implementation today is internal/executor/sandbox, which runs the
// interpreter as a confined child process. Handlers and services depend on
// the Executor interface so they can be tested with a mock.
package executor

import (
	"context"
	"encoding/json"
	"math"
)

// Status is the closed set of outcome categories reported to callers.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusCompilationError Status = "compilation_error"
	StatusRuntimeError     Status = "runtime_error"
	StatusTimeout          Status = "timeout"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusCompilationError, StatusRuntimeError, StatusTimeout:
		return true
	}
	return false
}

// ExecutionRequest is one unit of untrusted work.
//
// Stdin may be empty, which means the program gets no input at all (its
// standard input is the null device, never a terminal).
type ExecutionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Stdin    string `json:"stdin"`
}

// UnmarshalJSON accepts "input" as an alias for "stdin" so older clients keep
// working.
func (r *ExecutionRequest) UnmarshalJSON(data []byte) error {
	type plain ExecutionRequest
	var aux struct {
		plain
		Input *string `json:"input"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ExecutionRequest(aux.plain)
	if r.Stdin == "" && aux.Input != nil {
		r.Stdin = *aux.Input
	}
	return nil
}

// ExecutionResult is the structured outcome of one execution.
//
// Success is true iff Status is StatusSuccess. SpawnFailed is never sent over
// the wire: it lets metrics and logs tell "interpreter missing" apart from a
// program that crashed, even though both report StatusRuntimeError.
type ExecutionResult struct {
	Success        bool    `json:"success"`
	Output         string  `json:"output"`
	Diagnostic     string  `json:"diagnostic"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Status         Status  `json:"status"`

	SpawnFailed bool `json:"-"`
	Truncated   bool `json:"truncated,omitempty"`
}

// Executor runs code in an isolated environment.
//
// A non-nil error means an internal fault (the workspace could not be
// created, the caller went away). Every failure of the submitted program
// itself is reported through ExecutionResult.Status with a nil error.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// RoundSeconds rounds a duration in seconds to millisecond precision, which is
// the precision reported to clients.
func RoundSeconds(s float64) float64 {
	return math.Round(s*1000) / 1000
}
