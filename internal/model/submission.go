package model

import "time"

// Submission is one persisted code run, owned by a single user.
//
// Status holds the full sandbox status (success, runtime_error, ...), not
// just pass/fail, so history can be filtered by failure kind. ErrorType,
// Hints and RootCause are filled only when a hint generator produced them.
type Submission struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Code          string    `json:"code"`
	Language      string    `json:"language"`
	Stdin         string    `json:"stdin,omitempty"`
	Output        string    `json:"output"`
	Diagnostic    string    `json:"diagnostic"`
	Status        string    `json:"status"`
	ExecutionTime float64   `json:"executionTime"` // seconds
	ErrorType     string    `json:"errorType,omitempty"`
	Hints         []string  `json:"hints"`
	RootCause     string    `json:"rootCause,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Succeeded reports whether the run ended in a success status.
func (s *Submission) Succeeded() bool {
	return s.Status == "success"
}

// SubmissionStats summarises one user's history.
type SubmissionStats struct {
	TotalSubmissions int            `json:"totalSubmissions"`
	SuccessCount     int            `json:"successCount"`
	ErrorCount       int            `json:"errorCount"`
	SuccessRate      float64        `json:"successRate"` // percent, 2 decimals
	Languages        map[string]int `json:"languages"`
	ErrorTypes       map[string]int `json:"errorTypes"`
	AvgExecutionTime float64        `json:"avgExecutionTime"` // seconds, 3 decimals
}
