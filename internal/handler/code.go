package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/auth"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/hints"
	"github.com/sakif/tracecode/internal/service"
)

// CodeHandler serves the /api/code endpoints.
type CodeHandler struct {
	svc    *service.ExecuteService
	logger *slog.Logger
}

func NewCodeHandler(svc *service.ExecuteService, logger *slog.Logger) *CodeHandler {
	return &CodeHandler{svc: svc, logger: logger}
}

// runAndSaveRequest is an ExecutionRequest plus the history options.
// "input" is accepted as an alias for "stdin".
type runAndSaveRequest struct {
	Code           string  `json:"code"`
	Language       string  `json:"language"`
	Stdin          string  `json:"stdin"`
	Input          *string `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	GetHints       *bool   `json:"getHints"` // default true
}

func (r runAndSaveRequest) execution() executor.ExecutionRequest {
	req := executor.ExecutionRequest{Code: r.Code, Language: r.Language, Stdin: r.Stdin}
	if req.Stdin == "" && r.Input != nil {
		req.Stdin = *r.Input
	}
	return req
}

func (r runAndSaveRequest) options() service.RunOptions {
	return service.RunOptions{
		ExpectedOutput: r.ExpectedOutput,
		WantHints:      r.GetHints == nil || *r.GetHints,
	}
}

// HandleRun executes code anonymously.
//
// HTTP: POST /api/code/run
func (h *CodeHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Run(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRunAndSave executes code and records it in the caller's history.
//
// HTTP: POST /api/code/run-and-save
// Auth: required
func (h *CodeHandler) HandleRunAndSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var req runAndSaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.RunAndSave(r.Context(), userID, req.execution(), req.options())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleDebug executes code and always attaches hints on failure. Saved
// only for authenticated callers.
//
// HTTP: POST /api/code/debug
// Auth: optional
func (h *CodeHandler) HandleDebug(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req runAndSaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Debug(r.Context(), userID, req.execution(), req.options())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleHints returns hints for an error the client already has.
//
// HTTP: POST /api/hints
func (h *CodeHandler) HandleHints(w http.ResponseWriter, r *http.Request) {
	var req hints.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Hints(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail logs internal faults before writing the mapped error. Client-caused
// errors are not logged above debug.
func (h *CodeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		h.logger.Debug("code request rejected", slog.String("error", err.Error()))
	} else {
		h.logger.Error("code execution failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, err)
}
