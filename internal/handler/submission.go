package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/auth"
	"github.com/sakif/tracecode/internal/model"
	"github.com/sakif/tracecode/internal/repository"
	"github.com/sakif/tracecode/internal/service"
)

// SubmissionHandler serves the caller's own history. All routes sit behind
// auth.RequireAuth.
type SubmissionHandler struct {
	svc    *service.SubmissionService
	logger *slog.Logger
}

func NewSubmissionHandler(svc *service.SubmissionService, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

// ListResponse is one page of history.
type ListResponse struct {
	Submissions []model.Submission `json:"submissions"`
	Total       int                `json:"total"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
	HasMore     bool               `json:"hasMore"`
}

// HandleCreate saves a result the client already has, without running it.
//
// HTTP: POST /api/submissions   {"code", "language", "output", "status", "executionTime", ...}
// 201 with the stored submission.
func (h *SubmissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in service.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		h.logFault(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// HandleList
//
// HTTP: GET /api/submissions?limit=20&offset=0&language=python&status=error
func (h *SubmissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	page, eff, err := h.svc.List(r.Context(), userID, repository.SubmissionFilter{
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
		Language:    q.Get("language"),
		Status:      q.Get("status"),
	})
	if err != nil {
		h.logFault(err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Submissions: page.Submissions,
		Total:       page.Total,
		Limit:       eff.Limit,
		Offset:      eff.Offset,
		HasMore:     eff.Offset+len(page.Submissions) < page.Total,
	})
}

// HandleGet
//
// HTTP: GET /api/submissions/{id}
func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.logFault(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleDelete responds 204 with no body.
//
// HTTP: DELETE /api/submissions/{id}
func (h *SubmissionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.logFault(err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats
//
// HTTP: GET /api/submissions/stats
func (h *SubmissionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(r.Context(), userID)
	if err != nil {
		h.logFault(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *SubmissionHandler) logFault(err error) {
	if status, _ := errorStatus(err); status == http.StatusInternalServerError {
		h.logger.Error("submission request failed", slog.String("error", err.Error()))
	}
}

// requireUser writes a 401 and returns false for anonymous requests.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
	}
	return userID, ok
}

// intParam parses an optional non-negative integer query parameter.
func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
