package handler

import (
	"log/slog"
	"net/http"
)

// Pinger is satisfied by the sqlite DB.
type Pinger interface {
	Ping() error
}

// HealthHandler reports liveness and which isolation mode the sandbox is
// running with.
type HealthHandler struct {
	db        Pinger
	isolation string
	logger    *slog.Logger
}

func NewHealthHandler(db Pinger, isolation string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, isolation: isolation, logger: logger}
}

// HandleHealth
//
// HTTP: GET /healthz
// 200 {"status":"ok","isolation":"rlimit"}, or 503 when the database is
// unreachable.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			h.logger.Error("health check: database unreachable", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "unavailable",
				"isolation": h.isolation,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"isolation": h.isolation,
	})
}
