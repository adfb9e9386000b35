package handler_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/tracecode/internal/handler"
)

type pinger struct{ err error }

func (p pinger) Ping() error { return p.err }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		db         handler.Pinger
		wantCode   int
		wantStatus string
	}{
		{"healthy", pinger{}, http.StatusOK, `"status":"ok"`},
		{"no database", nil, http.StatusOK, `"status":"ok"`},
		{"database down", pinger{err: errors.New("disk I/O error")}, http.StatusServiceUnavailable, `"status":"unavailable"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.db, "rlimit", logger)
			rr := httptest.NewRecorder()
			h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantStatus)
			assert.Contains(t, rr.Body.String(), `"isolation":"rlimit"`)
		})
	}
}
