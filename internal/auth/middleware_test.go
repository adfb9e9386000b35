package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoUser writes the authenticated user ID, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := UserIDFromContext(r.Context()); ok {
		_, _ = w.Write([]byte(id))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
})

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	valid, err := ts.Generate(testUser("u1"))
	require.NoError(t, err)
	expired, err := ts.GenerateWithDuration(testUser("u1"), -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name        string
		prepare     func(r *http.Request)
		wantStatus  int
		wantBody    string
		wantMessage string
	}{
		{
			name:       "bearer header",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantStatus: http.StatusOK,
			wantBody:   "u1",
		},
		{
			name:       "lowercase scheme",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "bearer "+valid) },
			wantStatus: http.StatusOK,
			wantBody:   "u1",
		},
		{
			name:       "cookie",
			prepare:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: valid}) },
			wantStatus: http.StatusOK,
			wantBody:   "u1",
		},
		{
			name:        "missing",
			prepare:     func(r *http.Request) {},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authentication required",
		},
		{
			name:        "expired",
			prepare:     func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "token expired",
		},
		{
			name:        "garbage",
			prepare:     func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			RequireAuth(ts)(echoUser).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				return
			}
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"])
			assert.Equal(t, tt.wantMessage, body["message"])
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	valid, err := ts.Generate(testUser("u2"))
	require.NoError(t, err)

	t.Run("anonymous passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		OptionalAuth(ts)(echoUser).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("bad token is anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer junk")
		rec := httptest.NewRecorder()
		OptionalAuth(ts)(echoUser).ServeHTTP(rec, req)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("valid token is attached", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		rec := httptest.NewRecorder()
		OptionalAuth(ts)(echoUser).ServeHTTP(rec, req)
		assert.Equal(t, "u2", rec.Body.String())
	})
}

func TestTokenFromRequest_HeaderWinsOverCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-header", TokenFromRequest(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "from-cookie", TokenFromRequest(req), "non-bearer schemes fall back to the cookie")
}

func TestClaimsFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := ClaimsFromContext(req.Context())
	assert.False(t, ok)

	ctx := WithClaims(req.Context(), &Claims{})
	_, ok = UserIDFromContext(ctx)
	assert.False(t, ok, "claims without a subject are anonymous")
}
