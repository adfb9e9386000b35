package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie the login handlers set.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow the
// claims stored here.
type contextKey struct{}

var claimsKey contextKey

var errNoToken = errors.New("auth: no token presented")

// RequireAuth rejects requests without a valid token with a JSON 401 and
// otherwise stores the claims in the request context.
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.RequireAuth(tokens))
//	    r.Get("/api/submissions", ...)
//	})
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(r, tokens)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches claims when a valid token is present and lets the
// request through anonymously otherwise. A bad token is treated the same as
// no token.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := claimsFromRequest(r, tokens); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims returns a copy of ctx carrying claims. Handler tests use it to
// fake an authenticated request.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns (nil, false) for anonymous requests.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil && c.Subject != ""
}

// UserIDFromContext returns ("", false) for anonymous requests.
//
//	userID, ok := auth.UserIDFromContext(r.Context())
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return c.Subject, true
}

// TokenFromRequest prefers the Authorization header over the cookie so API
// clients can override a stale browser session.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func claimsFromRequest(r *http.Request, tokens *TokenService) (*Claims, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, errNoToken
	}
	return tokens.Validate(token)
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	message := "authentication required"
	if errors.Is(err, ErrTokenExpired) {
		message = "token expired"
	} else if !errors.Is(err, errNoToken) {
		message = "invalid token"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
