package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tracecode/internal/apperror"
	"github.com/sakif/tracecode/internal/auth"
	"github.com/sakif/tracecode/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler serves registration, login, the GitHub OAuth flow and
// session inspection.
type AuthHandler struct {
	svc    *service.AuthService
	github *auth.GitHubProvider // nil when GitHub login is not configured
	cookie CookieConfig
	logger *slog.Logger
}

// CookieConfig controls the session cookie and where the OAuth callback
// sends the browser afterwards.
type CookieConfig struct {
	Secure      bool
	TTL         time.Duration
	RedirectURL string
}

func NewAuthHandler(
	svc *service.AuthService,
	github *auth.GitHubProvider,
	cookie CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	if cookie.RedirectURL == "" {
		cookie.RedirectURL = "/"
	}
	if cookie.TTL <= 0 {
		cookie.TTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{svc: svc, github: github, cookie: cookie, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister
//
// HTTP: POST /api/auth/register   {"email", "password", "name"}
// 201 with {"user", "token"}; 409 when the email is taken.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.logFault("register", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, result)
}

// HandleLogin
//
// HTTP: POST /api/auth/login   {"email", "password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFault("login", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result)
}

// HandleGitHubLogin redirects to GitHub's authorization page.
//
// HTTP: GET /api/auth/github
//
// The random state goes into a short-lived HttpOnly cookie; the callback
// only proceeds if GitHub hands the same value back.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("auth provider", "github"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow:
//
//  1. check the state against the cookie
//  2. exchange the code for a GitHub profile
//  3. find or create the user
//  4. set the token cookie and redirect into the app
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("auth provider", "github"))
		return
	}

	q := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: invalid OAuth state")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.cookie.RedirectURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	result, err := h.svc.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	http.Redirect(w, r, h.cookie.RedirectURL, http.StatusSeeOther)
}

// HandleLogout deletes the cookie. The JWT itself stays valid until it
// expires.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe
//
// HTTP: GET /api/auth/me
// Auth: required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logFault("me", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleRefresh swaps a still-valid token for a fresh one and resets the
// cookie.
//
// HTTP: POST /api/auth/refresh
// Auth: required
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Refresh(r.Context(), userID)
	if err != nil {
		h.logFault("refresh", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) logFault(op string, err error) {
	if status, _ := errorStatus(err); status == http.StatusInternalServerError {
		h.logger.Error("auth request failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}
