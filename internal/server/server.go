// Package server is the composition root: it opens the database, builds
// the sandbox and services, and mounts every route on one chi router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/tracecode/internal/auth"
	"github.com/sakif/tracecode/internal/config"
	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/executor/sandbox"
	"github.com/sakif/tracecode/internal/handler"
	"github.com/sakif/tracecode/internal/hints"
	"github.com/sakif/tracecode/internal/metrics"
	"github.com/sakif/tracecode/internal/middleware"
	sqliteRepo "github.com/sakif/tracecode/internal/repository/sqlite"
	"github.com/sakif/tracecode/internal/service"
)

// janitorInterval is how often idle rate-limit buckets are swept.
const janitorInterval = time.Minute

// Server owns the database connection; Run closes it on the way out.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter
	metrics *metrics.Metrics
}

type Option func(*options)

type options struct {
	exec executor.Executor
}

// WithExecutor replaces the sandbox. Tests use it to avoid spawning
// interpreters.
func WithExecutor(e executor.Executor) Option {
	return func(o *options) { o.exec = e }
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	m := metrics.New()

	isolation := "custom"
	exec := o.exec
	if exec == nil {
		sb, err := sandbox.New(cfg.Sandbox, logger, sandbox.WithObserver(m))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating sandbox: %w", err)
		}
		exec = sb
		isolation = sb.Isolation()
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: chi.NewRouter(),
		db:     db,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst,
			middleware.WithRejectRecorder(m),
			middleware.WithIdleTimeout(cfg.RateLimit.IdleTTL)),
		metrics: m,
	}
	s.routes(exec, tokens, isolation)
	return s, nil
}

func (s *Server) routes(exec executor.Executor, tokens *auth.TokenService, isolation string) {
	logger := s.logger

	var github *auth.GitHubProvider
	if gh := s.cfg.Auth.GitHub; gh.Enabled() {
		github = auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.CallbackURL)
	} else {
		logger.Info("GitHub login disabled: auth.github.client_id not set")
	}

	execSvc := service.NewExecuteService(exec, s.db, logger,
		service.WithHintGenerator(hints.NewKeywordGenerator()),
		service.WithSubmissionRecorder(s.metrics),
	)
	subSvc := service.NewSubmissionService(s.db, logger, service.WithCreateRecorder(s.metrics))
	authSvc := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), logger)

	code := handler.NewCodeHandler(execSvc, logger)
	subs := handler.NewSubmissionHandler(subSvc, logger)
	authH := handler.NewAuthHandler(authSvc, github, handler.CookieConfig{
		Secure:      s.cfg.Auth.CookieSecure,
		TTL:         s.cfg.Auth.TokenTTL,
		RedirectURL: s.cfg.Auth.RedirectURL,
	}, logger)
	health := handler.NewHealthHandler(s.db, isolation, logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.cfg.Server.AllowedOrigins))

	r.Get("/healthz", health.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/code", func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/run", code.HandleRun)
			r.With(auth.OptionalAuth(tokens)).Post("/debug", code.HandleDebug)
			r.With(auth.RequireAuth(tokens)).Post("/run-and-save", code.HandleRunAndSave)
		})
		r.Post("/hints", code.HandleHints)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.HandleRegister)
			r.Post("/login", authH.HandleLogin)
			r.Post("/logout", authH.HandleLogout)
			r.Get("/github", authH.HandleGitHubLogin)
			r.Get("/github/callback", authH.HandleGitHubCallback)
			r.With(auth.RequireAuth(tokens)).Get("/me", authH.HandleMe)
			r.With(auth.RequireAuth(tokens)).Post("/refresh", authH.HandleRefresh)
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/", subs.HandleCreate)
			r.Get("/", subs.HandleList)
			r.Get("/stats", subs.HandleStats)
			r.Get("/{id}", subs.HandleGet)
			r.Delete("/{id}", subs.HandleDelete)
		})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database. Run calls it itself.
func (s *Server) Close() error { return s.db.Close() }

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to server.shutdown_timeout. A running execution is not cut short by the
// drain: the write timeout already exceeds the sandbox deadline.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go s.limiter.Run(janitorCtx, janitorInterval)

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.cfg.Server.Addr),
			slog.String("database", s.cfg.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
