// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires the directory, audit and auth plugins together.
//
// Wiring is explicit and acyclic: the user repository is built first and
// handed to both the session provider and the authorization filter.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/config"
	"github.com/keyxmakerx/userdir/internal/middleware"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/plugins/auth"
	"github.com/keyxmakerx/userdir/internal/plugins/users"
	"github.com/keyxmakerx/userdir/internal/templates/layouts"
)

// Login endpoints accept this many attempts per client IP per window.
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the user directory connection pool.
	DB *sql.DB

	// Redis holds browser sessions.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	userRepo users.UserRepository
	userSvc  users.UserService
	auditSvc audit.AuditService
	authSvc  auth.AuthService
	sessions *auth.SessionAuthProvider
	filter   *auth.Filter
}

// New creates the App, builds every service and configures the Echo server
// with global middleware and error handling. It fails when the token
// service cannot be created, which only happens without a signing secret.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Resolve c.RealIP() through the configured reverse proxies. Rate
	// limiting and the audit log both key on it.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	if err := app.wire(); err != nil {
		return nil, err
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	// Serve static files (CSS).
	e.Static("/static", "static")

	return app, nil
}

// wire constructs the plugin services in dependency order.
func (a *App) wire() error {
	tokens, err := auth.NewTokenService(a.Config.Auth.JWTSecret, a.Config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	creds := auth.NewCredentialStore(a.Config.Auth.BcryptCost, a.Config.Auth.HashWorkers)

	a.auditSvc = audit.NewAuditService(audit.NewAuditRepository(a.DB))

	a.userRepo = users.NewUserRepository(a.DB)
	a.userSvc = users.NewUserService(a.userRepo, creds, a.auditSvc,
		users.WithImportDefaultPassword(a.Config.Import.DefaultPassword),
	)

	a.sessions = auth.NewSessionAuthProvider(auth.SessionConfig{
		Redis:         a.Redis,
		Directory:     a.userRepo,
		Credentials:   creds,
		Audit:         a.auditSvc,
		IdleTTL:       a.Config.Auth.SessionTTL,
		LookupTimeout: a.Config.Auth.DirectoryTimeout,
	})
	a.authSvc = auth.NewAuthService(a.userRepo, creds, tokens, a.auditSvc)

	a.filter = auth.NewFilter(auth.FilterConfig{
		Classifier:    auth.NewPathClassifier(a.Config.Auth.PublicPaths),
		Tokens:        tokens,
		Directory:     a.userRepo,
		Sessions:      a.sessions,
		LookupTimeout: a.Config.Auth.DirectoryTimeout,
	})
	return nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first. The authorization filter
// runs after CSRF and before anything that reads the principal.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- API clients on other origins. Preflights are answered here.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))

	// CSRF -- double-submit cookie on state-changing web requests.
	a.Echo.Use(middleware.CSRF())

	// Authorization -- public passthrough, bearer tokens or sessions.
	a.Echo.Use(a.filter.Middleware())

	// Audit actor -- who is acting, from which IP.
	a.Echo.Use(audit.ActorMiddleware(auth.UserIDFromContext))

	// Layout data -- user, CSRF token and flash for page templates.
	a.Echo.Use(layoutData())
}

// errorHandler is the custom Echo error handler. API requests always get
// the JSON error body; browser requests get an error page, or the login
// page for 401s.
//
// For HTMX partial requests that hit errors, we set HX-Retarget and
// HX-Reswap headers so the error page replaces the full body instead of
// being swapped into a partial target.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	appErr := toAppError(err)
	if appErr.Internal != nil || appErr.Code >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("type", appErr.Type),
			slog.String("message", appErr.Message),
			slog.Any("internal", appErr.Internal),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if middleware.IsAPIRequest(c) {
		_ = c.JSON(appErr.Code, apperror.NewBody(appErr, time.Now()))
		return
	}

	if appErr.Code == http.StatusUnauthorized {
		middleware.SetFlash(c, middleware.FlashError, "Please log in to continue.")
		_ = middleware.Redirect(c, "/login")
		return
	}

	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	_ = middleware.Render(c, appErr.Code, layouts.ErrorPage(appErr.Code, appErr.Message))
}

// toAppError normalizes any handler error into an AppError. Echo's own
// HTTP errors (router 404s, CSRF 403s, rate limit 429s) keep their code.
func toAppError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		message, ok := echoErr.Message.(string)
		if !ok {
			message = defaultErrorMessage(echoErr.Code)
		}
		return &apperror.AppError{Code: echoErr.Code, Type: "http_error", Message: message}
	}

	return apperror.NewInternal(err)
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to log in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusRequestEntityTooLarge:
		return "The uploaded file is too large."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// SeedAdmin creates the configured bootstrap account unless its email is
// already taken. It is a no-op when no seed account is configured.
func (a *App) SeedAdmin(ctx context.Context) error {
	seed := a.Config.Seed
	if !seed.Enabled() {
		return nil
	}

	exists, err := a.userRepo.EmailExists(ctx, seed.Email)
	if err != nil {
		return fmt.Errorf("checking seed account: %w", err)
	}
	if exists {
		slog.Debug("seed account already present", slog.String("email", seed.Email))
		return nil
	}

	user, err := a.userSvc.Create(ctx, users.CreateInput{
		Name:     seed.Name,
		Email:    seed.Email,
		Password: seed.Password,
	})
	if err != nil {
		return fmt.Errorf("creating seed account: %w", err)
	}

	slog.Info("seed account created", slog.String("user_id", user.ID), slog.String("email", user.Email))
	return nil
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting user directory server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
