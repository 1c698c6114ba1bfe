package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/userdir/internal/middleware"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/plugins/auth"
	"github.com/keyxmakerx/userdir/internal/plugins/users"
	"github.com/keyxmakerx/userdir/internal/templates/layouts"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. It registers the root
// routes directly and delegates to each plugin's route registration.
//
// This is the single place where all routes are aggregated. Which of them
// need authentication is decided by the filter's public-path allowlist,
// not by route groups.
func (a *App) RegisterRoutes() {
	e := a.Echo

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/users")
	})

	// Generic error page, linked from redirects that can't render inline.
	e.GET("/error", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, layouts.ErrorPage(http.StatusInternalServerError, "Something went wrong. Please try again."))
	})

	// Health check for container orchestrators.
	e.GET("/healthz", a.health)

	limiter := middleware.RateLimit(loginRateLimit, loginRateWindow)
	auth.RegisterRoutes(e, auth.NewHandler(a.authSvc, a.sessions), limiter)
	users.RegisterRoutes(e, users.NewHandler(a.userSvc))
	audit.RegisterRoutes(e, audit.NewHandler(a.auditSvc))
}

// health pings the database and Redis. Any failure reports 503 so the
// orchestrator can take the instance out of rotation.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	status := "ok"

	if err := a.DB.PingContext(ctx); err != nil {
		checks["database"] = "unreachable"
		status = "degraded"
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		status = "degraded"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
