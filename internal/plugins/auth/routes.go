package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the authentication routes. limiter throttles the
// credential-accepting POSTs per client IP.
func RegisterRoutes(e *echo.Echo, h *Handler, limiter echo.MiddlewareFunc) {
	// Public API -- classified public by the filter's allowlist.
	e.POST("/api/auth/login", h.APILogin, limiter)
	e.POST("/api/auth/register", h.APIRegister, limiter)

	// Protected API -- the filter has already attached the principal.
	e.GET("/api/auth/me", h.APIMe)

	// Web form login.
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, limiter)
	e.POST("/logout", h.Logout)
}
