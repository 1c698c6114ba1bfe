package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the audit API. Routes live under /api, so the
// authorization filter requires a bearer token before they run.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	api := e.Group("/api/audit")
	api.GET("", h.List)
	api.GET("/users/:id", h.UserHistory)
}
