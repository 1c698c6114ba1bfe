// Package middleware provides HTTP middleware for the user directory's Echo
// server. Middleware is applied globally (all routes) or per-route group
// depending on the middleware type. See internal/app for registration.
package middleware

import (
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// apiPrefix is the path prefix of the JSON API surface.
const apiPrefix = "/api"

// IsAPIPath returns true if path targets the JSON API ("/api" or "/api/...").
func IsAPIPath(path string) bool {
	return path == apiPrefix || strings.HasPrefix(path, apiPrefix+"/")
}

// IsAPIRequest returns true if the request targets the JSON API.
func IsAPIRequest(c echo.Context) bool {
	return IsAPIPath(c.Request().URL.Path)
}

// IsHTMX returns true if the current request was initiated by HTMX and is NOT
// a boosted navigation. Boosted requests behave like normal page navigations
// and expect full page responses.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// Render writes a Templ component to the response with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(c.Request().Context(), c.Response().Writer)
}

// Redirect sends a browser to target, using HX-Redirect for HTMX requests
// so the whole page navigates instead of swapping a fragment.
func Redirect(c echo.Context, target string) error {
	if IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, target)
}
