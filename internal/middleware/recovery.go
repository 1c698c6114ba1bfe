package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/userdir/internal/apperror"
)

// Recovery returns middleware that recovers from panics, logs the stack
// trace, and answers with a 500. API paths get the standard JSON error body
// so clients never see a bare text response.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", c.Request().Method),
					slog.String("path", c.Request().URL.Path),
				)

				if c.Response().Committed {
					return
				}
				if IsAPIRequest(c) {
					body := apperror.NewBody(apperror.NewInternal(nil), time.Now())
					returnErr = c.JSON(http.StatusInternalServerError, body)
					return
				}
				returnErr = c.String(http.StatusInternalServerError, "Internal Server Error")
			}()

			return next(c)
		}
	}
}
