package app

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/userdir/internal/middleware"
	"github.com/keyxmakerx/userdir/internal/plugins/auth"
	"github.com/keyxmakerx/userdir/internal/templates/layouts"
)

// layoutData copies what the page shell needs into the request context:
// the signed-in user, the CSRF token, any pending flash and the active
// path. API and static requests are left alone so they never consume a
// flash meant for the next page.
func layoutData() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if middleware.IsAPIPath(path) || strings.HasPrefix(path, "/static/") {
				return next(c)
			}

			ctx := c.Request().Context()
			if ac := auth.FromContext(ctx); ac != nil {
				ctx = layouts.SetIsAuthenticated(ctx, true)
				ctx = layouts.SetUserID(ctx, ac.UserID)
				ctx = layouts.SetUserName(ctx, ac.Name)
				ctx = layouts.SetUserEmail(ctx, ac.Email)
			}
			ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
			ctx = layouts.SetActivePath(ctx, path)

			if flash := middleware.PopFlash(c); flash != nil {
				switch flash.Kind {
				case middleware.FlashSuccess:
					ctx = layouts.SetFlashSuccess(ctx, flash.Message)
				case middleware.FlashError:
					ctx = layouts.SetFlashError(ctx, flash.Message)
				}
			}

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
