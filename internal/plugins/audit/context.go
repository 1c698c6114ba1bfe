package audit

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Actor identifies who performed an action and from where.
type Actor struct {
	ID string
	IP string
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored in ctx, or the zero Actor.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

// ActorMiddleware stamps every request context with the caller's IP and the
// user ID returned by resolve. It must run after authentication so resolve
// can see the authenticated user.
func ActorMiddleware(resolve func(ctx context.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			actor := Actor{ID: resolve(req.Context()), IP: c.RealIP()}
			c.SetRequest(req.WithContext(WithActor(req.Context(), actor)))
			return next(c)
		}
	}
}
