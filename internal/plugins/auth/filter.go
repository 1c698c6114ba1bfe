package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/middleware"
	"github.com/keyxmakerx/userdir/internal/plugins/users"
)

// PathClass buckets every request path for the authorization filter.
type PathClass int

const (
	// PublicWeb paths (login page, static assets, error page) pass untouched.
	PublicWeb PathClass = iota
	// PublicAPI paths (login, register) pass untouched.
	PublicAPI
	// ProtectedAPI paths need a valid bearer token.
	ProtectedAPI
	// ProtectedWeb paths need an active browser session.
	ProtectedWeb
)

// String returns the class name used in logs.
func (p PathClass) String() string {
	switch p {
	case PublicWeb:
		return "public_web"
	case PublicAPI:
		return "public_api"
	case ProtectedAPI:
		return "protected_api"
	default:
		return "protected_web"
	}
}

// PathClassifier maps a request path to its PathClass using the configured
// allowlist. Entries ending in "/" match every path below them; all other
// entries match exactly.
type PathClassifier struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewPathClassifier builds a classifier from the public-path allowlist.
func NewPathClassifier(publicPaths []string) *PathClassifier {
	pc := &PathClassifier{exact: make(map[string]struct{}, len(publicPaths))}
	for _, p := range publicPaths {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, "/"):
			pc.prefixes = append(pc.prefixes, p)
		default:
			pc.exact[p] = struct{}{}
		}
	}
	return pc
}

// Classify returns the class of path.
func (pc *PathClassifier) Classify(path string) PathClass {
	api := middleware.IsAPIPath(path)
	if pc.isPublic(path) {
		if api {
			return PublicAPI
		}
		return PublicWeb
	}
	if api {
		return ProtectedAPI
	}
	return ProtectedWeb
}

func (pc *PathClassifier) isPublic(path string) bool {
	if _, ok := pc.exact[path]; ok {
		return true
	}
	for _, prefix := range pc.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// UserDirectory is the slice of the user store the auth layer reads and
// writes. users.UserRepository satisfies it.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByID(ctx context.Context, id string) (*users.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *users.User) error
}

// WebAuthenticator resolves the browser session of a web request.
// SessionAuthProvider implements it.
type WebAuthenticator interface {
	Authenticate(c echo.Context) (*AuthContext, error)
}

// Filter is the per-request gatekeeper. It runs once per request, before
// any route handler, and decides between public passthrough, bearer-token
// authentication and session authentication.
type Filter struct {
	classifier *PathClassifier
	tokens     *TokenService
	directory  UserDirectory
	sessions   WebAuthenticator
	timeout    time.Duration
	now        func() time.Time
}

// FilterConfig holds the filter's collaborators.
type FilterConfig struct {
	Classifier *PathClassifier
	Tokens     *TokenService
	Directory  UserDirectory
	Sessions   WebAuthenticator

	// LookupTimeout bounds the principal lookup. Zero means no extra bound.
	LookupTimeout time.Duration
}

// NewFilter creates the authorization filter.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{
		classifier: cfg.Classifier,
		tokens:     cfg.Tokens,
		directory:  cfg.Directory,
		sessions:   cfg.Sessions,
		timeout:    cfg.LookupTimeout,
		now:        time.Now,
	}
}

// Middleware returns the filter as global Echo middleware.
func (f *Filter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch f.classifier.Classify(c.Request().URL.Path) {
			case PublicWeb, PublicAPI:
				return next(c)
			case ProtectedAPI:
				return f.bearer(c, next)
			default:
				return f.session(c, next)
			}
		}
	}
}

// bearer authenticates an API request. Every failure is answered here with
// a JSON body; nothing is passed on to the generic error handler.
func (f *Filter) bearer(c echo.Context, next echo.HandlerFunc) error {
	raw, ok := bearerToken(c.Request())
	if !ok {
		return f.reject(c, apperror.NewAuthFailure(ReasonTokenMissing, "authentication token is required"))
	}

	outcome := f.tokens.Validate(raw)
	switch outcome.Status {
	case StatusMalformed:
		return f.reject(c, apperror.NewAuthFailure(ReasonTokenMalformed, "authentication token is malformed"))
	case StatusBadSignature:
		return f.reject(c, apperror.NewAuthFailure(ReasonTokenBadSignature, "authentication token signature is invalid"))
	case StatusExpired:
		return f.reject(c, apperror.NewAuthFailure(ReasonTokenExpired, "authentication token has expired"))
	}

	user, err := f.lookup(c.Request().Context(), outcome.Subject)
	if err != nil {
		if apperror.IsNotFound(err) {
			return f.reject(c, apperror.NewAuthFailure(ReasonSubjectNotFound, "token subject no longer exists"))
		}
		return f.reject(c, apperror.NewUnavailable(ReasonDirectoryUnavailable, err))
	}

	req := c.Request()
	c.SetRequest(req.WithContext(WithAuth(req.Context(), FromUser(user, MethodBearer))))
	return next(c)
}

// lookup resolves the token subject, bounded by the configured timeout.
func (f *Filter) lookup(ctx context.Context, email string) (*users.User, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.directory.FindByEmail(ctx, email)
}

// reject writes the JSON error body for an API rejection.
func (f *Filter) reject(c echo.Context, err *apperror.AppError) error {
	attrs := []any{
		slog.String("path", c.Request().URL.Path),
		slog.String("reason", err.Reason),
		slog.String("ip", c.RealIP()),
	}
	if err.Internal != nil {
		slog.Error("directory lookup failed", append(attrs, slog.Any("error", err.Internal))...)
	} else {
		slog.Warn("api request rejected", attrs...)
	}
	return c.JSON(err.Code, apperror.NewBody(err, f.now()))
}

// session authenticates a web request against its browser session. Missing
// or stale sessions are sent to the login page with a flash message.
func (f *Filter) session(c echo.Context, next echo.HandlerFunc) error {
	ac, err := f.sessions.Authenticate(c)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusUnauthorized {
			middleware.SetFlash(c, middleware.FlashError, "Please log in to continue.")
			return middleware.Redirect(c, "/login")
		}
		return err
	}

	req := c.Request()
	c.SetRequest(req.WithContext(WithAuth(req.Context(), ac)))
	return next(c)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
