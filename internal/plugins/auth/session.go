package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/plugins/users"
)

// sessionCookieName is the browser cookie holding the opaque session id.
const sessionCookieName = "userdir_session"

// sessionKeyPrefix namespaces session ids in Redis.
const sessionKeyPrefix = "session:"

// errNoSession marks a web request without a usable session.
var errNoSession = apperror.NewAuthFailure(ReasonUnauthenticated, "login required")

// SessionAuthProvider runs the browser login flow. Sessions live in Redis
// under an unguessable id with an idle TTL that every authenticated request
// pushes forward.
type SessionAuthProvider struct {
	redis     *redis.Client
	directory UserDirectory
	creds     *CredentialStore
	audit     audit.Recorder
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// SessionConfig holds the provider's collaborators and settings.
type SessionConfig struct {
	Redis       *redis.Client
	Directory   UserDirectory
	Credentials *CredentialStore
	Audit       audit.Recorder

	// IdleTTL is how long a session survives without requests.
	IdleTTL time.Duration

	// LookupTimeout bounds the per-request user lookup. Zero means no bound.
	LookupTimeout time.Duration
}

// NewSessionAuthProvider creates a session provider.
func NewSessionAuthProvider(cfg SessionConfig) *SessionAuthProvider {
	recorder := cfg.Audit
	if recorder == nil {
		recorder = audit.Nop()
	}
	return &SessionAuthProvider{
		redis:     cfg.Redis,
		directory: cfg.Directory,
		creds:     cfg.Credentials,
		audit:     recorder,
		ttl:       cfg.IdleTTL,
		timeout:   cfg.LookupTimeout,
		now:       time.Now,
	}
}

// Login checks credentials and opens a new session bound to the user.
// Unknown email and wrong password produce the same InvalidCredentials
// failure. previousID, the session id the browser presented, is destroyed
// first so a planted session id can never be promoted to an authenticated
// one.
func (p *SessionAuthProvider) Login(ctx context.Context, email, password, previousID string) (string, *users.User, error) {
	user, err := authenticate(ctx, p.directory, p.creds, email, password)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusUnauthorized {
			p.audit.Record(ctx, audit.Entry{Action: audit.ActionLoginFailed, Details: map[string]any{"channel": "web"}})
		}
		return "", nil, err
	}

	if previousID != "" {
		if err := p.Logout(ctx, previousID); err != nil {
			return "", nil, err
		}
	}

	id, err := p.create(ctx, user.ID)
	if err != nil {
		return "", nil, apperror.NewInternal(err)
	}

	slog.Info("session login", slog.String("user_id", user.ID))
	p.audit.Record(ctx, audit.Entry{
		ActorID:  user.ID,
		Action:   audit.ActionLogin,
		TargetID: user.ID,
		Details:  map[string]any{"channel": "web"},
	})
	return id, user, nil
}

// Logout destroys a session. Unknown ids are not an error.
func (p *SessionAuthProvider) Logout(ctx context.Context, id string) error {
	if err := p.redis.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session from Redis: %w", err))
	}
	return nil
}

// SignOut ends a session at the user's request and records the logout.
func (p *SessionAuthProvider) SignOut(ctx context.Context, id string) error {
	var userID string
	if session, err := p.Validate(ctx, id); err == nil {
		userID = session.UserID
	}

	if err := p.Logout(ctx, id); err != nil {
		return err
	}

	if userID != "" {
		slog.Info("session logout", slog.String("user_id", userID))
		p.audit.Record(ctx, audit.Entry{ActorID: userID, Action: audit.ActionLogout, TargetID: userID})
	}
	return nil
}

// Validate returns the session stored under id and slides its expiry.
// Missing or expired sessions return the unauthenticated failure.
func (p *SessionAuthProvider) Validate(ctx context.Context, id string) (*Session, error) {
	data, err := p.redis.GetEx(ctx, sessionKeyPrefix+id, p.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errNoSession
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session from Redis: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}
	return &session, nil
}

// Authenticate resolves the session cookie of c to an AuthContext. The
// user is re-read from the directory on every call, so deleting a user
// ends their sessions at the next request.
func (p *SessionAuthProvider) Authenticate(c echo.Context) (*AuthContext, error) {
	id := getSessionID(c)
	if id == "" {
		return nil, errNoSession
	}

	ctx := c.Request().Context()
	session, err := p.Validate(ctx, id)
	if err != nil {
		if errors.Is(err, errNoSession) {
			clearSessionCookie(c)
		}
		return nil, err
	}

	lookupCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	user, err := p.directory.FindByID(lookupCtx, session.UserID)
	if err != nil {
		if apperror.IsNotFound(err) {
			_ = p.Logout(ctx, id)
			clearSessionCookie(c)
			return nil, errNoSession
		}
		return nil, apperror.NewUnavailable(ReasonDirectoryUnavailable, err)
	}

	return FromUser(user, MethodSession), nil
}

// create stores a new session for userID and returns its id.
func (p *SessionAuthProvider) create(ctx context.Context, userID string) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	data, err := json.Marshal(Session{UserID: userID, CreatedAt: p.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := p.redis.Set(ctx, sessionKeyPrefix+id, data, p.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session in Redis: %w", err)
	}
	return id, nil
}

// generateSessionID returns 32 random bytes, hex encoded.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// --- Cookie helpers ---

// getSessionID reads the session id from the cookie.
func getSessionID(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets the session cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure if behind TLS, and SameSite=Lax. It
// has no Max-Age; Redis enforces the idle timeout.
func setSessionCookie(c echo.Context, id string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
