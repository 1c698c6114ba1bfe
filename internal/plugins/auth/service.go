package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/plugins/users"
	"github.com/keyxmakerx/userdir/internal/sanitize"
)

// msgInvalidCredentials is the only message either login path returns for
// bad credentials.
const msgInvalidCredentials = "invalid email or password"

// AuthService is the login/register/me surface for API clients.
type AuthService interface {
	// Login verifies credentials and issues a bearer token.
	Login(ctx context.Context, email, password string) (*AuthResponse, error)

	// Register creates an account and issues a token exactly like Login.
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)

	// Me returns the profile attached to ctx by the authorization filter.
	Me(ctx context.Context) (*Profile, error)
}

// authService implements AuthService.
type authService struct {
	directory UserDirectory
	creds     *CredentialStore
	tokens    *TokenService
	audit     audit.Recorder
	now       func() time.Time
}

// NewAuthService creates the authentication facade. A nil recorder disables
// audit entries.
func NewAuthService(directory UserDirectory, creds *CredentialStore, tokens *TokenService, recorder audit.Recorder) AuthService {
	if recorder == nil {
		recorder = audit.Nop()
	}
	return &authService{
		directory: directory,
		creds:     creds,
		tokens:    tokens,
		audit:     recorder,
		now:       time.Now,
	}
}

// Login authenticates email/password and returns a fresh token plus the
// user's summary.
func (s *authService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	user, err := authenticate(ctx, s.directory, s.creds, email, password)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusUnauthorized {
			slog.Warn("api login failed")
			s.audit.Record(ctx, audit.Entry{Action: audit.ActionLoginFailed, Details: map[string]any{"channel": "api"}})
		}
		return nil, err
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("api login", slog.String("user_id", user.ID))
	s.audit.Record(ctx, audit.Entry{
		ActorID:  user.ID,
		Action:   audit.ActionLogin,
		TargetID: user.ID,
		Details:  map[string]any{"channel": "api"},
	})
	return resp, nil
}

// Register validates the request, rejects taken emails, stores the new
// user with a hashed password and returns a token for it.
func (s *authService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if fields := users.Validate(req.Name, req.Email, req.Password, true); len(fields) > 0 {
		return nil, apperror.NewValidation("invalid registration", fields)
	}

	email := users.NormalizeEmail(req.Email)
	exists, err := s.directory.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewUnavailable(ReasonDirectoryUnavailable, err)
	}
	if exists {
		return nil, duplicateEmail()
	}

	hash, err := s.creds.Hash(ctx, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, apperror.NewValidation("invalid registration", map[string]string{"password": err.Error()})
		}
		return nil, apperror.NewInternal(err)
	}

	now := s.now().UTC().Truncate(time.Second)
	user := &users.User{
		ID:           uuid.NewString(),
		Name:         sanitize.Text(req.Name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.directory.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, duplicateEmail()
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	s.audit.Record(ctx, audit.Entry{ActorID: user.ID, Action: audit.ActionRegister, TargetID: user.ID})
	return resp, nil
}

// Me returns the profile of the principal attached by the filter.
func (s *authService) Me(ctx context.Context) (*Profile, error) {
	ac := FromContext(ctx)
	if ac == nil {
		return nil, apperror.NewAuthFailure(ReasonUnauthenticated, "authentication required")
	}
	return &Profile{
		ID:        ac.UserID,
		Name:      ac.Name,
		Email:     ac.Email,
		CreatedAt: ac.CreatedAt,
		UpdatedAt: ac.UpdatedAt,
	}, nil
}

func (s *authService) issue(user *users.User) (*AuthResponse, error) {
	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return &AuthResponse{Token: token.Value, Type: TokenType, User: summaryOf(user)}, nil
}

// authenticate is the credential check shared by API and form login.
// Unknown emails still cost one bcrypt comparison, and both failure paths
// return the same error. Directory outages surface as 503, never as a
// credential failure.
func authenticate(ctx context.Context, dir UserDirectory, creds *CredentialStore, email, password string) (*users.User, error) {
	user, err := dir.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if apperror.IsNotFound(err) {
			creds.VerifyDummy(ctx, password)
			return nil, apperror.NewAuthFailure(ReasonInvalidCredentials, msgInvalidCredentials)
		}
		return nil, apperror.NewUnavailable(ReasonDirectoryUnavailable, err)
	}

	if !creds.Verify(ctx, password, user.PasswordHash) {
		return nil, apperror.NewAuthFailure(ReasonInvalidCredentials, msgInvalidCredentials)
	}
	return user, nil
}

func duplicateEmail() error {
	const msg = "email already exists"
	return apperror.NewValidation(msg, map[string]string{"email": msg})
}
