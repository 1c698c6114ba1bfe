package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/sanitize"
)

// msgDuplicateEmail is shown for both the pre-check and the constraint race.
const msgDuplicateEmail = "email already exists"

// PasswordHasher turns a plaintext password into a storable hash. The auth
// plugin's credential store satisfies it; this package never sees a
// verification path.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
}

// UserService handles business logic for the directory: validation, email
// uniqueness, password hashing, paging and CSV import/export.
type UserService interface {
	List(ctx context.Context, page, size int, keyword string) (*Page, error)
	Get(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, input CreateInput) (*User, error)
	Update(ctx context.Context, id string, input UpdateInput) (*User, error)
	Delete(ctx context.Context, id string) error
	Import(ctx context.Context, r io.Reader) (*ImportResult, error)
	Export(ctx context.Context, w io.Writer) error
}

// Option configures a userService.
type Option func(*userService)

// WithImportDefaultPassword sets the password given to imported rows that
// only carry a name and an email.
func WithImportDefaultPassword(password string) Option {
	return func(s *userService) { s.defaultPassword = password }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *userService) { s.now = now }
}

// userService implements UserService.
type userService struct {
	repo            UserRepository
	hasher          PasswordHasher
	audit           audit.Recorder
	defaultPassword string
	now             func() time.Time
}

// NewUserService creates a new user service. A nil recorder disables audit
// entries.
func NewUserService(repo UserRepository, hasher PasswordHasher, recorder audit.Recorder, opts ...Option) UserService {
	if recorder == nil {
		recorder = audit.Nop()
	}
	s := &userService{
		repo:   repo,
		hasher: hasher,
		audit:  recorder,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one page of users. page is zero-based; size falls back to
// DefaultPageSize and is capped at MaxPageSize. A non-blank keyword switches
// to a case-insensitive search on name and email.
func (s *userService) List(ctx context.Context, page, size int, keyword string) (*Page, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	keyword = sanitize.Text(keyword)
	offset := page * size

	var (
		list  []User
		total int
		err   error
	)
	if keyword != "" {
		list, total, err = s.repo.Search(ctx, keyword, offset, size)
	} else {
		list, total, err = s.repo.List(ctx, offset, size)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing users: %w", err))
	}

	return &Page{
		Users:       list,
		CurrentPage: page,
		TotalPages:  (total + size - 1) / size,
		TotalItems:  total,
		PageSize:    size,
		Keyword:     keyword,
	}, nil
}

// Get returns a single user or apperror.NotFound.
func (s *userService) Get(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("getting user: %w", err))
	}
	return user, nil
}

// Create validates the input, rejects duplicate emails and stores a new
// user with a hashed password.
func (s *userService) Create(ctx context.Context, input CreateInput) (*User, error) {
	if fields := Validate(input.Name, input.Email, input.Password, true); len(fields) > 0 {
		return nil, apperror.NewValidation("invalid user", fields)
	}

	user, err := s.create(ctx, input.Name, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{Action: audit.ActionUserCreated, TargetID: user.ID})
	return user, nil
}

// create assumes validated input.
func (s *userService) create(ctx context.Context, name, email, password string) (*User, error) {
	email = NormalizeEmail(email)

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, duplicateEmail()
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := s.now().UTC().Truncate(time.Second)
	user := &User{
		ID:           uuid.NewString(),
		Name:         sanitize.Text(name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmail()
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user created", slog.String("user_id", user.ID))
	return user, nil
}

// Update changes name and email, and replaces the password only when a new
// one is given. Email uniqueness is only checked when the email changes.
func (s *userService) Update(ctx context.Context, id string, input UpdateInput) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if fields := Validate(input.Name, input.Email, input.Password, false); len(fields) > 0 {
		return nil, apperror.NewValidation("invalid user", fields)
	}

	email := NormalizeEmail(input.Email)
	if email != user.Email {
		exists, err := s.repo.EmailExists(ctx, email)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
		}
		if exists {
			return nil, duplicateEmail()
		}
	}

	passwordChanged := input.Password != ""
	if passwordChanged {
		hash, err := s.hasher.Hash(ctx, input.Password)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
		}
		user.PasswordHash = hash
	}

	user.Name = sanitize.Text(input.Name)
	user.Email = email
	user.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, duplicateEmail()
		case apperror.IsNotFound(err):
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("updating user: %w", err))
	}

	s.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionUserUpdated,
		TargetID: user.ID,
		Details:  map[string]any{"password_changed": passwordChanged},
	})
	return user, nil
}

// Delete removes a user. Returns apperror.NotFound if the id is unknown.
func (s *userService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if apperror.IsNotFound(err) {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("deleting user: %w", err))
	}

	s.audit.Record(ctx, audit.Entry{Action: audit.ActionUserDeleted, TargetID: id})
	return nil
}

func duplicateEmail() error {
	return apperror.NewValidation(msgDuplicateEmail, map[string]string{"email": msgDuplicateEmail})
}
