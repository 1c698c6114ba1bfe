package auth

import (
	"context"
	"sync"
	"time"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/plugins/users"
)

// fakeDirectory is an in-memory UserDirectory. The err field, when set,
// makes every call fail as if the store were unreachable.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*users.User
	err   error
	delay time.Duration
	calls int
}

func newFakeDirectory(list ...*users.User) *fakeDirectory {
	d := &fakeDirectory{users: map[string]*users.User{}}
	for _, u := range list {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) wait(ctx context.Context) error {
	d.mu.Lock()
	d.calls++
	delay, err := d.delay, d.err
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *fakeDirectory) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == users.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

func (d *fakeDirectory) FindByID(ctx context.Context, id string) (*users.User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperror.NewNotFound("user not found")
}

func (d *fakeDirectory) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := d.FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (d *fakeDirectory) Create(ctx context.Context, user *users.User) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == user.Email {
			return users.ErrDuplicateEmail
		}
	}
	cp := *user
	d.users[user.ID] = &cp
	return nil
}

func (d *fakeDirectory) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

func (d *fakeDirectory) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// newTestUser builds a user whose password hash matches password.
func newTestUser(creds *CredentialStore, id, name, email, password string) *users.User {
	hash, err := creds.Hash(context.Background(), password)
	if err != nil {
		panic(err)
	}
	now := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	return &users.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// recordingAudit captures entries passed to Record.
type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
