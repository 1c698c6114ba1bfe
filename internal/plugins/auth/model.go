// Package auth is the identity layer shared by the browser UI and the JSON
// API. It hashes and verifies passwords, issues and validates HS256 bearer
// tokens, keeps server-side browser sessions in Redis, and gates every
// request through a single authorization filter.
//
// The two mechanisms stay orthogonal: /api paths are authenticated only by
// bearer token and never touch sessions; web paths are authenticated only
// by session and never look at tokens.
package auth

import (
	"time"

	"github.com/keyxmakerx/userdir/internal/plugins/users"
)

// Failure reasons reported in the "reason" field of 401 bodies and in logs.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTokenMissing       = "token_missing"
	ReasonTokenMalformed     = "token_malformed"
	ReasonTokenBadSignature  = "token_bad_signature"
	ReasonTokenExpired       = "token_expired"
	ReasonSubjectNotFound    = "subject_not_found"
	ReasonUnauthenticated    = "unauthenticated"

	// ReasonDirectoryUnavailable accompanies 503 responses when the user
	// directory could not be reached.
	ReasonDirectoryUnavailable = "directory_unavailable"
)

// TokenType is the "type" field of login and register responses.
const TokenType = "Bearer"

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest is the body of POST /api/auth/login and the login form.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// --- Responses ---

// Summary is the minimal profile returned with a token.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string  `json:"token"`
	Type  string  `json:"type"`
	User  Summary `json:"user"`
}

// Profile is returned by GET /api/auth/me.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// summaryOf maps a directory record to its public summary.
func summaryOf(u *users.User) Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// --- Session ---

// Session is the Redis value behind a browser session cookie. It references
// the user by id only; the user record is re-read on every request.
type Session struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
