// Package users is the user directory: persistent user records with CRUD,
// paging, search, and CSV import/export, exposed both as a JSON API under
// /api/users and as server-rendered pages under /users.
//
// The auth plugin reads from this directory to resolve principals; this
// package knows nothing about tokens or sessions.
package users

import (
	"time"
)

// User is a directory record. Email is unique and stored lower-cased so
// lookups are case-insensitive. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Page is one page of users plus paging metadata. Pages are zero-based.
type Page struct {
	Users       []User `json:"users"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalItems  int    `json:"totalItems"`
	PageSize    int    `json:"pageSize"`
	Keyword     string `json:"keyword,omitempty"`
}

// Paging defaults.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Field limits shared by validation and the schema.
const (
	maxNameLen       = 100
	maxEmailLen      = 255
	maxPasswordBytes = 72
)

// --- Request DTOs (bound from HTTP requests) ---

// UserRequest is the body of POST/PUT /api/users and the web user form.
type UserRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// --- Service Input DTOs ---

// CreateInput is the input for creating a user. Password is required.
type CreateInput struct {
	Name     string
	Email    string
	Password string
}

// UpdateInput is the input for updating a user. An empty Password keeps
// the current hash.
type UpdateInput struct {
	Name     string
	Email    string
	Password string
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Imported []User `json:"imported"`
	Skipped  int    `json:"skipped"`
}
