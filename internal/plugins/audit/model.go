// Package audit records security and directory events: logins, failed
// logins, registrations, logouts and user record changes. Every entry is
// persisted to the audit_log table and can be listed through GET /api/audit.
//
// Recording is fire-and-forget -- a failed write is logged, never returned
// to the request that triggered it.
package audit

import "time"

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering and display grouping.

const (
	// ActionLogin is logged after a successful API or form login.
	ActionLogin = "auth.login"

	// ActionLoginFailed is logged when credentials are rejected. The target
	// is empty so the log never confirms whether the email exists.
	ActionLoginFailed = "auth.login_failed"

	// ActionRegister is logged when a new account registers through the API.
	ActionRegister = "auth.register"

	// ActionLogout is logged when a browser session is destroyed.
	ActionLogout = "auth.logout"

	ActionUserCreated   = "user.created"
	ActionUserUpdated   = "user.updated"
	ActionUserDeleted   = "user.deleted"
	ActionUsersImported = "users.imported"
)

// Entry represents a single recorded action in the audit log. ActorID is
// the authenticated user that performed the action (empty for anonymous
// requests); TargetID is the user record it affected, if any.
type Entry struct {
	ID        int64          `json:"id"`
	ActorID   string         `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	TargetID  string         `json:"targetId,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`

	// ActorName is joined from the users table for display. Not stored in
	// audit_log -- populated at query time.
	ActorName string `json:"actorName,omitempty"`
}

// EntryPage is one page of the audit feed. Pages are 1-indexed.
type EntryPage struct {
	Entries    []Entry `json:"entries"`
	Page       int     `json:"page"`
	PerPage    int     `json:"perPage"`
	TotalItems int     `json:"totalItems"`
}
