package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRepository defines the data access contract for audit log operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	// Log inserts a new audit entry into the database.
	Log(ctx context.Context, entry *Entry) error

	// List returns paginated audit entries, most recent first, plus the
	// total count. Joins the users table to include the actor's name.
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)

	// ListByTarget returns the most recent entries affecting one user.
	ListByTarget(ctx context.Context, targetID string, limit int) ([]Entry, error)
}

// auditRepository implements AuditRepository with SQL that runs on both
// MariaDB and SQLite.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts a new audit entry. The details map is serialized to JSON
// before storage. Nil details are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO audit_log (actor_id, action, target_id, ip_address, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var details sql.NullString
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.ActorID, entry.Action, entry.TargetID,
		entry.IPAddress, details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id

	return nil
}

const entryColumns = `a.id, a.actor_id, a.action, a.target_id, a.ip_address,
	                 a.details, a.created_at,
	                 COALESCE(u.name, '') AS actor_name`

// List returns audit entries ordered by most recent first.
func (r *auditRepository) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT ` + entryColumns + `
	          FROM audit_log a
	          LEFT JOIN users u ON u.id = a.actor_id
	          ORDER BY a.created_at DESC, a.id DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByTarget returns the most recent audit entries for a single user.
func (r *auditRepository) ListByTarget(ctx context.Context, targetID string, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + `
	          FROM audit_log a
	          LEFT JOIN users u ON u.id = a.actor_id
	          WHERE a.target_id = ?
	          ORDER BY a.created_at DESC, a.id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing target audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// scanEntries scans rows from an audit_log query. Expects the columns in
// entryColumns order.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var details sql.NullString
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.TargetID, &e.IPAddress,
			&details, &e.CreatedAt, &e.ActorName,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				// Non-fatal: keep the feed readable.
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return entries, nil
}
