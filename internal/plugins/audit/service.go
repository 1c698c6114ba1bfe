package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/userdir/internal/apperror"
)

// perPage is the number of audit entries returned per page.
const perPage = 50

// maxTargetHistoryEntries caps the history returned for a single user.
const maxTargetHistoryEntries = 100

// Recorder is the write side of the audit log. Other plugins depend on this
// narrow interface instead of the full service.
type Recorder interface {
	// Record persists entry. Missing ActorID and IPAddress are filled from
	// the request context. Failures are logged and swallowed.
	Record(ctx context.Context, entry Entry)
}

// AuditService handles business logic for the audit log. It validates inputs,
// enforces limits, and delegates persistence to the repository.
type AuditService interface {
	Recorder

	// Log validates and persists an entry, returning any failure.
	Log(ctx context.Context, entry *Entry) error

	// List returns one page of the audit feed, most recent first.
	List(ctx context.Context, page int) (*EntryPage, error)

	// TargetHistory returns the recent entries affecting one user.
	TargetHistory(ctx context.Context, targetID string) ([]Entry, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// Log validates and persists an audit entry.
func (s *auditService) Log(ctx context.Context, entry *Entry) error {
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}
	return nil
}

// Record fills actor details from ctx and writes the entry. The write is
// detached from the request's cancellation so a client disconnect doesn't
// drop the record.
func (s *auditService) Record(ctx context.Context, entry Entry) {
	actor := ActorFromContext(ctx)
	if entry.ActorID == "" {
		entry.ActorID = actor.ID
	}
	if entry.IPAddress == "" {
		entry.IPAddress = actor.IP
	}

	if err := s.Log(context.WithoutCancel(ctx), &entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("action", entry.Action),
			slog.String("target_id", entry.TargetID),
			slog.Any("error", err),
		)
	}
}

// List returns the paginated audit feed. Pages are 1-indexed. Invalid page
// numbers are clamped to 1.
func (s *auditService) List(ctx context.Context, page int) (*EntryPage, error) {
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	entries, total, err := s.repo.List(ctx, perPage, offset)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit entries: %w", err))
	}

	return &EntryPage{Entries: entries, Page: page, PerPage: perPage, TotalItems: total}, nil
}

// TargetHistory returns the recent change history for a single user.
func (s *auditService) TargetHistory(ctx context.Context, targetID string) ([]Entry, error) {
	if targetID == "" {
		return nil, apperror.NewBadRequest("target ID is required")
	}

	entries, err := s.repo.ListByTarget(ctx, targetID, maxTargetHistoryEntries)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing target history: %w", err))
	}
	return entries, nil
}

// Nop returns a Recorder that discards everything. Used in tests and by
// callers constructed without an audit log.
func Nop() Recorder { return nopRecorder{} }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Entry) {}
