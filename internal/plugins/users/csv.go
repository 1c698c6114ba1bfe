package users

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
	"github.com/keyxmakerx/userdir/internal/sanitize"
)

// exportHeader is the first row of every export. Ids and hashes are never
// exported.
var exportHeader = []string{"Name", "Email", "Created At", "Updated At"}

// exportTimeLayout formats timestamps in exports.
const exportTimeLayout = "2006-01-02T15:04:05"

// headerWords mark a first row as a header when its first cell contains one.
var headerWords = []string{"name", "email", "password", "id"}

// Import reads Name,Email[,Password] rows and creates a user for each valid
// row whose email is not taken yet. Rows without a password use the
// configured default, or are skipped when none is set. Invalid, blank and
// duplicate rows are counted as skipped rather than failing the import.
func (s *userService) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperror.NewBadRequest(fmt.Sprintf("invalid CSV file: %v", err))
	}
	if len(records) == 0 {
		return nil, apperror.NewBadRequest("the CSV file is empty")
	}

	if isHeaderRow(records[0]) {
		records = records[1:]
	}

	result := &ImportResult{Imported: []User{}}
	for _, record := range records {
		name, email, password, ok := s.importRow(record)
		if !ok {
			result.Skipped++
			continue
		}

		user, err := s.create(ctx, name, email, password)
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code < 500 {
				result.Skipped++
				continue
			}
			return nil, err
		}
		result.Imported = append(result.Imported, *user)
	}

	slog.Info("csv import finished",
		slog.Int("imported", len(result.Imported)),
		slog.Int("skipped", result.Skipped),
	)
	s.audit.Record(ctx, audit.Entry{
		Action:  audit.ActionUsersImported,
		Details: map[string]any{"imported": len(result.Imported), "skipped": result.Skipped},
	})
	return result, nil
}

// importRow extracts and validates one record. ok is false when the row
// must be skipped.
func (s *userService) importRow(record []string) (name, email, password string, ok bool) {
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	switch {
	case len(record) >= 3:
		name, email, password = record[0], record[1], record[2]
	case len(record) == 2:
		name, email, password = record[0], record[1], s.defaultPassword
	default:
		return "", "", "", false
	}

	if name == "" || email == "" || password == "" {
		return "", "", "", false
	}
	if fields := Validate(name, email, password, true); len(fields) > 0 {
		return "", "", "", false
	}
	return name, email, password, true
}

func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	for _, word := range headerWords {
		if strings.Contains(first, word) {
			return true
		}
	}
	return false
}

// Export writes every user as CSV, oldest first.
func (s *userService) Export(ctx context.Context, w io.Writer) error {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("listing users for export: %w", err))
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, u := range list {
		row := []string{
			sanitize.CSVCell(u.Name),
			sanitize.CSVCell(u.Email),
			u.CreatedAt.UTC().Format(exportTimeLayout),
			u.UpdatedAt.UTC().Format(exportTimeLayout),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
