// internal/excel/sync.go
package excel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"debt-tracker/internal/domain"
	"debt-tracker/internal/storage"
)

// ErrInvalidWorkbook marks uploads that cannot be read as a backup workbook,
// as opposed to storage failures while applying one.
var ErrInvalidWorkbook = errors.New("invalid workbook")

// ImportResult reports what an import actually applied.
type ImportResult struct {
	LoansImported   int `json:"loans_imported"`
	HistoryImported int `json:"history_imported"`
}

// Syncer keeps a spreadsheet backup of the whole data set at a fixed path.
type Syncer struct {
	store storage.Store
	path  string
}

func NewSyncer(store storage.Store, path string) *Syncer {
	return &Syncer{store: store, path: path}
}

func (s *Syncer) Path() string {
	return s.path
}

// Export writes the full data set to the backup path, replacing whatever was
// there, and returns the path.
func (s *Syncer) Export(ctx context.Context) (string, error) {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return "", fmt.Errorf("load loans: %w", err)
	}

	grouped, err := s.store.ListAllHistory(ctx)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	f, err := Build(loans, flattenHistory(grouped))
	if err != nil {
		return "", fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(s.path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return s.path, nil
}

// Import upserts loans by id and inserts unknown history entries from an
// uploaded workbook. Already-committed rows survive a partial failure; the
// returned counts cover only what was applied.
func (s *Syncer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	loans, entries, err := Parse(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}

	var result ImportResult
	for _, loan := range loans {
		if _, err := s.store.UpsertLoan(ctx, loan); err != nil {
			return result, fmt.Errorf("upsert loan %d: %w", loan.ID, err)
		}
		result.LoansImported++
	}
	for _, entry := range entries {
		inserted, err := s.store.InsertHistoryIfAbsent(ctx, entry)
		if err != nil {
			return result, fmt.Errorf("insert history %d: %w", entry.ID, err)
		}
		if inserted {
			result.HistoryImported++
		}
	}

	slog.Info("spreadsheet import finished",
		"loans", result.LoansImported, "history", result.HistoryImported)
	return result, nil
}

// AutoSync re-exports the data set after a mutation. Best effort: a failure
// is logged and swallowed so it never blocks the primary operation.
func (s *Syncer) AutoSync(ctx context.Context) {
	if _, err := s.Export(ctx); err != nil {
		slog.Error("auto-sync to spreadsheet failed", "path", s.path, "error", err)
		return
	}
	slog.Debug("auto-sync to spreadsheet done", "path", s.path)
}

func flattenHistory(grouped []domain.LoanHistory) []domain.HistoryEntry {
	var entries []domain.HistoryEntry
	for _, lh := range grouped {
		entries = append(entries, lh.Entries...)
	}
	return entries
}
