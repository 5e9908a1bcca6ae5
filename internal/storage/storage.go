// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"debt-tracker/internal/domain"
)

// ErrLoanNotFound is returned when a referenced loan does not exist.
var ErrLoanNotFound = errors.New("loan not found")

type LoanStorage interface {
	CreateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error)
	ListLoans(ctx context.Context) ([]domain.Loan, error)
	GetLoan(ctx context.Context, id int64) (*domain.Loan, error)
	// UpdateLoanOffer recomputes the remaining installment count as of
	// update.AsOf and persists offer, rates and count atomically.
	UpdateLoanOffer(ctx context.Context, id int64, update domain.OfferUpdate) (*domain.Loan, error)
	// UpsertLoan inserts or overwrites a loan keyed by its id (import path).
	// Reports whether a new row was created.
	UpsertLoan(ctx context.Context, loan domain.Loan) (bool, error)
	// DeleteLoan removes a loan and its history in the same unit of work.
	DeleteLoan(ctx context.Context, id int64) error
}

type HistoryStorage interface {
	AppendHistory(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error)
	ListHistory(ctx context.Context, loanID int64) ([]domain.HistoryEntry, error)
	// ListAllHistory returns entries grouped per loan, ascending by record
	// date, omitting loans without entries.
	ListAllHistory(ctx context.Context) ([]domain.LoanHistory, error)
	// InsertHistoryIfAbsent inserts an entry keyed by its id unless one with
	// that id already exists (import path). Reports whether it was inserted.
	InsertHistoryIfAbsent(ctx context.Context, entry domain.HistoryEntry) (bool, error)
}

type Store interface {
	LoanStorage
	HistoryStorage
}
