// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sort"
	"sync"

	"debt-tracker/internal/domain"
	"debt-tracker/internal/finance"
	"debt-tracker/internal/storage"
)

// Storage is an in-memory implementation of storage.Store with the same
// semantics as the postgres implementation.
type Storage struct {
	mu            sync.RWMutex
	loans         map[int64]domain.Loan
	history       map[int64]domain.HistoryEntry
	nextLoanID    int64
	nextHistoryID int64
}

func NewStorage() *Storage {
	return &Storage{
		loans:         make(map[int64]domain.Loan),
		history:       make(map[int64]domain.HistoryEntry),
		nextLoanID:    1,
		nextHistoryID: 1,
	}
}

// === LoanStorage ===

func (s *Storage) CreateLoan(_ context.Context, loan domain.Loan) (domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan.ID = s.nextLoanID
	s.nextLoanID++
	s.loans[loan.ID] = loan
	return loan, nil
}

func (s *Storage) ListLoans(_ context.Context) ([]domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loans := make([]domain.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		loans = append(loans, loan)
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return loans, nil
}

func (s *Storage) GetLoan(_ context.Context, id int64) (*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, storage.ErrLoanNotFound
	}
	return &loan, nil
}

func (s *Storage) UpdateLoanOffer(_ context.Context, id int64, update domain.OfferUpdate) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, storage.ErrLoanNotFound
	}

	loan.PrepaymentAmount = update.PrepaymentAmount
	loan.SelicRate = update.SelicRate
	loan.CDIRate = update.CDIRate
	loan.RemainingInstallments = finance.RemainingInstallments(
		loan.RegisteredAt, loan.TotalInstallments, loan.DueDay, update.AsOf)

	s.loans[id] = loan
	return &loan, nil
}

func (s *Storage) UpsertLoan(_ context.Context, loan domain.Loan) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.loans[loan.ID]
	s.loans[loan.ID] = loan
	if loan.ID >= s.nextLoanID {
		s.nextLoanID = loan.ID + 1
	}
	return !exists, nil
}

func (s *Storage) DeleteLoan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loans[id]; !ok {
		return storage.ErrLoanNotFound
	}
	delete(s.loans, id)
	for entryID, entry := range s.history {
		if entry.LoanID == id {
			delete(s.history, entryID)
		}
	}
	return nil
}

// === HistoryStorage ===

func (s *Storage) AppendHistory(_ context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loans[entry.LoanID]; !ok {
		return domain.HistoryEntry{}, storage.ErrLoanNotFound
	}

	entry.ID = s.nextHistoryID
	s.nextHistoryID++
	s.history[entry.ID] = entry
	return entry, nil
}

func (s *Storage) ListHistory(_ context.Context, loanID int64) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.loans[loanID]; !ok {
		return nil, storage.ErrLoanNotFound
	}

	var entries []domain.HistoryEntry
	for _, entry := range s.history {
		if entry.LoanID == loanID {
			entries = append(entries, entry)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (s *Storage) ListAllHistory(_ context.Context) ([]domain.LoanHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLoan := make(map[int64][]domain.HistoryEntry)
	for _, entry := range s.history {
		byLoan[entry.LoanID] = append(byLoan[entry.LoanID], entry)
	}

	loanIDs := make([]int64, 0, len(byLoan))
	for loanID := range byLoan {
		loanIDs = append(loanIDs, loanID)
	}
	sort.Slice(loanIDs, func(i, j int) bool { return loanIDs[i] < loanIDs[j] })

	grouped := make([]domain.LoanHistory, 0, len(loanIDs))
	for _, loanID := range loanIDs {
		entries := byLoan[loanID]
		sortEntries(entries)
		grouped = append(grouped, domain.LoanHistory{
			LoanID:      loanID,
			Description: s.loans[loanID].Description,
			Entries:     entries,
		})
	}
	return grouped, nil
}

func (s *Storage) InsertHistoryIfAbsent(_ context.Context, entry domain.HistoryEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.history[entry.ID]; exists {
		return false, nil
	}
	s.history[entry.ID] = entry
	if entry.ID >= s.nextHistoryID {
		s.nextHistoryID = entry.ID + 1
	}
	return true, nil
}

func sortEntries(entries []domain.HistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RecordedAt.Equal(entries[j].RecordedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].RecordedAt.Before(entries[j].RecordedAt)
	})
}
