// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"debt-tracker/internal/domain"
	"debt-tracker/internal/finance"
	"debt-tracker/internal/storage"
)

type Storage struct {
	db *pgxpool.Pool
}

func NewStorage(db *pgxpool.Pool) *Storage {
	return &Storage{db: db}
}

const loanColumns = `id, description, creditor, installment_amount, total_installments,
	remaining_installments, prepayment_amount, selic_rate, cdi_rate, registered_at, due_day`

func scanLoan(row pgx.Row) (domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(
		&l.ID, &l.Description, &l.Creditor, &l.InstallmentAmount, &l.TotalInstallments,
		&l.RemainingInstallments, &l.PrepaymentAmount, &l.SelicRate, &l.CDIRate,
		&l.RegisteredAt, &l.DueDay,
	)
	return l, err
}

// === LoanStorage ===

func (s *Storage) CreateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO loans (description, creditor, installment_amount, total_installments,
			remaining_installments, prepayment_amount, selic_rate, cdi_rate, registered_at, due_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+loanColumns,
		loan.Description, loan.Creditor, loan.InstallmentAmount, loan.TotalInstallments,
		loan.RemainingInstallments, loan.PrepaymentAmount, loan.SelicRate, loan.CDIRate,
		loan.RegisteredAt, loan.DueDay,
	)
	created, err := scanLoan(row)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("create loan: %w", err)
	}
	slog.Debug("loan created", "id", created.ID, "description", created.Description)
	return created, nil
}

func (s *Storage) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (s *Storage) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	loan, err := scanLoan(s.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, storage.ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return &loan, nil
}

func (s *Storage) UpdateLoanOffer(ctx context.Context, id int64, update domain.OfferUpdate) (*domain.Loan, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanLoan(tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, storage.ErrLoanNotFound
		}
		return nil, fmt.Errorf("find loan: %w", err)
	}

	remaining := finance.RemainingInstallments(
		current.RegisteredAt, current.TotalInstallments, current.DueDay, update.AsOf)

	updated, err := scanLoan(tx.QueryRow(ctx, `
		UPDATE loans
		SET prepayment_amount = $2, selic_rate = $3, cdi_rate = $4, remaining_installments = $5
		WHERE id = $1
		RETURNING `+loanColumns,
		id, update.PrepaymentAmount, update.SelicRate, update.CDIRate, remaining,
	))
	if err != nil {
		return nil, fmt.Errorf("update loan offer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	slog.Debug("loan offer updated", "id", id, "remaining", remaining)
	return &updated, nil
}

func (s *Storage) UpsertLoan(ctx context.Context, loan domain.Loan) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted bool
	err = tx.QueryRow(ctx, `
		INSERT INTO loans (id, description, creditor, installment_amount, total_installments,
			remaining_installments, prepayment_amount, selic_rate, cdi_rate, registered_at, due_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			creditor = EXCLUDED.creditor,
			installment_amount = EXCLUDED.installment_amount,
			total_installments = EXCLUDED.total_installments,
			remaining_installments = EXCLUDED.remaining_installments,
			prepayment_amount = EXCLUDED.prepayment_amount,
			selic_rate = EXCLUDED.selic_rate,
			cdi_rate = EXCLUDED.cdi_rate,
			registered_at = EXCLUDED.registered_at,
			due_day = EXCLUDED.due_day
		RETURNING (xmax = 0)
	`, loan.ID, loan.Description, loan.Creditor, loan.InstallmentAmount, loan.TotalInstallments,
		loan.RemainingInstallments, loan.PrepaymentAmount, loan.SelicRate, loan.CDIRate,
		loan.RegisteredAt, loan.DueDay,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert loan %d: %w", loan.ID, err)
	}

	// Keep the sequence ahead of explicitly imported ids.
	_, err = tx.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('loans', 'id'),
			GREATEST((SELECT COALESCE(MAX(id), 0) FROM loans), 1))
	`)
	if err != nil {
		return false, fmt.Errorf("advance loans sequence: %w", err)
	}

	return inserted, tx.Commit(ctx)
}

func (s *Storage) DeleteLoan(ctx context.Context, id int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The loan owns its history: remove the entries in the same unit of work
	// rather than leaning on the FK cascade.
	if _, err := tx.Exec(ctx, `DELETE FROM loan_history WHERE loan_id = $1`, id); err != nil {
		return fmt.Errorf("delete loan history: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrLoanNotFound
	}

	return tx.Commit(ctx)
}

// === HistoryStorage ===

func (s *Storage) AppendHistory(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, entry.LoanID).Scan(&exists)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("check loan: %w", err)
	}
	if !exists {
		return domain.HistoryEntry{}, storage.ErrLoanNotFound
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO loan_history (loan_id, recorded_at, prepayment_amount, selic_rate, cdi_rate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, entry.LoanID, entry.RecordedAt, entry.PrepaymentAmount, entry.SelicRate, entry.CDIRate).Scan(&entry.ID)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("append history: %w", err)
	}
	return entry, nil
}

func (s *Storage) ListHistory(ctx context.Context, loanID int64) ([]domain.HistoryEntry, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, loanID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check loan: %w", err)
	}
	if !exists {
		return nil, storage.ErrLoanNotFound
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, loan_id, recorded_at, prepayment_amount, selic_rate, cdi_rate
		FROM loan_history
		WHERE loan_id = $1
		ORDER BY recorded_at, id
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (s *Storage) ListAllHistory(ctx context.Context) ([]domain.LoanHistory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT h.id, h.loan_id, h.recorded_at, h.prepayment_amount, h.selic_rate, h.cdi_rate,
			l.description
		FROM loan_history h
		JOIN loans l ON l.id = h.loan_id
		ORDER BY h.loan_id, h.recorded_at, h.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list all history: %w", err)
	}
	defer rows.Close()

	var grouped []domain.LoanHistory
	for rows.Next() {
		var entry domain.HistoryEntry
		var description string
		if err := rows.Scan(&entry.ID, &entry.LoanID, &entry.RecordedAt,
			&entry.PrepaymentAmount, &entry.SelicRate, &entry.CDIRate, &description); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		if len(grouped) == 0 || grouped[len(grouped)-1].LoanID != entry.LoanID {
			grouped = append(grouped, domain.LoanHistory{
				LoanID:      entry.LoanID,
				Description: description,
			})
		}
		last := &grouped[len(grouped)-1]
		last.Entries = append(last.Entries, entry)
	}
	return grouped, rows.Err()
}

func (s *Storage) InsertHistoryIfAbsent(ctx context.Context, entry domain.HistoryEntry) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO loan_history (id, loan_id, recorded_at, prepayment_amount, selic_rate, cdi_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.LoanID, entry.RecordedAt, entry.PrepaymentAmount, entry.SelicRate, entry.CDIRate)
	if err != nil {
		return false, fmt.Errorf("insert history %d: %w", entry.ID, err)
	}

	_, err = tx.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('loan_history', 'id'),
			GREATEST((SELECT COALESCE(MAX(id), 0) FROM loan_history), 1))
	`)
	if err != nil {
		return false, fmt.Errorf("advance history sequence: %w", err)
	}

	return result.RowsAffected() > 0, tx.Commit(ctx)
}

func collectEntries(rows pgx.Rows) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.LoanID, &entry.RecordedAt,
			&entry.PrepaymentAmount, &entry.SelicRate, &entry.CDIRate); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
