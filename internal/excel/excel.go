// internal/excel/excel.go
package excel

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"debt-tracker/internal/domain"
)

const (
	LoansSheet   = "Loans"
	HistorySheet = "History"

	maxColumnWidth = 50
)

var loanHeaders = []string{
	"ID", "Description", "Creditor", "Installment Amount", "Prepayment Amount",
	"Total Installments", "Remaining Installments", "SELIC Rate (%)", "CDI Rate (%)",
	"Registered At", "Due Day",
}

var historyHeaders = []string{
	"ID", "Loan ID", "Recorded At", "Prepayment Amount", "SELIC Rate (%)", "CDI Rate (%)",
}

// Build renders the full data set as a two-sheet workbook. The history sheet
// is only created when there are entries, matching the backup layout Import
// reads back.
func Build(loans []domain.Loan, entries []domain.HistoryEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", LoansSheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeHeader(f, LoansSheet, loanHeaders, headerStyle); err != nil {
		return nil, err
	}
	for i, loan := range loans {
		row := i + 2
		values := []any{
			loan.ID, loan.Description, loan.Creditor, loan.InstallmentAmount,
			loan.PrepaymentAmount, loan.TotalInstallments, loan.RemainingInstallments,
			loan.SelicRate, loan.CDIRate, loan.RegisteredAt.Format(domain.DateOnly), loan.DueDay,
		}
		if err := writeRow(f, LoansSheet, row, values); err != nil {
			return nil, err
		}
	}
	fitColumns(f, LoansSheet, len(loanHeaders))

	if len(entries) > 0 {
		if _, err := f.NewSheet(HistorySheet); err != nil {
			return nil, fmt.Errorf("create history sheet: %w", err)
		}
		if err := writeHeader(f, HistorySheet, historyHeaders, headerStyle); err != nil {
			return nil, err
		}
		for i, entry := range entries {
			row := i + 2
			values := []any{
				entry.ID, entry.LoanID, entry.RecordedAt.Format(domain.DateOnly),
				entry.PrepaymentAmount, optionalRate(entry.SelicRate), optionalRate(entry.CDIRate),
			}
			if err := writeRow(f, HistorySheet, row, values); err != nil {
				return nil, err
			}
		}
		fitColumns(f, HistorySheet, len(historyHeaders))
	}

	return f, nil
}

// Parse reads a workbook in the Build layout. Rows with an empty id cell are
// skipped. Missing sheets simply contribute nothing.
func Parse(r io.Reader) ([]domain.Loan, []domain.HistoryEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var loans []domain.Loan
	if rows, err := f.GetRows(LoansSheet); err == nil {
		for i, row := range rows {
			if i == 0 || cell(row, 0) == "" {
				continue
			}
			loan, err := parseLoanRow(row)
			if err != nil {
				return nil, nil, fmt.Errorf("loans row %d: %w", i+1, err)
			}
			loans = append(loans, loan)
		}
	}

	var entries []domain.HistoryEntry
	if rows, err := f.GetRows(HistorySheet); err == nil {
		for i, row := range rows {
			if i == 0 || cell(row, 0) == "" {
				continue
			}
			entry, err := parseHistoryRow(row)
			if err != nil {
				return nil, nil, fmt.Errorf("history row %d: %w", i+1, err)
			}
			entries = append(entries, entry)
		}
	}

	return loans, entries, nil
}

func parseLoanRow(row []string) (domain.Loan, error) {
	var (
		loan domain.Loan
		err  error
	)
	if loan.ID, err = strconv.ParseInt(cell(row, 0), 10, 64); err != nil {
		return domain.Loan{}, fmt.Errorf("id: %w", err)
	}
	loan.Description = cell(row, 1)
	loan.Creditor = cell(row, 2)
	if loan.InstallmentAmount, err = parseAmount(cell(row, 3)); err != nil {
		return domain.Loan{}, fmt.Errorf("installment amount: %w", err)
	}
	if loan.PrepaymentAmount, err = parseAmount(cell(row, 4)); err != nil {
		return domain.Loan{}, fmt.Errorf("prepayment amount: %w", err)
	}
	if loan.TotalInstallments, err = strconv.Atoi(cell(row, 5)); err != nil {
		return domain.Loan{}, fmt.Errorf("total installments: %w", err)
	}
	if loan.RemainingInstallments, err = strconv.Atoi(cell(row, 6)); err != nil {
		return domain.Loan{}, fmt.Errorf("remaining installments: %w", err)
	}
	if loan.SelicRate, err = parseAmount(cell(row, 7)); err != nil {
		return domain.Loan{}, fmt.Errorf("selic rate: %w", err)
	}
	if loan.CDIRate, err = parseAmount(cell(row, 8)); err != nil {
		return domain.Loan{}, fmt.Errorf("cdi rate: %w", err)
	}
	if loan.RegisteredAt, err = time.Parse(domain.DateOnly, cell(row, 9)); err != nil {
		return domain.Loan{}, fmt.Errorf("registered at: %w", err)
	}
	if loan.DueDay, err = strconv.Atoi(cell(row, 10)); err != nil {
		return domain.Loan{}, fmt.Errorf("due day: %w", err)
	}
	return loan, nil
}

func parseHistoryRow(row []string) (domain.HistoryEntry, error) {
	var (
		entry domain.HistoryEntry
		err   error
	)
	if entry.ID, err = strconv.ParseInt(cell(row, 0), 10, 64); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("id: %w", err)
	}
	if entry.LoanID, err = strconv.ParseInt(cell(row, 1), 10, 64); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("loan id: %w", err)
	}
	if entry.RecordedAt, err = time.Parse(domain.DateOnly, cell(row, 2)); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("recorded at: %w", err)
	}
	if entry.PrepaymentAmount, err = parseAmount(cell(row, 3)); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("prepayment amount: %w", err)
	}
	if entry.SelicRate, err = parseOptionalRate(cell(row, 4)); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("selic rate: %w", err)
	}
	if entry.CDIRate, err = parseOptionalRate(cell(row, 5)); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("cdi rate: %w", err)
	}
	return entry, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	if err := writeRow(f, sheet, 1, toAny(headers)); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, value := range values {
		if value == nil {
			continue
		}
		cellName, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cellName, value); err != nil {
			return fmt.Errorf("set cell %s: %w", cellName, err)
		}
	}
	return nil
}

// fitColumns widens each column to its longest cell, capped like the backups
// users are used to.
func fitColumns(f *excelize.File, sheet string, columns int) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return
	}
	for col := 0; col < columns; col++ {
		width := 0
		for _, row := range rows {
			if n := len(cell(row, col)); n > width {
				width = n
			}
		}
		width += 2
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			continue
		}
		_ = f.SetColWidth(sheet, name, name, float64(width))
	}
}

func optionalRate(rate *float64) any {
	if rate == nil {
		return nil
	}
	return *rate
}

func parseOptionalRate(value string) (*float64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	rate, err := parseAmount(value)
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func parseAmount(value string) (float64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
