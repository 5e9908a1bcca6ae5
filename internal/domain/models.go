// internal/domain/models.go
package domain

import "time"

// Loan — one tracked debt obligation with a fixed installment schedule.
type Loan struct {
	ID                    int64     `json:"id"`
	Description           string    `json:"description"`
	Creditor              string    `json:"creditor"`
	InstallmentAmount     float64   `json:"installment_amount"`
	TotalInstallments     int       `json:"total_installments"`
	RemainingInstallments int       `json:"remaining_installments"`
	PrepaymentAmount      float64   `json:"prepayment_amount"`
	SelicRate             float64   `json:"selic_rate"`
	CDIRate               float64   `json:"cdi_rate"`
	RegisteredAt          time.Time `json:"-"`
	DueDay                int       `json:"due_day"`
}

// HistoryEntry — one prepayment quote recorded against a loan. Append-only.
type HistoryEntry struct {
	ID               int64     `json:"id"`
	LoanID           int64     `json:"loan_id"`
	RecordedAt       time.Time `json:"-"`
	PrepaymentAmount float64   `json:"prepayment_amount"`
	SelicRate        *float64  `json:"selic_rate"`
	CDIRate          *float64  `json:"cdi_rate"`
}

// LoanHistory groups a loan's history entries for the evolution view.
type LoanHistory struct {
	LoanID      int64          `json:"loan_id"`
	Description string         `json:"description"`
	Entries     []HistoryEntry `json:"entries"`
}

// OfferUpdate carries the fields of the "update offer" action. AsOf is the
// date the projection of remaining installments is computed against.
type OfferUpdate struct {
	PrepaymentAmount float64
	SelicRate        float64
	CDIRate          float64
	AsOf             time.Time
}

// RateQuote — benchmark rates as fetched from BACEN. A nil side means the
// series was unavailable, which is distinct from a zero rate.
type RateQuote struct {
	Selic     *float64  `json:"selic"`
	CDI       *float64  `json:"cdi"`
	FetchedAt time.Time `json:"fetched_at"`
}

// DateOnly is the wire format for calendar dates.
const DateOnly = "2006-01-02"
