// internal/finance/finance.go
package finance

import (
	"time"

	"debt-tracker/internal/domain"
)

const (
	RecommendationPrepay = "prepay"
	RecommendationInvest = "invest"
)

// cdbShare is the fraction of CDI the reference CDB pays.
const cdbShare = 1.05

// Evaluation holds the derived fields presented alongside a loan. They are
// recomputed on every read and never persisted.
type Evaluation struct {
	DiscountMonthlyPercent float64 `json:"discount_monthly_percent"`
	CDBMonthlyReturn       float64 `json:"cdb_monthly_return"`
	Recommendation         string  `json:"recommendation"`
	InstallmentDiscount    float64 `json:"installment_discount"`
	TotalPotentialSavings  float64 `json:"total_potential_savings"`
	PayoffAmount           float64 `json:"payoff_amount"`
}

// MonthlyDiscountRate answers "paying prepayment now instead of installment
// later equals what monthly return, in percent". The denominator is the
// prepayment value, not the installment.
func MonthlyDiscountRate(installment, prepayment float64) float64 {
	if prepayment <= 0 {
		return 0
	}
	return ((installment - prepayment) / prepayment) * 100
}

// CDBMonthlyReturn approximates the monthly return of a CDB paying 105% of
// CDI, given the annualized CDI rate in percent. Flat division, not a
// compounded rate.
func CDBMonthlyReturn(cdiRate float64) float64 {
	return (cdiRate * cdbShare) / 12
}

// Recommend compares the prepayment discount rate against the CDB return.
// Ties favor investing.
func Recommend(discountRate, cdbReturn float64) string {
	if discountRate > cdbReturn {
		return RecommendationPrepay
	}
	return RecommendationInvest
}

// RemainingInstallments projects how many installments are still owed as of
// the given date. A month counts as elapsed once its due day has arrived.
// Pure year/month/day arithmetic; asOf must be passed in by the caller so the
// function never reads the clock.
func RemainingInstallments(registeredAt time.Time, totalInstallments, dueDay int, asOf time.Time) int {
	elapsed := (asOf.Year()-registeredAt.Year())*12 + int(asOf.Month()) - int(registeredAt.Month())
	if asOf.Day() >= dueDay {
		elapsed++
	}
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := totalInstallments - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Evaluate derives the presentation fields for a loan from its stored state.
func Evaluate(loan domain.Loan) Evaluation {
	discountRate := MonthlyDiscountRate(loan.InstallmentAmount, loan.PrepaymentAmount)
	cdbReturn := CDBMonthlyReturn(loan.CDIRate)
	discount := loan.InstallmentAmount - loan.PrepaymentAmount
	remaining := float64(loan.RemainingInstallments)

	return Evaluation{
		DiscountMonthlyPercent: discountRate,
		CDBMonthlyReturn:       cdbReturn,
		Recommendation:         Recommend(discountRate, cdbReturn),
		InstallmentDiscount:    discount,
		TotalPotentialSavings:  discount * remaining,
		PayoffAmount:           loan.PrepaymentAmount * remaining,
	}
}
