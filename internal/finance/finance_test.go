// internal/finance/finance_test.go
package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"debt-tracker/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthlyDiscountRate(t *testing.T) {
	tests := []struct {
		name        string
		installment float64
		prepayment  float64
		want        float64
	}{
		{"zero prepayment", 1000, 0, 0},
		{"negative prepayment", 1000, -50, 0},
		{"typical offer", 1000, 950, 5.263157894736842},
		{"offer equals installment", 1000, 1000, 0},
		{"offer above installment", 1000, 1100, -9.090909090909092},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MonthlyDiscountRate(tt.installment, tt.prepayment), 1e-9)
		})
	}
}

func TestCDBMonthlyReturn(t *testing.T) {
	assert.InDelta(t, 0.91875, CDBMonthlyReturn(10.5), 1e-9)
	assert.Zero(t, CDBMonthlyReturn(0))

	// Linear in the benchmark rate.
	assert.InDelta(t, 2*CDBMonthlyReturn(10.5), CDBMonthlyReturn(21.0), 1e-9)
}

func TestRecommend(t *testing.T) {
	assert.Equal(t, RecommendationPrepay, Recommend(1.0, 0.9))
	assert.Equal(t, RecommendationInvest, Recommend(0.8, 0.9))

	// Ties favor investing.
	assert.Equal(t, RecommendationInvest, Recommend(0.9, 0.9))
}

func TestRemainingInstallments(t *testing.T) {
	registered := date(2024, time.January, 10)

	tests := []struct {
		name string
		asOf time.Time
		want int
	}{
		{"day before due day", date(2024, time.January, 9), 12},
		{"on due day", date(2024, time.January, 10), 11},
		{"after due day same month", date(2024, time.January, 25), 11},
		{"next month before due day", date(2024, time.February, 5), 11},
		{"next month on due day", date(2024, time.February, 10), 10},
		{"far past schedule end, floored at zero", date(2025, time.January, 15), 0},
		{"as-of before registration", date(2023, time.June, 1), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemainingInstallments(registered, 12, 10, tt.asOf))
		})
	}
}

func TestEvaluate(t *testing.T) {
	loan := domain.Loan{
		InstallmentAmount:     1000,
		PrepaymentAmount:      950,
		RemainingInstallments: 10,
		CDIRate:               10.5,
	}

	eval := Evaluate(loan)

	assert.InDelta(t, 5.263157894736842, eval.DiscountMonthlyPercent, 1e-9)
	assert.InDelta(t, 0.91875, eval.CDBMonthlyReturn, 1e-9)
	assert.Equal(t, RecommendationPrepay, eval.Recommendation)
	assert.InDelta(t, 50.0, eval.InstallmentDiscount, 1e-9)
	assert.InDelta(t, 500.0, eval.TotalPotentialSavings, 1e-9)
	assert.InDelta(t, 9500.0, eval.PayoffAmount, 1e-9)
}

func TestEvaluateNoOffer(t *testing.T) {
	loan := domain.Loan{
		InstallmentAmount:     800,
		PrepaymentAmount:      0,
		RemainingInstallments: 6,
		CDIRate:               12.0,
	}

	eval := Evaluate(loan)

	assert.Zero(t, eval.DiscountMonthlyPercent)
	assert.Equal(t, RecommendationInvest, eval.Recommendation)
	assert.InDelta(t, 4800.0, eval.TotalPotentialSavings, 1e-9)
	assert.Zero(t, eval.PayoffAmount)
}
