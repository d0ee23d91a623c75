package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =====================================================
// METRICS ROLLUP
// =====================================================

// MetricsRollup is one aggregated period record produced by the rollup
// worker. Monetary sums are decimal so downstream reporting can divide
// without integer truncation.
type MetricsRollup struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	TotalCount     int `json:"total_count" db:"total_count"`
	ConfirmedCount int `json:"confirmed_count" db:"confirmed_count"`
	FailedCount    int `json:"failed_count" db:"failed_count"`
	ExpiredCount   int `json:"expired_count" db:"expired_count"`
	RefundedCount  int `json:"refunded_count" db:"refunded_count"`

	GrossAmount    decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount" db:"refunded_amount"`
	AverageAmount  decimal.Decimal `json:"average_amount" db:"average_amount"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FillDerived computes the average from the sums.
func (m *MetricsRollup) FillDerived() {
	if m.ConfirmedCount > 0 {
		m.AverageAmount = m.GrossAmount.DivRound(decimal.NewFromInt(int64(m.ConfirmedCount)), 2)
	} else {
		m.AverageAmount = decimal.Zero
	}
}
