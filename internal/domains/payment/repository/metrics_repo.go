package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"paygate-backend/internal/domains/payment/model"
)

// =====================================================
// METRICS REPOSITORY
// =====================================================

type MetricsRepository interface {
	// Aggregate computes the counters for one period straight from the
	// payments table.
	Aggregate(ctx context.Context, from, to time.Time) (*model.MetricsRollup, error)

	// SaveRollup persists a period record.
	SaveRollup(ctx context.Context, rollup *model.MetricsRollup) error

	// ListRollups returns the newest period records.
	ListRollups(ctx context.Context, limit int) ([]*model.MetricsRollup, error)
}

type metricsRepository struct {
	pool *pgxpool.Pool
}

func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) Aggregate(ctx context.Context, from, to time.Time) (*model.MetricsRollup, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('CONFIRMED', 'REFUNDING', 'PARTIAL_REFUNDED', 'REFUNDED')),
			COUNT(*) FILTER (WHERE status IN ('AUTH_FAIL', 'REJECTED')),
			COUNT(*) FILTER (WHERE status IN ('EXPIRED', 'DEADLINE_EXPIRED')),
			COUNT(*) FILTER (WHERE status IN ('REFUNDED', 'PARTIAL_REFUNDED')),
			COALESCE(SUM(amount) FILTER (WHERE confirmed_at IS NOT NULL), 0),
			COALESCE(SUM(refunded_amount), 0)
		FROM payments
		WHERE created_at >= $1 AND created_at < $2`

	rollup := &model.MetricsRollup{
		ID:          uuid.New(),
		PeriodStart: from,
		PeriodEnd:   to,
		CreatedAt:   time.Now(),
	}

	var gross, refunded int64
	err := r.pool.QueryRow(ctx, query, from, to).Scan(
		&rollup.TotalCount,
		&rollup.ConfirmedCount,
		&rollup.FailedCount,
		&rollup.ExpiredCount,
		&rollup.RefundedCount,
		&gross,
		&refunded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payment metrics: %w", err)
	}

	rollup.GrossAmount = decimal.NewFromInt(gross)
	rollup.RefundedAmount = decimal.NewFromInt(refunded)
	rollup.FillDerived()
	return rollup, nil
}

func (r *metricsRepository) SaveRollup(ctx context.Context, rollup *model.MetricsRollup) error {
	query := `
		INSERT INTO payment_metrics_rollups (
			id, period_start, period_end,
			total_count, confirmed_count, failed_count, expired_count, refunded_count,
			gross_amount, refunded_amount, average_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		rollup.ID, rollup.PeriodStart, rollup.PeriodEnd,
		rollup.TotalCount, rollup.ConfirmedCount, rollup.FailedCount,
		rollup.ExpiredCount, rollup.RefundedCount,
		rollup.GrossAmount, rollup.RefundedAmount, rollup.AverageAmount,
		rollup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save metrics rollup: %w", err)
	}
	return nil
}

func (r *metricsRepository) ListRollups(ctx context.Context, limit int) ([]*model.MetricsRollup, error) {
	query := `
		SELECT id, period_start, period_end,
			total_count, confirmed_count, failed_count, expired_count, refunded_count,
			gross_amount, refunded_amount, average_amount, created_at
		FROM payment_metrics_rollups
		ORDER BY period_start DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics rollups: %w", err)
	}
	defer rows.Close()

	var out []*model.MetricsRollup
	for rows.Next() {
		m := &model.MetricsRollup{}
		err := rows.Scan(
			&m.ID, &m.PeriodStart, &m.PeriodEnd,
			&m.TotalCount, &m.ConfirmedCount, &m.FailedCount,
			&m.ExpiredCount, &m.RefundedCount,
			&m.GrossAmount, &m.RefundedAmount, &m.AverageAmount,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics rollup: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
