package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate-backend/internal/domains/payment/model"
)

// =====================================================
// TRANSITION REPOSITORY IMPLEMENTATION
// =====================================================

type transitionRepository struct {
	pool *pgxpool.Pool
}

func NewTransitionRepository(pool *pgxpool.Pool) TransitionRepository {
	return &transitionRepository{pool: pool}
}

func (r *transitionRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*model.TransitionRecord, error) {
	query := `
		SELECT transition_id, payment_id, from_status, to_status,
		       transitioned_at, user_id, reason, context, is_rollback, rollback_of
		FROM payment_transitions
		WHERE payment_id = $1
		ORDER BY transitioned_at ASC, transition_id ASC
	`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var records []*model.TransitionRecord
	for rows.Next() {
		record, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
