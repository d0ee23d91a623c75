package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate-backend/internal/domains/payment/model"
)

// =====================================================
// RETRY REPOSITORY IMPLEMENTATION
// =====================================================

type retryRepository struct {
	pool *pgxpool.Pool
}

func NewRetryRepository(pool *pgxpool.Pool) RetryRepository {
	return &retryRepository{pool: pool}
}

func (r *retryRepository) CreateAttempt(ctx context.Context, attempt *model.RetryAttempt) error {
	metadataJSON, err := json.Marshal(attempt.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt metadata: %w", err)
	}

	query := `
		INSERT INTO payment_retry_attempts (
			id, payment_id, attempt_number, attempted_at, is_success,
			error_code, error_message, duration_ms,
			status_before, status_after, policy_name, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.pool.Exec(ctx, query,
		attempt.ID, attempt.PaymentID, attempt.AttemptNumber, attempt.AttemptedAt,
		attempt.IsSuccess, attempt.ErrorCode, attempt.ErrorMessage,
		attempt.Duration.Milliseconds(),
		attempt.StatusBefore, attempt.StatusAfter, attempt.PolicyName, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert retry attempt: %w", err)
	}
	return nil
}

func (r *retryRepository) CountByPayment(ctx context.Context, paymentID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM payment_retry_attempts WHERE payment_id = $1`

	if err := r.pool.QueryRow(ctx, query, paymentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count retry attempts: %w", err)
	}
	return count, nil
}

func (r *retryRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*model.RetryAttempt, error) {
	query := `
		SELECT id, payment_id, attempt_number, attempted_at, is_success,
		       error_code, error_message, duration_ms,
		       status_before, status_after, policy_name, metadata
		FROM payment_retry_attempts
		WHERE payment_id = $1
		ORDER BY attempt_number ASC
	`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.RetryAttempt
	for rows.Next() {
		var a model.RetryAttempt
		var durationMs int64
		var metadataJSON []byte

		err := rows.Scan(
			&a.ID, &a.PaymentID, &a.AttemptNumber, &a.AttemptedAt, &a.IsSuccess,
			&a.ErrorCode, &a.ErrorMessage, &durationMs,
			&a.StatusBefore, &a.StatusAfter, &a.PolicyName, &metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry attempt: %w", err)
		}

		a.Duration = time.Duration(durationMs) * time.Millisecond
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attempt metadata: %w", err)
			}
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
