package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/statemachine"
	"paygate-backend/pkg/database"
)

// =====================================================
// PAYMENT REPOSITORY IMPLEMENTATION
// =====================================================

const paymentColumns = `
	id, payment_id, order_id, team_id, team_slug,
	amount, currency, refunded_amount, refund_count,
	status, expires_at, authorization_attempts, max_allowed_attempts,
	initialized_at, form_showed_at, authorizing_at, authorized_at,
	confirmed_at, cancelled_at, reversed_at, refunded_at, rejected_at, expired_at,
	error_code, error_message, payment_url,
	description, email, customer_key, metadata, items, receipt,
	created_at, updated_at`

type paymentRepository struct {
	pool  *pgxpool.Pool
	hooks []TransitionHook
}

// NewPaymentRepository creates the pgx-backed payment repository.
// Hooks run inside every transition transaction, in order.
func NewPaymentRepository(pool *pgxpool.Pool, hooks ...TransitionHook) PaymentRepository {
	return &paymentRepository{pool: pool, hooks: hooks}
}

// ============================================
// WRITES
// ============================================

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (
			id, payment_id, order_id, team_id, team_slug,
			amount, currency, refunded_amount, refund_count,
			status, expires_at, authorization_attempts, max_allowed_attempts,
			initialized_at, error_code, error_message, payment_url,
			description, email, customer_key, metadata, items, receipt
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
		RETURNING created_at, updated_at
	`

	metadataJSON, itemsJSON, receiptJSON, err := marshalPaymentBlobs(p)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, query,
		p.ID, p.PaymentID, p.OrderID, p.TeamID, p.TeamSlug,
		p.Amount, p.Currency, p.RefundedAmount, p.RefundCount,
		p.Status, p.ExpiresAt, p.AuthorizationAttempts, p.MaxAllowedAttempts,
		p.InitializedAt, p.ErrorCode, p.ErrorMessage, p.PaymentURL,
		p.Description, p.Email, p.CustomerKey, metadataJSON, itemsJSON, receiptJSON,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrDuplicateOrder
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// SaveTransition persists the payment row, appends the transition
// record, and runs registered hooks, all in one transaction. The row
// update is guarded on the transition's from-status, so a writer whose
// copy went stale between read and write gets ErrStaleStatus instead of
// clobbering a newer state.
func (r *paymentRepository) SaveTransition(ctx context.Context, p *model.Payment, record *model.TransitionRecord) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.updateGuardedWithTx(ctx, tx, p, record.FromStatus); err != nil {
			return err
		}
		if err := insertTransition(ctx, tx, record); err != nil {
			return err
		}
		for _, hook := range r.hooks {
			if err := hook(ctx, tx, p, record); err != nil {
				return fmt.Errorf("transition hook failed: %w", err)
			}
		}
		return nil
	})
}

func (r *paymentRepository) updateWithTx(ctx context.Context, tx pgx.Tx, p *model.Payment) error {
	result, err := execUpdate(ctx, tx, p, `WHERE id = $1`)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return model.ErrPaymentNotFound
	}
	return nil
}

// updateGuardedWithTx is updateWithTx with a compare-and-swap on the
// expected current status.
func (r *paymentRepository) updateGuardedWithTx(ctx context.Context, tx pgx.Tx, p *model.Payment, from model.Status) error {
	result, err := execUpdate(ctx, tx, p, `WHERE id = $1 AND status = $19`, from)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s on payment %s", model.ErrStaleStatus, from, p.PaymentID)
	}
	return nil
}

func execUpdate(ctx context.Context, tx pgx.Tx, p *model.Payment, where string, extra ...interface{}) (pgconn.CommandTag, error) {
	query := `
		UPDATE payments SET
			status = $2, refunded_amount = $3, refund_count = $4,
			authorization_attempts = $5,
			form_showed_at = $6, authorizing_at = $7, authorized_at = $8,
			confirmed_at = $9, cancelled_at = $10, reversed_at = $11,
			refunded_at = $12, rejected_at = $13, expired_at = $14,
			error_code = $15, error_message = $16, payment_url = $17,
			updated_at = $18
		` + where

	args := []interface{}{
		p.ID, p.Status, p.RefundedAmount, p.RefundCount,
		p.AuthorizationAttempts,
		p.FormShowedAt, p.AuthorizingAt, p.AuthorizedAt,
		p.ConfirmedAt, p.CancelledAt, p.ReversedAt,
		p.RefundedAt, p.RejectedAt, p.ExpiredAt,
		p.ErrorCode, p.ErrorMessage, p.PaymentURL,
		p.UpdatedAt,
	}
	args = append(args, extra...)

	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("failed to update payment: %w", err)
	}
	return result, nil
}

func insertTransition(ctx context.Context, tx pgx.Tx, record *model.TransitionRecord) error {
	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal transition context: %w", err)
	}

	query := `
		INSERT INTO payment_transitions (
			transition_id, payment_id, from_status, to_status,
			transitioned_at, user_id, reason, context, is_rollback, rollback_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = tx.Exec(ctx, query,
		record.TransitionID, record.PaymentID, record.FromStatus, record.ToStatus,
		record.TransitionedAt, record.UserID, record.Reason, contextJSON,
		record.IsRollback, record.RollbackOf,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition record: %w", err)
	}
	return nil
}

func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		return r.updateWithTx(ctx, tx, p)
	})
}

func (r *paymentRepository) IncrementAuthorizationAttempts(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE payments
		SET authorization_attempts = authorization_attempts + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment authorization attempts: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrPaymentNotFound
	}
	return nil
}

// ============================================
// READS
// ============================================

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *paymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`
	return r.queryOne(ctx, query, paymentID)
}

func (r *paymentRepository) GetByTeamOrder(ctx context.Context, teamID uuid.UUID, orderID string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE team_id = $1 AND order_id = $2`

	p, err := r.queryOne(ctx, query, teamID, orderID)
	if errors.Is(err, model.ErrPaymentNotFound) {
		return nil, nil
	}
	return p, err
}

func (r *paymentRepository) ListActive(ctx context.Context, teamID uuid.UUID) ([]*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE team_id = $1 AND status != ALL($2)
		ORDER BY created_at DESC
	`
	return r.queryMany(ctx, query, teamID, terminalStatusList())
}

func (r *paymentRepository) ListExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE expires_at < $1 AND status = ANY($2)
		ORDER BY expires_at ASC
		LIMIT $3
	`
	return r.queryMany(ctx, query, now, expirableStatusList(), limit)
}

func (r *paymentRepository) ListByStatuses(ctx context.Context, statuses []model.Status, limit int) ([]*model.Payment, error) {
	list := make([]string, len(statuses))
	for i, s := range statuses {
		list[i] = string(s)
	}

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ANY($1)
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryMany(ctx, query, list, limit)
}

func (r *paymentRepository) List(ctx context.Context, req model.ListPaymentsRequest) ([]*model.Payment, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.TeamSlug != nil {
		where += fmt.Sprintf(" AND team_slug = $%d", argPos)
		args = append(args, *req.TeamSlug)
		argPos++
	}
	if req.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*req.Status))
		argPos++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM payments ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payments %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, paymentColumns, where, argPos, argPos+1)
	args = append(args, limit, (page-1)*limit)

	payments, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *paymentRepository) GetDailyTotal(ctx context.Context, teamID uuid.UUID, at time.Time) (int64, error) {
	dayStart := at.UTC().Truncate(24 * time.Hour)

	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE team_id = $1
		  AND status = ANY($2)
		  AND confirmed_at >= $3 AND confirmed_at < $4
	`

	settled := []string{
		string(model.StatusConfirmed),
		string(model.StatusPartialRefunded),
		string(model.StatusRefunded),
	}

	var total int64
	err := r.pool.QueryRow(ctx, query, teamID, settled, dayStart, dayStart.Add(24*time.Hour)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily total: %w", err)
	}
	return total, nil
}

func (r *paymentRepository) GetTransition(ctx context.Context, transitionID string) (*model.TransitionRecord, error) {
	query := `
		SELECT transition_id, payment_id, from_status, to_status,
		       transitioned_at, user_id, reason, context, is_rollback, rollback_of
		FROM payment_transitions
		WHERE transition_id = $1
	`

	record, err := scanTransition(r.pool.QueryRow(ctx, query, transitionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// ============================================
// SCAN HELPERS
// ============================================

func (r *paymentRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*model.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrPaymentNotFound
	}
	return p, err
}

func (r *paymentRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var metadataJSON, itemsJSON, receiptJSON []byte

	err := row.Scan(
		&p.ID, &p.PaymentID, &p.OrderID, &p.TeamID, &p.TeamSlug,
		&p.Amount, &p.Currency, &p.RefundedAmount, &p.RefundCount,
		&p.Status, &p.ExpiresAt, &p.AuthorizationAttempts, &p.MaxAllowedAttempts,
		&p.InitializedAt, &p.FormShowedAt, &p.AuthorizingAt, &p.AuthorizedAt,
		&p.ConfirmedAt, &p.CancelledAt, &p.ReversedAt, &p.RefundedAt, &p.RejectedAt, &p.ExpiredAt,
		&p.ErrorCode, &p.ErrorMessage, &p.PaymentURL,
		&p.Description, &p.Email, &p.CustomerKey, &metadataJSON, &itemsJSON, &receiptJSON,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment metadata: %w", err)
		}
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &p.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment items: %w", err)
		}
	}
	if len(receiptJSON) > 0 {
		if err := json.Unmarshal(receiptJSON, &p.Receipt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment receipt: %w", err)
		}
	}

	return &p, nil
}

func scanTransition(row pgx.Row) (*model.TransitionRecord, error) {
	var record model.TransitionRecord
	var contextJSON []byte

	err := row.Scan(
		&record.TransitionID, &record.PaymentID, &record.FromStatus, &record.ToStatus,
		&record.TransitionedAt, &record.UserID, &record.Reason, &contextJSON,
		&record.IsRollback, &record.RollbackOf,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transition record: %w", err)
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &record.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition context: %w", err)
		}
	}

	return &record, nil
}

func marshalPaymentBlobs(p *model.Payment) (metadata, items, receipt []byte, err error) {
	if metadata, err = json.Marshal(p.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal payment metadata: %w", err)
	}
	if items, err = json.Marshal(p.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal payment items: %w", err)
	}
	if receipt, err = json.Marshal(p.Receipt); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal payment receipt: %w", err)
	}
	return metadata, items, receipt, nil
}

// expirableStatusList narrows the expiry sweep to statuses the table
// actually permits to move to EXPIRED. Anything else would fail the
// sweep every minute and pin the head of the batch.
func expirableStatusList() []string {
	statuses := statemachine.ExpirableStatuses()
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func terminalStatusList() []string {
	return []string{
		string(model.StatusCancelled),
		string(model.StatusReversed),
		string(model.StatusRefunded),
		string(model.StatusRejected),
		string(model.StatusExpired),
		string(model.StatusDeadlineExpired),
	}
}
