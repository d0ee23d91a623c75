package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate-backend/internal/domains/team/model"
)

// =====================================================
// TEAM REPOSITORY
// =====================================================

type TeamRepository interface {
	Create(ctx context.Context, team *model.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Team, error)
	GetBySlug(ctx context.Context, slug string) (*model.Team, error)
	Update(ctx context.Context, team *model.Team) error
	List(ctx context.Context, page, limit int) ([]*model.Team, int, error)

	// RecordAuthFailure bumps the failure counter and sets the lockout
	// when lockUntil is non-nil.
	RecordAuthFailure(ctx context.Context, id uuid.UUID, lockUntil *time.Time) error

	// ResetAuthFailures clears the counter and any lockout.
	ResetAuthFailures(ctx context.Context, id uuid.UUID) error
}

const teamColumns = `
	id, team_slug, name, email, is_active,
	password, dashboard_password_hash, failed_auth_count, locked_until,
	min_payment_amount, max_payment_amount, daily_payment_limit,
	supported_currencies, webhook_url, retry_enabled, fraud_check_enabled,
	created_at, updated_at`

type teamRepository struct {
	pool *pgxpool.Pool
}

func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) Create(ctx context.Context, t *model.Team) error {
	query := `
		INSERT INTO teams (
			id, team_slug, name, email, is_active,
			password, dashboard_password_hash,
			min_payment_amount, max_payment_amount, daily_payment_limit,
			supported_currencies, webhook_url, retry_enabled, fraud_check_enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		t.ID, t.TeamSlug, t.Name, t.Email, t.IsActive,
		t.Password, t.DashboardPasswordHash,
		t.MinPaymentAmount, t.MaxPaymentAmount, t.DailyPaymentLimit,
		t.SupportedCurrencies, t.WebhookURL, t.RetryEnabled, t.FraudCheckEnabled,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrSlugTaken
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *teamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *teamRepository) GetBySlug(ctx context.Context, slug string) (*model.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE team_slug = $1`
	return r.queryOne(ctx, query, slug)
}

func (r *teamRepository) Update(ctx context.Context, t *model.Team) error {
	query := `
		UPDATE teams SET
			name = $2, is_active = $3,
			min_payment_amount = $4, max_payment_amount = $5, daily_payment_limit = $6,
			supported_currencies = $7, webhook_url = $8,
			retry_enabled = $9, fraud_check_enabled = $10,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		t.ID, t.Name, t.IsActive,
		t.MinPaymentAmount, t.MaxPaymentAmount, t.DailyPaymentLimit,
		t.SupportedCurrencies, t.WebhookURL,
		t.RetryEnabled, t.FraudCheckEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTeamNotFound
	}
	return nil
}

func (r *teamRepository) List(ctx context.Context, page, limit int) ([]*model.Team, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM teams`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count teams: %w", err)
	}

	query := `SELECT ` + teamColumns + ` FROM teams ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []*model.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, 0, err
		}
		teams = append(teams, t)
	}
	return teams, total, rows.Err()
}

func (r *teamRepository) RecordAuthFailure(ctx context.Context, id uuid.UUID, lockUntil *time.Time) error {
	query := `
		UPDATE teams
		SET failed_auth_count = failed_auth_count + 1,
			locked_until = COALESCE($2, locked_until),
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, lockUntil)
	if err != nil {
		return fmt.Errorf("failed to record auth failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTeamNotFound
	}
	return nil
}

func (r *teamRepository) ResetAuthFailures(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE teams
		SET failed_auth_count = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reset auth failures: %w", err)
	}
	return nil
}

func (r *teamRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*model.Team, error) {
	t, err := scanTeam(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTeamNotFound
	}
	return t, err
}

func scanTeam(row pgx.Row) (*model.Team, error) {
	var t model.Team

	err := row.Scan(
		&t.ID, &t.TeamSlug, &t.Name, &t.Email, &t.IsActive,
		&t.Password, &t.DashboardPasswordHash, &t.FailedAuthCount, &t.LockedUntil,
		&t.MinPaymentAmount, &t.MaxPaymentAmount, &t.DailyPaymentLimit,
		&t.SupportedCurrencies, &t.WebhookURL, &t.RetryEnabled, &t.FraudCheckEnabled,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan team: %w", err)
	}
	return &t, nil
}
