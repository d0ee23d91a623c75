package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate-backend/internal/domains/rules/model"
)

// =====================================================
// RULE REPOSITORY
// =====================================================

type RuleRepository interface {
	Create(ctx context.Context, rule *model.Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Rule, error)
	Update(ctx context.Context, rule *model.Rule) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListApplicable returns active team rules union global rules.
	ListApplicable(ctx context.Context, teamID uuid.UUID) ([]*model.Rule, error)

	List(ctx context.Context, page, limit int) ([]*model.Rule, int, error)
}

const ruleColumns = `
	id, team_id, name, type, action, priority, is_active,
	valid_from, valid_to, parameters,
	allowed_payment_methods, allowed_currencies, allowed_countries,
	created_at, updated_at`

type ruleRepository struct {
	pool *pgxpool.Pool
}

func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.Rule) error {
	paramsJSON, err := json.Marshal(rule.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal rule parameters: %w", err)
	}

	query := `
		INSERT INTO business_rules (
			id, team_id, name, type, action, priority, is_active,
			valid_from, valid_to, parameters,
			allowed_payment_methods, allowed_currencies, allowed_countries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		rule.ID, rule.TeamID, rule.Name, rule.Type, rule.Action, rule.Priority, rule.IsActive,
		rule.ValidFrom, rule.ValidTo, paramsJSON,
		rule.AllowedPaymentMethods, rule.AllowedCurrencies, rule.AllowedCountries,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM business_rules WHERE id = $1`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrRuleNotFound
	}
	return rule, err
}

func (r *ruleRepository) Update(ctx context.Context, rule *model.Rule) error {
	paramsJSON, err := json.Marshal(rule.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal rule parameters: %w", err)
	}

	query := `
		UPDATE business_rules SET
			name = $2, action = $3, priority = $4, is_active = $5,
			valid_from = $6, valid_to = $7, parameters = $8,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		rule.ID, rule.Name, rule.Action, rule.Priority, rule.IsActive,
		rule.ValidFrom, rule.ValidTo, paramsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM business_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepository) ListApplicable(ctx context.Context, teamID uuid.UUID) ([]*model.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM business_rules
		WHERE is_active = TRUE AND (team_id IS NULL OR team_id = $1)
		ORDER BY priority ASC, created_at ASC
	`
	return r.queryMany(ctx, query, teamID)
}

func (r *ruleRepository) List(ctx context.Context, page, limit int) ([]*model.Rule, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM business_rules`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	query := `SELECT ` + ruleColumns + ` FROM business_rules ORDER BY priority ASC LIMIT $1 OFFSET $2`
	rules, err := r.queryMany(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (r *ruleRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*model.Rule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row pgx.Row) (*model.Rule, error) {
	var rule model.Rule
	var paramsJSON []byte

	err := row.Scan(
		&rule.ID, &rule.TeamID, &rule.Name, &rule.Type, &rule.Action, &rule.Priority, &rule.IsActive,
		&rule.ValidFrom, &rule.ValidTo, &paramsJSON,
		&rule.AllowedPaymentMethods, &rule.AllowedCurrencies, &rule.AllowedCountries,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &rule.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule parameters: %w", err)
		}
	}
	return &rule, nil
}
