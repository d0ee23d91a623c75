package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate-backend/internal/domains/rules/model"
)

// fakeRuleRepo serves rules from memory.
type fakeRuleRepo struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*model.Rule
}

func newFakeRuleRepo(rules ...*model.Rule) *fakeRuleRepo {
	r := &fakeRuleRepo{rules: make(map[uuid.UUID]*model.Rule)}
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	return r
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule, ok := r.rules[id]; ok {
		return rule, nil
	}
	return nil, model.ErrRuleNotFound
}

func (r *fakeRuleRepo) Update(_ context.Context, rule *model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeRuleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, id)
	return nil
}

func (r *fakeRuleRepo) ListApplicable(_ context.Context, teamID uuid.UUID) ([]*model.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Rule
	for _, rule := range r.rules {
		if !rule.IsActive {
			continue
		}
		if rule.TeamID == nil || *rule.TeamID == teamID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) List(_ context.Context, _, _ int) ([]*model.Rule, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Rule
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out, len(out), nil
}

// noCache always misses, so evaluation hits the repo. Records
// invalidations.
type noCache struct {
	mu              sync.Mutex
	deleted         []string
	deletedPatterns []string
}

func (c *noCache) Get(_ context.Context, _ string, _ interface{}) (bool, error) { return false, nil }
func (c *noCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error {
	return nil
}
func (c *noCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, keys...)
	return nil
}
func (c *noCache) Ping(_ context.Context) error { return nil }
func (c *noCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletedPatterns = append(c.deletedPatterns, pattern)
	return nil
}
func (c *noCache) Increment(_ context.Context, _ string) (int64, error)      { return 0, nil }
func (c *noCache) Exists(_ context.Context, _ string) (bool, error)          { return false, nil }
func (c *noCache) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }
func (c *noCache) TTL(_ context.Context, _ string) (time.Duration, error)    { return 0, nil }

func limitRule(teamID *uuid.UUID, limit int64, priority int) *model.Rule {
	return &model.Rule{
		ID:       uuid.New(),
		TeamID:   teamID,
		Name:     "transaction limit",
		Type:     model.TypePaymentLimit,
		Action:   model.ActionDeny,
		Priority: priority,
		IsActive: true,
		Parameters: map[string]interface{}{
			"transaction_limit": float64(limit),
		},
	}
}

func initContext(teamID uuid.UUID, amount int64) model.EvaluationContext {
	return model.EvaluationContext{
		ContextType: model.ContextPaymentInit,
		TeamID:      teamID,
		Amount:      amount,
		Currency:    "RUB",
	}
}

func TestEvaluate_DenyShortCircuits(t *testing.T) {
	teamID := uuid.New()
	deny := limitRule(&teamID, 500000, 1)
	later := &model.Rule{
		ID:       uuid.New(),
		TeamID:   &teamID,
		Name:     "email check",
		Type:     model.TypeComplianceCheck,
		Action:   model.ActionWarn,
		Priority: 10,
		IsActive: true,
		Parameters: map[string]interface{}{
			"require_email": true,
		},
	}

	engine := NewEngine(newFakeRuleRepo(deny, later), &noCache{}, nil)

	result, err := engine.Evaluate(context.Background(), initContext(teamID, 600000))
	require.NoError(t, err)

	assert.False(t, result.IsAllowed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, deny.ID, result.Violations[0].RuleID)
	// The warn rule after the deny is never reached.
	assert.Empty(t, result.Warnings)
}

func TestEvaluate_AllowedUnderLimit(t *testing.T) {
	teamID := uuid.New()
	engine := NewEngine(newFakeRuleRepo(limitRule(&teamID, 500000, 1)), &noCache{}, nil)

	result, err := engine.Evaluate(context.Background(), initContext(teamID, 150000))
	require.NoError(t, err)
	assert.True(t, result.IsAllowed)
	assert.Equal(t, 1, result.RulesEvaluated)
}

func TestEvaluate_WarnDoesNotBlock(t *testing.T) {
	teamID := uuid.New()
	warn := limitRule(&teamID, 100000, 1)
	warn.Action = model.ActionWarn

	engine := NewEngine(newFakeRuleRepo(warn), &noCache{}, nil)

	result, err := engine.Evaluate(context.Background(), initContext(teamID, 200000))
	require.NoError(t, err)
	assert.True(t, result.IsAllowed)
	assert.True(t, result.IsWarning)
	require.Len(t, result.Warnings, 1)
}

func TestEvaluate_GlobalRulesApplyToEveryTeam(t *testing.T) {
	teamID := uuid.New()
	global := limitRule(nil, 500000, 1)

	engine := NewEngine(newFakeRuleRepo(global), &noCache{}, nil)

	result, err := engine.Evaluate(context.Background(), initContext(teamID, 600000))
	require.NoError(t, err)
	assert.False(t, result.IsAllowed)
}

func TestEvaluate_ValidityWindow(t *testing.T) {
	teamID := uuid.New()
	rule := limitRule(&teamID, 1, 1)
	past := time.Now().Add(-2 * time.Hour)
	expired := time.Now().Add(-time.Hour)
	rule.ValidFrom = &past
	rule.ValidTo = &expired

	engine := NewEngine(newFakeRuleRepo(rule), &noCache{}, nil)

	result, err := engine.Evaluate(context.Background(), initContext(teamID, 100))
	require.NoError(t, err)
	assert.True(t, result.IsAllowed)
	assert.Zero(t, result.RulesEvaluated)
}

func TestEvaluate_DailyLimit(t *testing.T) {
	teamID := uuid.New()
	rule := &model.Rule{
		ID:       uuid.New(),
		TeamID:   &teamID,
		Name:     "daily cap",
		Type:     model.TypePaymentLimit,
		Action:   model.ActionDeny,
		Priority: 1,
		IsActive: true,
		Parameters: map[string]interface{}{
			"daily_limit": float64(1000000),
		},
	}

	engine := NewEngine(newFakeRuleRepo(rule), &noCache{}, nil)

	ectx := initContext(teamID, 200000)
	ectx.DailyTotal = 900000

	result, err := engine.Evaluate(context.Background(), ectx)
	require.NoError(t, err)
	assert.False(t, result.IsAllowed)
}

func TestEvaluate_FraudThreshold(t *testing.T) {
	teamID := uuid.New()
	rule := &model.Rule{
		ID:       uuid.New(),
		TeamID:   &teamID,
		Name:     "risk gate",
		Type:     model.TypeFraudPrevention,
		Action:   model.ActionRequireApproval,
		Priority: 1,
		IsActive: true,
		Parameters: map[string]interface{}{
			"max_risk_score": float64(70),
		},
	}

	engine := NewEngine(newFakeRuleRepo(rule), &noCache{}, nil)

	ectx := initContext(teamID, 100)
	ectx.RiskScore = 85

	result, err := engine.Evaluate(context.Background(), ectx)
	require.NoError(t, err)
	assert.True(t, result.IsAllowed)
	assert.True(t, result.RequiresApproval)
}

func TestEvaluate_CurrencyAllowList(t *testing.T) {
	teamID := uuid.New()
	rule := &model.Rule{
		ID:                uuid.New(),
		TeamID:            &teamID,
		Name:              "rub only",
		Type:              model.TypeCurrencyValidation,
		Action:            model.ActionDeny,
		Priority:          1,
		IsActive:          true,
		AllowedCurrencies: []string{"RUB"},
	}

	engine := NewEngine(newFakeRuleRepo(rule), &noCache{}, nil)

	ectx := initContext(teamID, 100)
	ectx.Currency = "USD"

	result, err := engine.Evaluate(context.Background(), ectx)
	require.NoError(t, err)
	assert.False(t, result.IsAllowed)
}

func TestCRUD_InvalidatesCache(t *testing.T) {
	teamID := uuid.New()
	c := &noCache{}
	engine := NewEngine(newFakeRuleRepo(), c, nil)

	rule, err := engine.Create(context.Background(), model.CreateRuleRequest{
		TeamID: &teamID,
		Name:   "limit",
		Type:   model.TypePaymentLimit,
		Action: model.ActionDeny,
	})
	require.NoError(t, err)
	assert.Contains(t, c.deleted, ruleCacheKey(teamID))

	// Global rule mutations clear every team's entry.
	_, err = engine.Create(context.Background(), model.CreateRuleRequest{
		Name:   "global limit",
		Type:   model.TypePaymentLimit,
		Action: model.ActionDeny,
	})
	require.NoError(t, err)
	assert.Contains(t, c.deletedPatterns, "rules:applicable:*")

	require.NoError(t, engine.Delete(context.Background(), rule.ID))
}

func TestEvaluate_CustomValidationIsInert(t *testing.T) {
	teamID := uuid.New()
	rule := &model.Rule{
		ID:       uuid.New(),
		TeamID:   &teamID,
		Name:     "custom",
		Type:     model.TypeCustomValidation,
		Action:   model.ActionDeny,
		Priority: 1,
		IsActive: true,
		Parameters: map[string]interface{}{
			"expression": "amount > 100",
		},
	}

	engine := NewEngine(newFakeRuleRepo(rule), &noCache{}, nil)

	result, err := engine.Evaluate(context.Background(), initContext(teamID, 100000))
	require.NoError(t, err)
	assert.True(t, result.IsAllowed)
}
