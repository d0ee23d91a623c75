package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	auditmodel "paygate-backend/internal/domains/audit/model"
	auditservice "paygate-backend/internal/domains/audit/service"
	"paygate-backend/internal/domains/rules/model"
	"paygate-backend/internal/domains/rules/repository"
	"paygate-backend/pkg/cache"
	"paygate-backend/pkg/logger"
)

// =====================================================
// BUSINESS RULE ENGINE
// =====================================================
// Table-driven evaluator. Applicable rules (team union global) are
// cached per team; every rule mutation invalidates the team's cache
// entry so evaluations never see stale rules.

const (
	ruleCacheTTL = 5 * time.Minute
)

func ruleCacheKey(teamID uuid.UUID) string {
	return fmt.Sprintf("rules:applicable:%s", teamID)
}

type Engine struct {
	repo  repository.RuleRepository
	cache cache.Cache
	audit *auditservice.AuditService
	now   func() time.Time
}

func NewEngine(repo repository.RuleRepository, c cache.Cache, audit *auditservice.AuditService) *Engine {
	return &Engine{
		repo:  repo,
		cache: c,
		audit: audit,
		now:   time.Now,
	}
}

// Evaluate runs every applicable rule against the context.
//
// Business Logic Flow:
// 1. Load applicable rules (cache, then store) and keep the ones whose
//    validity window covers now.
// 2. Walk in ascending priority. A violated DENY rule short-circuits;
//    WARN violations accumulate without blocking;
//    REQUIRE_APPROVAL marks the result.
// 3. Record evaluation duration and outcome.
func (e *Engine) Evaluate(ctx context.Context, ectx model.EvaluationContext) (*model.EvaluationResult, error) {
	started := e.now()
	if ectx.Now.IsZero() {
		ectx.Now = started
	}

	rules, err := e.applicableRules(ctx, ectx.TeamID)
	if err != nil {
		return nil, err
	}

	result := &model.EvaluationResult{IsAllowed: true}

	for _, rule := range rules {
		if !rule.IsActiveAt(ectx.Now) {
			continue
		}
		result.RulesEvaluated++

		violated, message := evaluatePredicate(rule, ectx)
		if !violated {
			continue
		}

		violation := model.Violation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Type:     rule.Type,
			Action:   rule.Action,
			Message:  message,
		}

		switch rule.Action {
		case model.ActionDeny:
			result.IsAllowed = false
			result.Violations = append(result.Violations, violation)
			result.Duration = e.now().Sub(started)
			e.recordOutcome(ctx, ectx, result, rule)
			return result, nil
		case model.ActionWarn:
			result.IsWarning = true
			result.Warnings = append(result.Warnings, violation)
		case model.ActionRequireApproval:
			result.RequiresApproval = true
			result.Violations = append(result.Violations, violation)
		default:
			// ALLOW / APPLY_FEE / REDIRECT do not block; the caller
			// reads the violation list and applies its own policy.
			result.Violations = append(result.Violations, violation)
		}
	}

	result.Duration = e.now().Sub(started)
	e.recordOutcome(ctx, ectx, result, nil)
	return result, nil
}

func (e *Engine) recordOutcome(ctx context.Context, ectx model.EvaluationContext, result *model.EvaluationResult, denied *model.Rule) {
	logger.Info("rule evaluation completed", map[string]interface{}{
		"context":     string(ectx.ContextType),
		"team_id":     ectx.TeamID,
		"allowed":     result.IsAllowed,
		"warnings":    len(result.Warnings),
		"rules":       result.RulesEvaluated,
		"duration_us": result.Duration.Microseconds(),
	})

	if denied != nil && e.audit != nil {
		err := e.audit.Write(ctx, auditservice.Record{
			Entity:  denied,
			Action:  auditmodel.ActionRuleDenied,
			Details: fmt.Sprintf("rule %q denied %s", denied.Name, ectx.ContextType),
		})
		if err != nil {
			logger.Error("failed to audit rule denial", err)
		}
	}
}

// applicableRules loads the team's rule set through the cache.
func (e *Engine) applicableRules(ctx context.Context, teamID uuid.UUID) ([]*model.Rule, error) {
	var cached []*model.Rule
	found, err := e.cache.Get(ctx, ruleCacheKey(teamID), &cached)
	if err != nil {
		logger.Error("rule cache read failed", err)
	}
	if found {
		return cached, nil
	}

	rules, err := e.repo.ListApplicable(ctx, teamID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	if err := e.cache.Set(ctx, ruleCacheKey(teamID), rules, ruleCacheTTL); err != nil {
		logger.Error("rule cache write failed", err)
	}
	return rules, nil
}

// invalidate clears the applicable-rules cache for the affected team,
// or every team for global rules.
func (e *Engine) invalidate(ctx context.Context, teamID *uuid.UUID) {
	var err error
	if teamID == nil {
		err = e.cache.DeletePattern(ctx, "rules:applicable:*")
	} else {
		err = e.cache.Delete(ctx, ruleCacheKey(*teamID))
	}
	if err != nil {
		logger.Error("rule cache invalidation failed", err)
	}
}

// =====================================================
// RULE CRUD (serialised through cache invalidation)
// =====================================================

func (e *Engine) Create(ctx context.Context, req model.CreateRuleRequest) (*model.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule := &model.Rule{
		ID:                    uuid.New(),
		TeamID:                req.TeamID,
		Name:                  req.Name,
		Type:                  req.Type,
		Action:                req.Action,
		Priority:              req.Priority,
		IsActive:              true,
		ValidFrom:             req.ValidFrom,
		ValidTo:               req.ValidTo,
		Parameters:            req.Parameters,
		AllowedPaymentMethods: req.AllowedPaymentMethods,
		AllowedCurrencies:     req.AllowedCurrencies,
		AllowedCountries:      req.AllowedCountries,
	}

	if err := e.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	e.invalidate(ctx, rule.TeamID)
	e.auditMutation(ctx, rule, auditmodel.ActionRuleCreated)
	return rule, nil
}

func (e *Engine) Update(ctx context.Context, id uuid.UUID, req model.UpdateRuleRequest) (*model.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Action != nil {
		rule.Action = *req.Action
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.ValidFrom != nil {
		rule.ValidFrom = req.ValidFrom
	}
	if req.ValidTo != nil {
		rule.ValidTo = req.ValidTo
	}
	if req.Parameters != nil {
		rule.Parameters = req.Parameters
	}

	if err := e.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	e.invalidate(ctx, rule.TeamID)
	e.auditMutation(ctx, rule, auditmodel.ActionRuleUpdated)
	return rule, nil
}

func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	rule, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	e.invalidate(ctx, rule.TeamID)
	e.auditMutation(ctx, rule, auditmodel.ActionRuleDeleted)
	return nil
}

func (e *Engine) GetByID(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	return e.repo.GetByID(ctx, id)
}

func (e *Engine) List(ctx context.Context, page, limit int) ([]*model.Rule, int, error) {
	return e.repo.List(ctx, page, limit)
}

func (e *Engine) auditMutation(ctx context.Context, rule *model.Rule, action auditmodel.Action) {
	if e.audit == nil {
		return
	}
	err := e.audit.Write(ctx, auditservice.Record{
		Entity:        rule,
		Action:        action,
		Details:       fmt.Sprintf("rule %q (%s)", rule.Name, rule.Type),
		SnapshotAfter: rule,
	})
	if err != nil {
		logger.Error("failed to audit rule mutation", err)
	}
}
