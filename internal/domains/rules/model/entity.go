package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// BUSINESS RULE ENTITY
// =====================================================

// Rule is one table-driven guard. A nil TeamID makes the rule global;
// team rules are evaluated together with global ones.
type Rule struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	TeamID   *uuid.UUID `json:"team_id,omitempty" db:"team_id"`
	Name     string     `json:"name" db:"name"`
	Type     RuleType   `json:"type" db:"type"`
	Action   RuleAction `json:"action" db:"action"`
	Priority int        `json:"priority" db:"priority"`
	IsActive bool       `json:"is_active" db:"is_active"`

	ValidFrom *time.Time `json:"valid_from,omitempty" db:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty" db:"valid_to"`

	// Parameters supply predicate thresholds (transaction_limit,
	// min_amount, max_risk_score, ...).
	Parameters map[string]interface{} `json:"parameters,omitempty" db:"parameters"`

	// Optional allow-lists.
	AllowedPaymentMethods []string `json:"allowed_payment_methods,omitempty" db:"allowed_payment_methods"`
	AllowedCurrencies     []string `json:"allowed_currencies,omitempty" db:"allowed_currencies"`
	AllowedCountries      []string `json:"allowed_countries,omitempty" db:"allowed_countries"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsActiveAt checks the activity flag and the validity window.
func (r *Rule) IsActiveAt(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return false
	}
	return true
}

// EntityID implements audit.Auditable.
func (r *Rule) EntityID() string { return r.ID.String() }

// EntityType implements audit.Auditable.
func (r *Rule) EntityType() string { return "business_rule" }

// =====================================================
// EVALUATION CONTEXT / RESULT
// =====================================================

// EvaluationContext carries the facts predicates read.
type EvaluationContext struct {
	ContextType   ContextType
	TeamID        uuid.UUID
	Amount        int64
	Currency      string
	Country       string
	PaymentMethod string
	CustomerKey   string
	Email         string
	DailyTotal    int64
	RiskScore     int
	Now           time.Time
}

// Violation names one failed rule check.
type Violation struct {
	RuleID   uuid.UUID  `json:"rule_id"`
	RuleName string     `json:"rule_name"`
	Type     RuleType   `json:"type"`
	Action   RuleAction `json:"action"`
	Message  string     `json:"message"`
}

// EvaluationResult is the engine's verdict.
type EvaluationResult struct {
	IsAllowed        bool          `json:"is_allowed"`
	IsWarning        bool          `json:"is_warning"`
	RequiresApproval bool          `json:"requires_approval"`
	Violations       []Violation   `json:"violations,omitempty"`
	Warnings         []Violation   `json:"warnings,omitempty"`
	Duration         time.Duration `json:"duration"`
	RulesEvaluated   int           `json:"rules_evaluated"`
}

// ViolationMessages flattens violations for error construction.
func (r *EvaluationResult) ViolationMessages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message)
	}
	return out
}
