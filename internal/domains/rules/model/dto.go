package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrRuleNotFound = errors.New("business rule not found")
)

// =====================================================
// CREATE / UPDATE RULE REQUESTS
// =====================================================

type CreateRuleRequest struct {
	TeamID                *uuid.UUID             `json:"team_id,omitempty"`
	Name                  string                 `json:"name"`
	Type                  RuleType               `json:"type"`
	Action                RuleAction             `json:"action"`
	Priority              int                    `json:"priority"`
	ValidFrom             *time.Time             `json:"valid_from,omitempty"`
	ValidTo               *time.Time             `json:"valid_to,omitempty"`
	Parameters            map[string]interface{} `json:"parameters,omitempty"`
	AllowedPaymentMethods []string               `json:"allowed_payment_methods,omitempty"`
	AllowedCurrencies     []string               `json:"allowed_currencies,omitempty"`
	AllowedCountries      []string               `json:"allowed_countries,omitempty"`
}

// Validate validates CreateRuleRequest
func (req CreateRuleRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&req.Type, validation.Required, validation.By(validRuleType)),
		validation.Field(&req.Action, validation.Required, validation.By(validRuleAction)),
		validation.Field(&req.Priority, validation.Min(0)),
	)
}

type UpdateRuleRequest struct {
	Name       *string                `json:"name,omitempty"`
	Action     *RuleAction            `json:"action,omitempty"`
	Priority   *int                   `json:"priority,omitempty"`
	IsActive   *bool                  `json:"is_active,omitempty"`
	ValidFrom  *time.Time             `json:"valid_from,omitempty"`
	ValidTo    *time.Time             `json:"valid_to,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Validate validates UpdateRuleRequest
func (req UpdateRuleRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Length(1, 128)),
	)
}

func validRuleType(value interface{}) error {
	t, _ := value.(RuleType)
	for _, v := range ValidRuleTypes {
		if t == v {
			return nil
		}
	}
	return validation.NewError("validation_rule_type", "unknown rule type")
}

func validRuleAction(value interface{}) error {
	a, _ := value.(RuleAction)
	for _, v := range ValidRuleActions {
		if a == v {
			return nil
		}
	}
	return validation.NewError("validation_rule_action", "unknown rule action")
}
