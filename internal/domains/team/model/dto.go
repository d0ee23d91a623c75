package model

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// =====================================================
// CREATE TEAM REQUEST
// =====================================================

type CreateTeamRequest struct {
	TeamSlug            string   `json:"team_slug"`
	Name                string   `json:"name"`
	Email               string   `json:"email"`
	Password            string   `json:"password"`
	DashboardPassword   string   `json:"dashboard_password"`
	MinPaymentAmount    int64    `json:"min_payment_amount"`
	MaxPaymentAmount    int64    `json:"max_payment_amount"`
	DailyPaymentLimit   int64    `json:"daily_payment_limit"`
	SupportedCurrencies []string `json:"supported_currencies"`
	WebhookURL          *string  `json:"webhook_url,omitempty"`
}

// Validate validates CreateTeamRequest
func (req CreateTeamRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.TeamSlug, validation.Required, validation.Length(2, 64),
			validation.Match(slugPattern)),
		validation.Field(&req.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&req.Email, validation.Required, is.EmailFormat),
		validation.Field(&req.Password, validation.Required, validation.Length(16, 128)),
		validation.Field(&req.DashboardPassword, validation.Required, validation.Length(8, 128)),
		validation.Field(&req.MinPaymentAmount, validation.Min(int64(0))),
		validation.Field(&req.MaxPaymentAmount, validation.Min(int64(0))),
		validation.Field(&req.DailyPaymentLimit, validation.Min(int64(0))),
	)
}

// =====================================================
// UPDATE TEAM REQUEST
// =====================================================

type UpdateTeamRequest struct {
	Name                *string  `json:"name,omitempty"`
	IsActive            *bool    `json:"is_active,omitempty"`
	MinPaymentAmount    *int64   `json:"min_payment_amount,omitempty"`
	MaxPaymentAmount    *int64   `json:"max_payment_amount,omitempty"`
	DailyPaymentLimit   *int64   `json:"daily_payment_limit,omitempty"`
	SupportedCurrencies []string `json:"supported_currencies,omitempty"`
	WebhookURL          *string  `json:"webhook_url,omitempty"`
	RetryEnabled        *bool    `json:"retry_enabled,omitempty"`
	FraudCheckEnabled   *bool    `json:"fraud_check_enabled,omitempty"`
}

// Validate validates UpdateTeamRequest
func (req UpdateTeamRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Length(1, 128)),
	)
}

// =====================================================
// DASHBOARD LOGIN
// =====================================================

type LoginRequest struct {
	TeamSlug string `json:"team_slug"`
	Password string `json:"password"`
}

// Validate validates LoginRequest
func (req LoginRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.TeamSlug, validation.Required),
		validation.Field(&req.Password, validation.Required),
	)
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TeamSlug    string `json:"team_slug"`
}

// =====================================================
// TEAM RESPONSE
// =====================================================

type TeamResponse struct {
	ID                  string   `json:"id"`
	TeamSlug            string   `json:"team_slug"`
	Name                string   `json:"name"`
	Email               string   `json:"email"`
	IsActive            bool     `json:"is_active"`
	MinPaymentAmount    int64    `json:"min_payment_amount"`
	MaxPaymentAmount    int64    `json:"max_payment_amount"`
	DailyPaymentLimit   int64    `json:"daily_payment_limit"`
	SupportedCurrencies []string `json:"supported_currencies"`
	WebhookURL          *string  `json:"webhook_url,omitempty"`
	RetryEnabled        bool     `json:"retry_enabled"`
	FraudCheckEnabled   bool     `json:"fraud_check_enabled"`
}

// ToResponse maps the entity to its API shape.
func (t *Team) ToResponse() TeamResponse {
	return TeamResponse{
		ID:                  t.ID.String(),
		TeamSlug:            t.TeamSlug,
		Name:                t.Name,
		Email:               t.Email,
		IsActive:            t.IsActive,
		MinPaymentAmount:    t.MinPaymentAmount,
		MaxPaymentAmount:    t.MaxPaymentAmount,
		DailyPaymentLimit:   t.DailyPaymentLimit,
		SupportedCurrencies: t.SupportedCurrencies,
		WebhookURL:          t.WebhookURL,
		RetryEnabled:        t.RetryEnabled,
		FraudCheckEnabled:   t.FraudCheckEnabled,
	}
}
