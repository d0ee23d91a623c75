package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// TEAM ENTITY
// =====================================================

// Team is a merchant account. Password is the API terminal secret used
// by the canonical token scheme; DashboardPasswordHash is the bcrypt
// hash for the operator dashboard login.
type Team struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TeamSlug string    `json:"team_slug" db:"team_slug"`
	Name     string    `json:"name" db:"name"`
	Email    string    `json:"email" db:"email"`
	IsActive bool      `json:"is_active" db:"is_active"`

	// Authentication
	Password              string     `json:"-" db:"password"`
	DashboardPasswordHash string     `json:"-" db:"dashboard_password_hash"`
	FailedAuthCount       int        `json:"failed_auth_count" db:"failed_auth_count"`
	LockedUntil           *time.Time `json:"locked_until,omitempty" db:"locked_until"`

	// Per-team payment limits, minor units. Zero means "use global".
	MinPaymentAmount  int64 `json:"min_payment_amount" db:"min_payment_amount"`
	MaxPaymentAmount  int64 `json:"max_payment_amount" db:"max_payment_amount"`
	DailyPaymentLimit int64 `json:"daily_payment_limit" db:"daily_payment_limit"`

	SupportedCurrencies []string `json:"supported_currencies" db:"supported_currencies"`
	WebhookURL          *string  `json:"webhook_url,omitempty" db:"webhook_url"`

	// Feature flags
	RetryEnabled      bool `json:"retry_enabled" db:"retry_enabled"`
	FraudCheckEnabled bool `json:"fraud_check_enabled" db:"fraud_check_enabled"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsLocked reports whether the team is inside an auth-failure lockout.
func (t *Team) IsLocked(now time.Time) bool {
	return t.LockedUntil != nil && now.Before(*t.LockedUntil)
}

// SupportsCurrency checks the per-team currency allow-list. An empty
// list means every gateway currency is accepted.
func (t *Team) SupportsCurrency(code string) bool {
	if len(t.SupportedCurrencies) == 0 {
		return true
	}
	for _, c := range t.SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// EntityID implements audit.Auditable.
func (t *Team) EntityID() string { return t.ID.String() }

// EntityType implements audit.Auditable.
func (t *Team) EntityType() string { return "team" }
