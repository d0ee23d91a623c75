package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// PAYMENT ENTITY
// =====================================================

// Payment is the aggregate root. Amounts are integer minor units
// (kopecks, cents). Status is mutated only through the state machine.
type Payment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PaymentID string    `json:"payment_id" db:"payment_id"`
	OrderID   string    `json:"order_id" db:"order_id"`
	TeamID    uuid.UUID `json:"team_id" db:"team_id"`
	TeamSlug  string    `json:"team_slug" db:"team_slug"`

	// Financial
	Amount         int64  `json:"amount" db:"amount"`
	Currency       string `json:"currency" db:"currency"`
	RefundedAmount int64  `json:"refunded_amount" db:"refunded_amount"`
	RefundCount    int    `json:"refund_count" db:"refund_count"`

	// Lifecycle
	Status                Status     `json:"status" db:"status"`
	ExpiresAt             time.Time  `json:"expires_at" db:"expires_at"`
	AuthorizationAttempts int        `json:"authorization_attempts" db:"authorization_attempts"`
	MaxAllowedAttempts    int        `json:"max_allowed_attempts" db:"max_allowed_attempts"`
	InitializedAt         time.Time  `json:"initialized_at" db:"initialized_at"`
	FormShowedAt          *time.Time `json:"form_showed_at,omitempty" db:"form_showed_at"`
	AuthorizingAt         *time.Time `json:"authorizing_at,omitempty" db:"authorizing_at"`
	AuthorizedAt          *time.Time `json:"authorized_at,omitempty" db:"authorized_at"`
	ConfirmedAt           *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ReversedAt            *time.Time `json:"reversed_at,omitempty" db:"reversed_at"`
	RefundedAt            *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
	RejectedAt            *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	ExpiredAt             *time.Time `json:"expired_at,omitempty" db:"expired_at"`

	// Failure
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Hosted form
	PaymentURL *string `json:"payment_url,omitempty" db:"payment_url"`

	// Merchant metadata
	Description *string                `json:"description,omitempty" db:"description"`
	Email       *string                `json:"email,omitempty" db:"email"`
	CustomerKey *string                `json:"customer_key,omitempty" db:"customer_key"`
	Metadata    map[string]string      `json:"metadata,omitempty" db:"metadata"`
	Items       []PaymentItem          `json:"items,omitempty" db:"items"`
	Receipt     map[string]interface{} `json:"receipt,omitempty" db:"receipt"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PaymentItem is one opaque order line attached to the payment.
type PaymentItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amount   int64  `json:"amount"`
	Tax      string `json:"tax,omitempty"`
}

// IsExpired reports whether the session deadline has passed.
func (p *Payment) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// RefundableAmount returns how much of the confirmed amount remains
// refundable.
func (p *Payment) RefundableAmount() int64 {
	return p.Amount - p.RefundedAmount
}

// CanRetryAuthorization checks the per-payment attempt budget.
func (p *Payment) CanRetryAuthorization() bool {
	return p.AuthorizationAttempts < p.MaxAllowedAttempts
}

// ApplyStatusTimestamp records the per-state timestamp for a freshly
// entered status. Called by the state machine inside the transition
// transaction.
func (p *Payment) ApplyStatusTimestamp(status Status, at time.Time) {
	switch status {
	case StatusNew:
		p.InitializedAt = at
	case StatusFormShowed:
		p.FormShowedAt = &at
	case StatusAuthorizing:
		p.AuthorizingAt = &at
	case StatusAuthorized:
		p.AuthorizedAt = &at
	case StatusConfirmed:
		p.ConfirmedAt = &at
	case StatusCancelled:
		p.CancelledAt = &at
	case StatusReversed:
		p.ReversedAt = &at
	case StatusRefunded, StatusPartialRefunded:
		p.RefundedAt = &at
	case StatusRejected:
		p.RejectedAt = &at
	case StatusExpired, StatusDeadlineExpired:
		p.ExpiredAt = &at
	}
	p.UpdatedAt = at
}

// EntityID implements audit.Auditable.
func (p *Payment) EntityID() string { return p.ID.String() }

// EntityType implements audit.Auditable.
func (p *Payment) EntityType() string { return "payment" }

// =====================================================
// TRANSITION RECORD ENTITY
// =====================================================

// TransitionRecord is one append-only row per state change. For any
// payment the ordered records reproduce its status history.
type TransitionRecord struct {
	TransitionID   string            `json:"transition_id" db:"transition_id"`
	PaymentID      uuid.UUID         `json:"payment_id" db:"payment_id"`
	FromStatus     Status            `json:"from_status" db:"from_status"`
	ToStatus       Status            `json:"to_status" db:"to_status"`
	TransitionedAt time.Time         `json:"transitioned_at" db:"transitioned_at"`
	UserID         string            `json:"user_id" db:"user_id"`
	Reason         *string           `json:"reason,omitempty" db:"reason"`
	Context        map[string]string `json:"context,omitempty" db:"context"`
	IsRollback     bool              `json:"is_rollback" db:"is_rollback"`
	RollbackOf     *string           `json:"rollback_of,omitempty" db:"rollback_of"`
}

// =====================================================
// RETRY ATTEMPT ENTITY
// =====================================================

// RetryAttempt is one append-only row per retry execution.
type RetryAttempt struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	PaymentID     uuid.UUID         `json:"payment_id" db:"payment_id"`
	AttemptNumber int               `json:"attempt_number" db:"attempt_number"`
	AttemptedAt   time.Time         `json:"attempted_at" db:"attempted_at"`
	IsSuccess     bool              `json:"is_success" db:"is_success"`
	ErrorCode     *string           `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage  *string           `json:"error_message,omitempty" db:"error_message"`
	Duration      time.Duration     `json:"duration" db:"duration"`
	StatusBefore  Status            `json:"status_before" db:"status_before"`
	StatusAfter   Status            `json:"status_after" db:"status_after"`
	PolicyName    string            `json:"policy_name" db:"policy_name"`
	Metadata      map[string]string `json:"metadata,omitempty" db:"metadata"`
}
