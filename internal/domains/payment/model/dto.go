package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// =====================================================
// INIT REQUEST
// =====================================================

// InitRequest is the merchant payment-creation call. Token covers every
// scalar field per the canonical-hash scheme.
type InitRequest struct {
	TeamSlug      string                 `json:"TeamSlug"`
	OrderID       string                 `json:"OrderId"`
	Amount        int64                  `json:"Amount"`
	Currency      string                 `json:"Currency"`
	Description   *string                `json:"Description,omitempty"`
	Email         *string                `json:"Email,omitempty"`
	CustomerKey   *string                `json:"CustomerKey,omitempty"`
	Items         []PaymentItem          `json:"Items,omitempty"`
	Receipt       map[string]interface{} `json:"Receipt,omitempty"`
	Data          map[string]string      `json:"Data,omitempty"`
	PaymentExpiry int                    `json:"PaymentExpiry,omitempty"`
	Token         string                 `json:"Token"`
}

// Validate validates InitRequest
func (req InitRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.TeamSlug, validation.Required, validation.Length(1, 64)),
		validation.Field(&req.OrderID, validation.Required, validation.Length(1, 128)),
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.Currency, validation.Required, validation.Length(3, 3),
			validation.By(currencySupported)),
		validation.Field(&req.Email, is.EmailFormat),
		validation.Field(&req.PaymentExpiry, validation.Min(0), validation.Max(MaxPaymentExpiryMinutes)),
		validation.Field(&req.Token, validation.Required),
	)
}

func currencySupported(value interface{}) error {
	code, _ := value.(string)
	if !IsSupportedCurrency(code) {
		return validation.NewError("validation_currency", "currency is not supported")
	}
	return nil
}

// TokenParams flattens the request into the map the token authenticator
// canonicalises. Composite fields are included so the authenticator can
// exercise its own exclusion rules.
func (req InitRequest) TokenParams() map[string]interface{} {
	params := map[string]interface{}{
		"TeamSlug": req.TeamSlug,
		"OrderId":  req.OrderID,
		"Amount":   req.Amount,
		"Currency": req.Currency,
		"Token":    req.Token,
	}
	if req.Description != nil {
		params["Description"] = *req.Description
	}
	if req.Email != nil {
		params["Email"] = *req.Email
	}
	if req.CustomerKey != nil {
		params["CustomerKey"] = *req.CustomerKey
	}
	if req.PaymentExpiry > 0 {
		params["PaymentExpiry"] = req.PaymentExpiry
	}
	if req.Receipt != nil {
		params["Receipt"] = req.Receipt
	}
	if req.Data != nil {
		params["Data"] = req.Data
	}
	return params
}

// =====================================================
// OPERATION REQUESTS
// =====================================================

// OperationRequest is the shared shape of confirm/cancel/refund/
// getState/check calls.
type OperationRequest struct {
	TeamSlug  string  `json:"TeamSlug"`
	PaymentID string  `json:"PaymentId"`
	Amount    int64   `json:"Amount,omitempty"`
	Reason    *string `json:"Reason,omitempty"`
	Token     string  `json:"Token"`
}

// Validate validates OperationRequest
func (req OperationRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.TeamSlug, validation.Required, validation.Length(1, 64)),
		validation.Field(&req.PaymentID, validation.Required),
		validation.Field(&req.Amount, validation.Min(int64(0))),
		validation.Field(&req.Token, validation.Required),
	)
}

// TokenParams flattens the request for token verification.
func (req OperationRequest) TokenParams() map[string]interface{} {
	params := map[string]interface{}{
		"TeamSlug":  req.TeamSlug,
		"PaymentId": req.PaymentID,
		"Token":     req.Token,
	}
	if req.Amount > 0 {
		params["Amount"] = req.Amount
	}
	if req.Reason != nil {
		params["Reason"] = *req.Reason
	}
	return params
}

// =====================================================
// RESPONSES
// =====================================================

// StateResponse answers getState/check with the full lifecycle view.
type StateResponse struct {
	PaymentID      string     `json:"PaymentId"`
	OrderID        string     `json:"OrderId"`
	Status         Status     `json:"Status"`
	Amount         int64      `json:"Amount"`
	Currency       string     `json:"Currency"`
	RefundedAmount int64      `json:"RefundedAmount"`
	RefundCount    int        `json:"RefundCount"`
	ExpiresAt      time.Time  `json:"ExpiresAt"`
	ConfirmedAt    *time.Time `json:"ConfirmedAt,omitempty"`
	ErrorCode      *string    `json:"ErrorCode,omitempty"`
	ErrorMessage   *string    `json:"ErrorMessage,omitempty"`
}

// TransitionResult is returned by the state machine on a successful
// transition. Handlers fold it into the merchant response and the audit
// pipeline.
type TransitionResult struct {
	FromStatus     Status            `json:"from_status"`
	ToStatus       Status            `json:"to_status"`
	TransitionID   string            `json:"transition_id"`
	TransitionedAt time.Time         `json:"transitioned_at"`
	Context        map[string]string `json:"context,omitempty"`
}

// Verdict is the non-mutating answer of canTransition.
type Verdict struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// RetryResult aggregates one retry invocation.
type RetryResult struct {
	Success       bool           `json:"success"`
	AttemptsUsed  int            `json:"attempts_used"`
	TotalDuration time.Duration  `json:"total_duration"`
	Attempts      []RetryAttempt `json:"attempts"`
}

// =====================================================
// ADMIN LIST REQUEST
// =====================================================

// ListPaymentsRequest filters the admin payment listing.
type ListPaymentsRequest struct {
	TeamSlug *string `form:"team_slug"`
	Status   *Status `form:"status"`
	Page     int     `form:"page"`
	Limit    int     `form:"limit"`
}

// Validate validates ListPaymentsRequest
func (req ListPaymentsRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Page, validation.Min(1)),
		validation.Field(&req.Limit, validation.Min(1), validation.Max(200)),
	)
}
