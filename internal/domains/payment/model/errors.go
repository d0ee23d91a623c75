package model

import (
	"errors"
	"fmt"

	"paygate-backend/internal/shared/errcodes"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicateOrder     = errors.New("order already has an active payment")
	ErrInvalidTransition  = errors.New("transition not permitted from current status")
	ErrLockConflict       = errors.New("payment is locked by another operation")
	ErrRuleViolation      = errors.New("business rule violation")
	ErrPaymentExpired     = errors.New("payment session expired")
	ErrInvalidAmount      = errors.New("amount is invalid for this operation")
	ErrRetryExhausted     = errors.New("retry attempts exhausted")
	ErrPersistenceFailed  = errors.New("persistence failed after state change")
	ErrStaleStatus        = errors.New("payment status changed since it was read")
	ErrTerminalStatus     = errors.New("payment is in a terminal status")
	ErrRollbackNotAllowed = errors.New("rollback not allowed")
	ErrTransitionNotFound = errors.New("transition record not found")
)

// =====================================================
// CUSTOM PAYMENT ERROR
// =====================================================

// PaymentError carries a gateway error code alongside the wrapped cause
// so handlers can build the merchant response without type switching.
type PaymentError struct {
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a payment error with an explicit code.
func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{Code: code, Message: message, Err: err}
}

// =====================================================
// ERROR CONSTRUCTORS
// =====================================================

func NewPaymentNotFoundError(paymentID string) *PaymentError {
	return NewPaymentError(
		errcodes.PaymentNotFound,
		fmt.Sprintf("Payment not found: %s", paymentID),
		ErrPaymentNotFound,
	)
}

func NewDuplicateOrderError(teamSlug, orderID string) *PaymentError {
	return NewPaymentError(
		errcodes.DuplicateOrder,
		fmt.Sprintf("Order %s already has an active payment for team %s", orderID, teamSlug),
		ErrDuplicateOrder,
	)
}

func NewInvalidTransitionError(from, to Status) *PaymentError {
	return NewPaymentError(
		errcodes.InvalidTransition,
		fmt.Sprintf("Transition %s -> %s is not permitted", from, to),
		ErrInvalidTransition,
	)
}

func NewLockConflictError(resource string) *PaymentError {
	return NewPaymentError(
		errcodes.LockContention,
		fmt.Sprintf("Resource %s is held by another operation", resource),
		ErrLockConflict,
	)
}

func NewRuleViolationError(violations []string) *PaymentError {
	return &PaymentError{
		Code:    errcodes.RuleViolation,
		Message: "Payment rejected by business rules",
		Details: violations,
		Err:     ErrRuleViolation,
	}
}

func NewInvalidAmountError(requested, refundable int64) *PaymentError {
	return NewPaymentError(
		errcodes.RefundExceedsTotal,
		fmt.Sprintf("Refund of %d exceeds refundable %d", requested, refundable),
		ErrInvalidAmount,
	)
}

func NewPaymentExpiredError(paymentID string) *PaymentError {
	return NewPaymentError(
		errcodes.PaymentExpired,
		fmt.Sprintf("Payment %s has expired", paymentID),
		ErrPaymentExpired,
	)
}
