package service

import (
	"context"
	"time"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/shared"
)

// =====================================================
// EXTERNAL COLLABORATORS
// =====================================================

// Authorizer delegates the acquiring side-effect of an authorization.
// The gateway treats it as opaque; a returned *model.PaymentError
// carries the decline code.
type Authorizer interface {
	Authorize(ctx context.Context, payment *model.Payment) error
}

// Reconciler compares a payment against the external processor and
// returns the status the gateway should move to, or "" when the states
// already agree.
type Reconciler interface {
	Reconcile(ctx context.Context, payment *model.Payment) (model.Status, error)
}

// EventPublisher fans a completed transition out to merchant webhooks.
// Publishing is fire-and-forget from the lifecycle's perspective.
type EventPublisher interface {
	PublishTransition(ctx context.Context, payment *model.Payment, result *model.TransitionResult)
}

// RetryScheduler hands a declined payment to the task queue for a
// delayed retry. The queue client implements it.
type RetryScheduler interface {
	EnqueueRetry(ctx context.Context, payload shared.PaymentRetryPayload, delay time.Duration) error
}
