package webhook

import (
	"context"
	"encoding/json"

	paymentmodel "paygate-backend/internal/domains/payment/model"
	teamrepo "paygate-backend/internal/domains/team/repository"
	"paygate-backend/internal/shared"
	"paygate-backend/internal/shared/errcodes"
	"paygate-backend/internal/shared/response"
	"paygate-backend/pkg/logger"
)

// =====================================================
// WEBHOOK DISPATCHER
// =====================================================
// Fans completed transitions out to merchant webhooks. The dispatcher
// only enqueues; the sender worker performs the HTTP call with asynq's
// retry budget behind it.

// webhookMaxRetries mirrors the default retry policy's attempt count.
const webhookMaxRetries = 3

// Enqueuer is the queue-side dependency. The asynq client implements it.
type Enqueuer interface {
	EnqueueWebhook(ctx context.Context, payload shared.WebhookPayload) error
}

type Dispatcher struct {
	teams teamrepo.TeamRepository
	queue Enqueuer
}

func NewDispatcher(teams teamrepo.TeamRepository, queue Enqueuer) *Dispatcher {
	return &Dispatcher{teams: teams, queue: queue}
}

// PublishTransition queues a merchant notification for a completed
// transition. Teams without a webhook URL are skipped; enqueue failures
// are logged and never propagate to the payment operation.
func (d *Dispatcher) PublishTransition(ctx context.Context, payment *paymentmodel.Payment, result *paymentmodel.TransitionResult) {
	team, err := d.teams.GetBySlug(ctx, payment.TeamSlug)
	if err != nil {
		logger.Error("webhook dispatch: failed to load team", err)
		return
	}
	if team.WebhookURL == nil || *team.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(d.buildBody(payment))
	if err != nil {
		logger.Error("webhook dispatch: failed to marshal body", err)
		return
	}

	err = d.queue.EnqueueWebhook(ctx, shared.WebhookPayload{
		PaymentID:  payment.PaymentID,
		TeamSlug:   payment.TeamSlug,
		URL:        *team.WebhookURL,
		Body:       body,
		Signature:  SignBody(body, team.Password),
		MaxRetries: webhookMaxRetries,
	})
	if err != nil {
		logger.Error("webhook dispatch: failed to enqueue", err)
		return
	}

	logger.Info("webhook queued", map[string]interface{}{
		"payment_id": payment.PaymentID,
		"team_slug":  payment.TeamSlug,
		"status":     string(result.ToStatus),
	})
}

// buildBody mirrors the merchant API response shape plus the new
// status.
func (d *Dispatcher) buildBody(payment *paymentmodel.Payment) response.Merchant {
	body := response.Merchant{
		Success:   !statusIsFailure(payment.Status),
		Status:    string(payment.Status),
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		ErrorCode: errcodes.Success,
	}
	if payment.ErrorCode != nil {
		body.ErrorCode = *payment.ErrorCode
		body.Success = false
	}
	if payment.ErrorMessage != nil {
		body.Message = *payment.ErrorMessage
	}
	return body
}

func statusIsFailure(status paymentmodel.Status) bool {
	switch status {
	case paymentmodel.StatusAuthFail, paymentmodel.StatusRejected,
		paymentmodel.StatusExpired, paymentmodel.StatusDeadlineExpired:
		return true
	default:
		return false
	}
}
