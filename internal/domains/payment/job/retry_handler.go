package job

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/service"
	"paygate-backend/internal/shared"
	"paygate-backend/pkg/logger"
)

// =====================================================
// SCHEDULED RETRY EXECUTION
// =====================================================

// RetryRunner is the retry-service dependency.
type RetryRunner interface {
	Retry(ctx context.Context, paymentID string, policy service.Policy) (*model.RetryResult, error)
}

type RetryTaskHandler struct {
	retries RetryRunner
}

func NewRetryTaskHandler(retries RetryRunner) *RetryTaskHandler {
	return &RetryTaskHandler{retries: retries}
}

// ProcessTask runs one scheduled retry. The retry service owns the
// attempt budget, so an exhausted or settled payment ends the task
// without asynq-level retries.
func (h *RetryTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.PaymentRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	result, err := h.retries.Retry(ctx, payload.PaymentID, service.PolicyByName(payload.Policy))
	if err != nil {
		if errors.Is(err, model.ErrRetryExhausted) {
			logger.Info("scheduled retry skipped", map[string]interface{}{
				"payment_id": payload.PaymentID,
				"reason":     err.Error(),
			})
			return nil
		}
		logger.Error("scheduled retry failed for payment "+payload.PaymentID, err)
		return err
	}

	logger.Info("scheduled retry completed", map[string]interface{}{
		"payment_id": payload.PaymentID,
		"success":    result.Success,
		"attempts":   result.AttemptsUsed,
	})
	return nil
}
