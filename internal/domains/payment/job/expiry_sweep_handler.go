package job

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/repository"
	"paygate-backend/pkg/logger"
)

// =====================================================
// EXPIRY SWEEP
// =====================================================

const expirySweepBatch = 500

// Expirer is the lifecycle-side dependency of the sweep.
type Expirer interface {
	Expire(ctx context.Context, paymentID string) (*model.Payment, error)
}

type ExpirySweepHandler struct {
	repo      repository.PaymentRepository
	lifecycle Expirer
}

func NewExpirySweepHandler(repo repository.PaymentRepository, lifecycle Expirer) *ExpirySweepHandler {
	return &ExpirySweepHandler{repo: repo, lifecycle: lifecycle}
}

// ProcessTask expires every overdue payment in the batch. One failing
// payment never blocks the rest of the sweep.
func (h *ExpirySweepHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	candidates, err := h.repo.ListExpiredCandidates(ctx, time.Now(), expirySweepBatch)
	if err != nil {
		logger.Error("expiry sweep: failed to list candidates", err)
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	expired := 0
	for _, payment := range candidates {
		if _, err := h.lifecycle.Expire(ctx, payment.PaymentID); err != nil {
			logger.Error("expiry sweep: failed to expire payment "+payment.PaymentID, err)
			continue
		}
		expired++
	}

	logger.Info("expiry sweep finished", map[string]interface{}{
		"candidates": len(candidates),
		"expired":    expired,
	})
	return nil
}
