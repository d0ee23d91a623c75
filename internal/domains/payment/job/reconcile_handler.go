package job

import (
	"context"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/repository"
	"paygate-backend/internal/domains/payment/service"
	"paygate-backend/internal/domains/payment/statemachine"
	"paygate-backend/pkg/logger"
)

// =====================================================
// RECONCILIATION
// =====================================================

const reconcileBatch = 200

// reconcileStatuses are the in-flight states worth comparing against
// the external processor.
var reconcileStatuses = []model.Status{model.StatusNew, model.StatusAuthorized}

type ReconcileHandler struct {
	repo       repository.PaymentRepository
	reconciler service.Reconciler
	machine    *statemachine.Machine
}

func NewReconcileHandler(repo repository.PaymentRepository, reconciler service.Reconciler, machine *statemachine.Machine) *ReconcileHandler {
	return &ReconcileHandler{repo: repo, reconciler: reconciler, machine: machine}
}

// ProcessTask asks the reconciler for each in-flight payment and
// applies any divergent status through the state machine.
func (h *ReconcileHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	payments, err := h.repo.ListByStatuses(ctx, reconcileStatuses, reconcileBatch)
	if err != nil {
		logger.Error("reconcile: failed to list payments", err)
		return err
	}

	applied := 0
	for _, payment := range payments {
		target, err := h.reconciler.Reconcile(ctx, payment)
		if err != nil {
			logger.Error("reconcile: check failed for payment "+payment.PaymentID, err)
			continue
		}
		if target == "" || target == payment.Status {
			continue
		}

		reason := "reconciled against external processor"
		if _, err := h.machine.Transition(ctx, payment, target, statemachine.SystemUser, &reason, nil); err != nil {
			logger.Error("reconcile: failed to apply "+string(target)+" to payment "+payment.PaymentID, err)
			continue
		}
		applied++
	}

	if applied > 0 {
		logger.Info("reconciliation applied transitions", map[string]interface{}{
			"checked": len(payments),
			"applied": applied,
		})
	}
	return nil
}
