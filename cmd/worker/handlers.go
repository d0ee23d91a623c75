package main

import (
	"github.com/hibiken/asynq"

	auditJob "paygate-backend/internal/domains/audit/job"
	paymentJob "paygate-backend/internal/domains/payment/job"
	"paygate-backend/internal/infrastructure/email"
	emailJob "paygate-backend/internal/infrastructure/email/job"
	"paygate-backend/internal/infrastructure/webhook"
	"paygate-backend/internal/shared"
	"paygate-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	// Payment handlers
	expirySweep *paymentJob.ExpirySweepHandler
	reconcile   *paymentJob.ReconcileHandler
	retry       *paymentJob.RetryTaskHandler

	// Delivery handlers
	webhookSender *webhook.Sender
	operatorAlert *emailJob.AlertHandler

	// Housekeeping handlers
	auditCleanup  *auditJob.CleanupHandler
	metricsRollup *paymentJob.MetricsRollupHandler
	maintenance   *paymentJob.MaintenanceHandler
	lockSweep     *paymentJob.LockSweepHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container, cfg *Config) *HandlerRegistry {
	alerts := email.NewSMTPAlertService(cfg.SMTPHost, cfg.SMTPPort, cfg.OperatorAddr)

	return &HandlerRegistry{
		// Payment
		expirySweep: paymentJob.NewExpirySweepHandler(c.PaymentRepo, c.Lifecycle),
		reconcile:   paymentJob.NewReconcileHandler(c.PaymentRepo, c.Reconciler, c.Machine),
		retry:       paymentJob.NewRetryTaskHandler(c.Retry),

		// Delivery
		webhookSender: webhook.NewSender(cfg.WebhookTimeout),
		operatorAlert: emailJob.NewAlertHandler(alerts),

		// Housekeeping
		auditCleanup:  auditJob.NewCleanupHandler(c.AuditService),
		metricsRollup: paymentJob.NewMetricsRollupHandler(c.MetricsRepo),
		maintenance:   paymentJob.NewMaintenanceHandler(c.DB.Pool, c.Locks, c.AuditService),
		lockSweep:     paymentJob.NewLockSweepHandler(c.Locks),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	// Payment tasks
	mux.HandleFunc(shared.TypePaymentExpirySweep, h.expirySweep.ProcessTask)
	mux.HandleFunc(shared.TypePaymentReconcile, h.reconcile.ProcessTask)
	mux.HandleFunc(shared.TypePaymentRetry, h.retry.ProcessTask)

	// Delivery tasks
	mux.HandleFunc(shared.TypeWebhookDeliver, h.webhookSender.ProcessTask)
	mux.HandleFunc(shared.TypeNotificationDispatch, h.operatorAlert.ProcessTask)

	// Housekeeping tasks
	mux.HandleFunc(shared.TypeAuditCleanup, h.auditCleanup.ProcessTask)
	mux.HandleFunc(shared.TypeMetricsRollup, h.metricsRollup.ProcessTask)
	mux.HandleFunc(shared.TypeMaintenance, h.maintenance.ProcessTask)
	mux.HandleFunc(shared.TypeLockSweep, h.lockSweep.ProcessTask)
}
