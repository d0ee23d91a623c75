package job

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	auditservice "paygate-backend/internal/domains/audit/service"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/pkg/logger"
)

// =====================================================
// MAINTENANCE
// =====================================================

// maintenanceTables get ANALYZE'd so the planner keeps up with the
// append-only growth pattern.
var maintenanceTables = []string{
	"payments",
	"payment_transitions",
	"payment_retry_attempts",
	"audit_log",
}

type MaintenanceHandler struct {
	pool  *pgxpool.Pool
	locks lock.Manager
	audit *auditservice.AuditService
}

func NewMaintenanceHandler(pool *pgxpool.Pool, locks lock.Manager, audit *auditservice.AuditService) *MaintenanceHandler {
	return &MaintenanceHandler{pool: pool, locks: locks, audit: audit}
}

// ProcessTask runs the 6-hourly housekeeping: store-level ANALYZE plus
// in-process cache hygiene.
func (h *MaintenanceHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	for _, table := range maintenanceTables {
		if _, err := h.pool.Exec(ctx, "ANALYZE "+table); err != nil {
			logger.Error("maintenance: failed to analyze "+table, err)
		}
	}

	swept := h.locks.Sweep(ctx)
	evicted := h.audit.EvictStaleCorrelations()

	logger.Info("maintenance finished", map[string]interface{}{
		"locks_swept":          swept,
		"correlations_evicted": evicted,
	})
	return nil
}
