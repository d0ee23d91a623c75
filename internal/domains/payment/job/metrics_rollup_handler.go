package job

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/domains/payment/repository"
	"paygate-backend/pkg/logger"
)

// =====================================================
// METRICS ROLLUP
// =====================================================

const rollupPeriod = 15 * time.Minute

type MetricsRollupHandler struct {
	metrics repository.MetricsRepository
	now     func() time.Time
}

func NewMetricsRollupHandler(metrics repository.MetricsRepository) *MetricsRollupHandler {
	return &MetricsRollupHandler{metrics: metrics, now: time.Now}
}

// ProcessTask aggregates the period that just closed into one rollup
// record. Periods align to the quarter hour so reruns are idempotent at
// the reporting level.
func (h *MetricsRollupHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	end := h.now().UTC().Truncate(rollupPeriod)
	start := end.Add(-rollupPeriod)

	rollup, err := h.metrics.Aggregate(ctx, start, end)
	if err != nil {
		logger.Error("metrics rollup: aggregation failed", err)
		return err
	}

	if err := h.metrics.SaveRollup(ctx, rollup); err != nil {
		logger.Error("metrics rollup: persist failed", err)
		return err
	}

	logger.Info("metrics rollup stored", map[string]interface{}{
		"period_start": start,
		"total":        rollup.TotalCount,
		"confirmed":    rollup.ConfirmedCount,
		"gross":        rollup.GrossAmount.String(),
	})
	return nil
}
