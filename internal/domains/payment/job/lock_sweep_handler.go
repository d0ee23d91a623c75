package job

import (
	"context"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/pkg/logger"
)

// =====================================================
// LOCK SWEEP
// =====================================================

type LockSweepHandler struct {
	locks lock.Manager
}

func NewLockSweepHandler(locks lock.Manager) *LockSweepHandler {
	return &LockSweepHandler{locks: locks}
}

// ProcessTask purges expired leases. With the Redis manager this is a
// no-op because keys expire server-side.
func (h *LockSweepHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	if purged := h.locks.Sweep(ctx); purged > 0 {
		logger.Info("lock sweep purged expired leases", map[string]interface{}{
			"purged": purged,
		})
	}
	return nil
}
