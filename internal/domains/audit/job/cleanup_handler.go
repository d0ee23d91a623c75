package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	auditservice "paygate-backend/internal/domains/audit/service"
	"paygate-backend/internal/shared"
	"paygate-backend/pkg/logger"
)

// =====================================================
// AUDIT RETENTION
// =====================================================

const cleanupBatch = 1000

type CleanupHandler struct {
	audit *auditservice.AuditService
	now   func() time.Time
}

func NewCleanupHandler(audit *auditservice.AuditService) *CleanupHandler {
	return &CleanupHandler{audit: audit, now: time.Now}
}

// ProcessTask archives audit rows older than the retention period.
// Rows are flagged, never deleted; batches repeat until the backlog is
// drained.
func (h *CleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload := shared.AuditCleanupPayload{RetentionDays: shared.DefaultAuditRetentionDays}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = shared.DefaultAuditRetentionDays
	}

	cutoff := h.now().AddDate(0, 0, -payload.RetentionDays)

	total := 0
	for {
		archived, err := h.audit.ArchiveOlderThan(ctx, cutoff, cleanupBatch)
		if err != nil {
			logger.Error("audit cleanup: archive batch failed", err)
			return err
		}
		total += archived
		if archived < cleanupBatch {
			break
		}
	}

	if total > 0 {
		logger.Info("audit cleanup archived rows", map[string]interface{}{
			"archived":       total,
			"retention_days": payload.RetentionDays,
		})
	}
	return nil
}
