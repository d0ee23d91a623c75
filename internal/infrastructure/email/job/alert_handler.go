package job

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/infrastructure/email"
	"paygate-backend/internal/shared"
	"paygate-backend/pkg/logger"
)

// ============================================
// Operator Alert Handler
// ============================================

type AlertHandler struct {
	alerts email.AlertService
}

func NewAlertHandler(alerts email.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

func (h *AlertHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	err := h.alerts.SendAlert(ctx, email.AlertData{
		Kind:     payload.Kind,
		Subject:  payload.Subject,
		Body:     payload.Body,
		Metadata: payload.Metadata,
	})
	if err != nil {
		return err
	}

	logger.Info("operator alert dispatched", map[string]interface{}{
		"kind":    payload.Kind,
		"subject": payload.Subject,
	})
	return nil
}
