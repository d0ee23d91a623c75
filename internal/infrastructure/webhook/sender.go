package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/shared"
	"paygate-backend/pkg/logger"
)

// =====================================================
// WEBHOOK SENDER
// =====================================================
// Worker-side HTTP delivery. A non-2xx answer is an error so asynq
// retries within the payload's budget.

type Sender struct {
	client *http.Client
}

func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Sender) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.WebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(payload.Body))
	if err != nil {
		logger.Error("webhook send: invalid request", err)
		return asynq.SkipRetry
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Payment-Id", payload.PaymentID)
	req.Header.Set(SignatureHeader, payload.Signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery to %s failed: %w", payload.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook delivery to %s answered %d", payload.URL, resp.StatusCode)
	}

	logger.Info("webhook delivered", map[string]interface{}{
		"payment_id": payload.PaymentID,
		"team_slug":  payload.TeamSlug,
		"status":     resp.StatusCode,
	})
	return nil
}
