package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/shared"
	"paygate-backend/pkg/logger"
)

// =====================================================
// TASK CLIENT
// =====================================================
// Thin wrapper over the asynq client. Producers enqueue typed payloads
// here; the worker binary owns the matching handlers.

type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr string) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueRetry schedules a payment retry after the given delay on the
// critical queue.
func (c *Client) EnqueueRetry(ctx context.Context, payload shared.PaymentRetryPayload, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal retry payload: %w", err)
	}

	task := asynq.NewTask(shared.TypePaymentRetry, body)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueCritical),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0), // attempt budgeting lives in the retry service
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue retry task: %w", err)
	}

	logger.Debug(fmt.Sprintf("enqueued retry task %s for payment %s in %s",
		info.ID, payload.PaymentID, delay))
	return nil
}

// EnqueueWebhook queues one merchant webhook delivery. Delivery retries
// are asynq's, bounded by the payload's budget.
func (c *Client) EnqueueWebhook(ctx context.Context, payload shared.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	task := asynq.NewTask(shared.TypeWebhookDeliver, body)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueCritical),
		asynq.MaxRetry(payload.MaxRetries),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue webhook task: %w", err)
	}
	return nil
}

// EnqueueNotification queues an operator alert on the default queue.
func (c *Client) EnqueueNotification(ctx context.Context, payload shared.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	task := asynq.NewTask(shared.TypeNotificationDispatch, body)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification task: %w", err)
	}
	return nil
}
