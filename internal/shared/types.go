package shared

import "time"

// Asynq task type names. Grouped by owning domain so queue dashboards
// sort sensibly.
const (
	TypePaymentExpirySweep   = "payment:expiry_sweep"
	TypePaymentRetry         = "payment:retry_attempt"
	TypePaymentReconcile     = "payment:reconcile"
	TypeWebhookDeliver       = "webhook:deliver"
	TypeAuditCleanup         = "audit:cleanup"
	TypeMetricsRollup        = "metrics:rollup"
	TypeMaintenance          = "system:maintenance"
	TypeNotificationDispatch = "notification:dispatch"
	TypeLockSweep            = "lock:sweep"
)

// Queue names with their asynq priorities. Critical carries payment
// retries and webhooks, low carries housekeeping.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// DefaultAuditRetentionDays is how long audit rows stay unarchived.
const DefaultAuditRetentionDays = 90

// AuditCleanupPayload parameterises the hourly retention sweep.
type AuditCleanupPayload struct {
	RetentionDays int `json:"retentionDays"`
}

// PaymentRetryPayload is the asynq payload for a scheduled retry.
type PaymentRetryPayload struct {
	PaymentID   string    `json:"paymentId"`
	AttemptNo   int       `json:"attemptNo"`
	Policy      string    `json:"policy"`
	ErrorCode   string    `json:"errorCode"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// WebhookPayload is the asynq payload for a merchant notification.
type WebhookPayload struct {
	PaymentID  string `json:"paymentId"`
	TeamSlug   string `json:"teamSlug"`
	URL        string `json:"url"`
	Body       []byte `json:"body"`
	Signature  string `json:"signature"`
	Attempt    int    `json:"attempt"`
	MaxRetries int    `json:"maxRetries"`
}

// NotificationPayload is the asynq payload for operator alerts
// (team lockouts, reconciliation mismatches, rule DENY spikes).
type NotificationPayload struct {
	Kind      string            `json:"kind"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
