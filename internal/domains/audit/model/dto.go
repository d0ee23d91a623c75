package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// =====================================================
// QUERY FILTER
// =====================================================

// QueryFilter selects audit rows. Zero-valued fields are ignored.
type QueryFilter struct {
	EntityID      *string    `form:"entity_id"`
	EntityType    *string    `form:"entity_type"`
	Action        *Action    `form:"action"`
	UserID        *string    `form:"user_id"`
	TeamSlug      *string    `form:"team_slug"`
	FromDate      *time.Time `form:"from_date"`
	ToDate        *time.Time `form:"to_date"`
	MinSeverity   *Severity  `form:"min_severity"`
	Category      *Category  `form:"category"`
	CorrelationID *string    `form:"correlation_id"`
	RequestID     *string    `form:"request_id"`
	IsSensitive   *bool      `form:"is_sensitive"`
	IsArchived    *bool      `form:"is_archived"`
	Skip          int        `form:"skip"`
	Take          int        `form:"take"`
}

// Validate validates QueryFilter
func (f QueryFilter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Skip, validation.Min(0)),
		validation.Field(&f.Take, validation.Min(0), validation.Max(1000)),
	)
}

// =====================================================
// CORRELATION CONTEXT
// =====================================================

// CorrelationContext ties one logical request to its fan-out events.
// Kept in memory for the correlation window, then evicted; the
// persisted audit rows remain queryable by CorrelationID.
type CorrelationContext struct {
	CorrelationID string            `json:"correlation_id"`
	OperationType string            `json:"operation_type"`
	EntityID      string            `json:"entity_id"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Success       *bool             `json:"success,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Duration      time.Duration     `json:"duration"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Events        []string          `json:"events,omitempty"`
}

// IntegrityReport summarises an integrity verification pass.
type IntegrityReport struct {
	Checked  int         `json:"checked"`
	Tampered []uuid.UUID `json:"tampered,omitempty"`
}
