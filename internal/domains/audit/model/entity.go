package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =====================================================
// AUDIT ENTRY
// =====================================================

// Auditable is implemented by every entity that flows into the audit
// pipeline. Snapshots are produced by the audit service, not the
// entity, so entities stay free of serialisation concerns.
type Auditable interface {
	EntityID() string
	EntityType() string
}

// Action enumerates auditable operations.
type Action string

const (
	ActionPaymentCreated    Action = "payment.created"
	ActionPaymentTransition Action = "payment.transition"
	ActionPaymentRollback   Action = "payment.rollback"
	ActionPaymentExpired    Action = "payment.expired"
	ActionPaymentRefunded   Action = "payment.refunded"
	ActionRetryAttempted    Action = "payment.retry_attempted"
	ActionAuthFailed        Action = "auth.token_failed"
	ActionTeamLocked        Action = "auth.team_locked"
	ActionTeamUnlocked      Action = "auth.team_unlocked"
	ActionTeamCreated       Action = "team.created"
	ActionTeamUpdated       Action = "team.updated"
	ActionRuleCreated       Action = "rule.created"
	ActionRuleUpdated       Action = "rule.updated"
	ActionRuleDeleted       Action = "rule.deleted"
	ActionRuleDenied        Action = "rule.denied"
	ActionConfigChanged     Action = "config.changed"
)

// Severity ranks audit records for alerting.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Category groups records for query filters.
type Category string

const (
	CategoryPayment        Category = "PAYMENT"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategorySecurity       Category = "SECURITY"
	CategoryConfiguration  Category = "CONFIGURATION"
	CategoryRule           Category = "RULE"
)

// Entry is one append-only audit row.
type Entry struct {
	ID          uuid.UUID `json:"id" db:"id"`
	EntityID    string    `json:"entity_id" db:"entity_id"`
	EntityType  string    `json:"entity_type" db:"entity_type"`
	Action      Action    `json:"action" db:"action"`
	UserID      string    `json:"user_id" db:"user_id"`
	TeamSlug    string    `json:"team_slug" db:"team_slug"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Details     string    `json:"details" db:"details"`
	Category    Category  `json:"category" db:"category"`
	Severity    Severity  `json:"severity" db:"severity"`
	IsSensitive bool      `json:"is_sensitive" db:"is_sensitive"`

	// Request context
	CorrelationID string  `json:"correlation_id" db:"correlation_id"`
	RequestID     string  `json:"request_id" db:"request_id"`
	SessionID     *string `json:"session_id,omitempty" db:"session_id"`
	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	RiskScore     *int    `json:"risk_score,omitempty" db:"risk_score"`

	// Snapshots
	EntitySnapshotBefore []byte `json:"entity_snapshot_before,omitempty" db:"entity_snapshot_before"`
	EntitySnapshotAfter  []byte `json:"entity_snapshot_after,omitempty" db:"entity_snapshot_after"`

	IntegrityHash string     `json:"integrity_hash" db:"integrity_hash"`
	IsArchived    bool       `json:"is_archived" db:"is_archived"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty" db:"archived_at"`
}

// hashTimeLayout is ISO-8601 with millisecond precision, matching the
// token scheme's canonical timestamp form.
const hashTimeLayout = "2006-01-02T15:04:05.000Z"

// ComputeIntegrityHash derives the tamper-evidence hash over the
// entry's canonical fields. Stored on write; recomputed on verify.
func (e *Entry) ComputeIntegrityHash() string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		e.EntityID,
		e.EntityType,
		e.Action,
		e.UserID,
		e.Timestamp.UTC().Format(hashTimeLayout),
		e.Details,
		e.EntitySnapshotAfter,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash and compares it with the stored
// value.
func (e *Entry) VerifyIntegrity() bool {
	return e.IntegrityHash == e.ComputeIntegrityHash()
}

// =====================================================
// SEVERITY / CATEGORY DERIVATION
// =====================================================

// DeriveSeverity maps an action to its alerting severity.
func DeriveSeverity(action Action) Severity {
	switch action {
	case ActionTeamLocked:
		return SeverityCritical
	case ActionAuthFailed, ActionRuleDenied, ActionPaymentRollback:
		return SeverityError
	case ActionPaymentExpired, ActionRetryAttempted, ActionRuleDeleted:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// DeriveCategory maps an action to its query category.
func DeriveCategory(action Action) Category {
	switch action {
	case ActionAuthFailed, ActionTeamLocked, ActionTeamUnlocked:
		return CategoryAuthentication
	case ActionRuleCreated, ActionRuleUpdated, ActionRuleDeleted, ActionRuleDenied:
		return CategoryRule
	case ActionConfigChanged:
		return CategoryConfiguration
	case ActionTeamCreated, ActionTeamUpdated:
		return CategorySecurity
	default:
		return CategoryPayment
	}
}

// IsSensitiveAction flags actions whose records carry sensitive
// context regardless of entity.
func IsSensitiveAction(action Action) bool {
	switch action {
	case ActionAuthFailed, ActionTeamLocked, ActionTeamCreated:
		return true
	default:
		return false
	}
}

// Snapshot serialises an entity for the before/after fields. Nil
// values are omitted by the standard marshaller; cyclic structures are
// not expected because entities hold IDs, not back-pointers.
func Snapshot(entity interface{}) ([]byte, error) {
	if entity == nil {
		return nil, nil
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot entity: %w", err)
	}
	return data, nil
}
