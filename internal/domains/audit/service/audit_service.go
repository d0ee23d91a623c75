package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"paygate-backend/internal/domains/audit/model"
	"paygate-backend/internal/domains/audit/repository"
	"paygate-backend/pkg/logger"
)

// =====================================================
// AUDIT SERVICE
// =====================================================
// Builds entries (snapshots, severity/category derivation, integrity
// hash), persists them, and tracks correlation contexts for the
// per-request fan-out.

// Record describes one audit event before enrichment.
type Record struct {
	Entity         model.Auditable
	Action         model.Action
	UserID         string
	TeamSlug       string
	Details        string
	CorrelationID  string
	RequestID      string
	IPAddress      *string
	UserAgent      *string
	RiskScore      *int
	SnapshotBefore interface{}
	SnapshotAfter  interface{}
}

type AuditService struct {
	repo repository.AuditRepository

	mu       sync.Mutex
	contexts map[string]*model.CorrelationContext
	window   time.Duration
	now      func() time.Time
}

func NewAuditService(repo repository.AuditRepository, correlationWindow time.Duration) *AuditService {
	return &AuditService{
		repo:     repo,
		contexts: make(map[string]*model.CorrelationContext),
		window:   correlationWindow,
		now:      time.Now,
	}
}

// buildEntry enriches a record into a persistable entry.
func (s *AuditService) buildEntry(rec Record) (*model.Entry, error) {
	before, err := model.Snapshot(rec.SnapshotBefore)
	if err != nil {
		return nil, err
	}
	after, err := model.Snapshot(rec.SnapshotAfter)
	if err != nil {
		return nil, err
	}

	userID := rec.UserID
	if userID == "" {
		userID = "system"
	}

	entry := &model.Entry{
		ID:                   uuid.New(),
		EntityID:             rec.Entity.EntityID(),
		EntityType:           rec.Entity.EntityType(),
		Action:               rec.Action,
		UserID:               userID,
		TeamSlug:             rec.TeamSlug,
		Timestamp:            s.now().UTC(),
		Details:              rec.Details,
		Category:             model.DeriveCategory(rec.Action),
		Severity:             model.DeriveSeverity(rec.Action),
		IsSensitive:          model.IsSensitiveAction(rec.Action),
		CorrelationID:        rec.CorrelationID,
		RequestID:            rec.RequestID,
		IPAddress:            rec.IPAddress,
		UserAgent:            rec.UserAgent,
		RiskScore:            rec.RiskScore,
		EntitySnapshotBefore: before,
		EntitySnapshotAfter:  after,
	}
	entry.IntegrityHash = entry.ComputeIntegrityHash()

	s.attachEvent(rec.CorrelationID, string(rec.Action))
	return entry, nil
}

// Write persists an audit record on its own connection.
func (s *AuditService) Write(ctx context.Context, rec Record) error {
	entry, err := s.buildEntry(rec)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, entry)
}

// WriteWithTx persists an audit record inside the caller's
// transaction. Used by the payment transition hook.
func (s *AuditService) WriteWithTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	entry, err := s.buildEntry(rec)
	if err != nil {
		return err
	}
	return s.repo.InsertWithTx(ctx, tx, entry)
}

// Query filters persisted entries.
func (s *AuditService) Query(ctx context.Context, filter model.QueryFilter) ([]*model.Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Query(ctx, filter)
}

// VerifyIntegrity recomputes hashes over recent entries.
func (s *AuditService) VerifyIntegrity(ctx context.Context, limit int) (*model.IntegrityReport, error) {
	return s.repo.VerifyIntegrity(ctx, limit)
}

// =====================================================
// CORRELATION CONTEXTS
// =====================================================

// BeginCorrelation opens a context for one logical request and returns
// its correlation ID.
func (s *AuditService) BeginCorrelation(operationType, entityID string, metadata map[string]string) string {
	id := xid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[id] = &model.CorrelationContext{
		CorrelationID: id,
		OperationType: operationType,
		EntityID:      entityID,
		StartedAt:     s.now(),
		Metadata:      metadata,
	}
	return id
}

// attachEvent appends an event name to the active context, if any.
func (s *AuditService) attachEvent(correlationID, event string) {
	if correlationID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cc, ok := s.contexts[correlationID]; ok {
		cc.Events = append(cc.Events, event)
	}
}

// CompleteCorrelation stamps the outcome on the context. The context
// stays resident for the eviction window so late readers can inspect it.
func (s *AuditService) CompleteCorrelation(correlationID string, success bool, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, ok := s.contexts[correlationID]
	if !ok {
		return
	}
	now := s.now()
	cc.CompletedAt = &now
	cc.Success = &success
	cc.Summary = summary
	cc.Duration = now.Sub(cc.StartedAt)
}

// GetCorrelation returns a resident context, or nil after eviction.
func (s *AuditService) GetCorrelation(correlationID string) *model.CorrelationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cc, ok := s.contexts[correlationID]; ok {
		copied := *cc
		return &copied
	}
	return nil
}

// EvictStaleCorrelations drops completed contexts past the window and
// returns how many were removed. Called from the maintenance timer.
func (s *AuditService) EvictStaleCorrelations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, cc := range s.contexts {
		reference := cc.StartedAt
		if cc.CompletedAt != nil {
			reference = *cc.CompletedAt
		}
		if now.Sub(reference) > s.window {
			delete(s.contexts, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Debug("evicted stale correlation contexts")
	}
	return evicted
}

// ArchiveOlderThan delegates the retention sweep to the repository.
func (s *AuditService) ArchiveOlderThan(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	return s.repo.ArchiveOlderThan(ctx, cutoff, batch)
}
