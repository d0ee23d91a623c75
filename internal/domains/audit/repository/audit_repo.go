package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paygate-backend/internal/domains/audit/model"
)

// =====================================================
// AUDIT REPOSITORY
// =====================================================

type AuditRepository interface {
	// ============================================
	// TRANSACTION-AWARE METHODS
	// ============================================

	// InsertWithTx appends an entry inside the caller's transaction.
	// Used by the transition hook so the audit row commits with the
	// payment mutation.
	InsertWithTx(ctx context.Context, tx pgx.Tx, entry *model.Entry) error

	// ============================================
	// STANDALONE METHODS
	// ============================================

	Insert(ctx context.Context, entry *model.Entry) error
	Query(ctx context.Context, filter model.QueryFilter) ([]*model.Entry, error)

	// ArchiveOlderThan flags rows older than cutoff; returns how many.
	ArchiveOlderThan(ctx context.Context, cutoff time.Time, batch int) (int, error)

	// VerifyIntegrity recomputes hashes over recent rows.
	VerifyIntegrity(ctx context.Context, limit int) (*model.IntegrityReport, error)
}

const auditColumns = `
	id, entity_id, entity_type, action, user_id, team_slug, timestamp,
	details, category, severity, is_sensitive,
	correlation_id, request_id, session_id, ip_address, user_agent, risk_score,
	entity_snapshot_before, entity_snapshot_after,
	integrity_hash, is_archived, archived_at`

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const insertAuditQuery = `
	INSERT INTO audit_log (
		id, entity_id, entity_type, action, user_id, team_slug, timestamp,
		details, category, severity, is_sensitive,
		correlation_id, request_id, session_id, ip_address, user_agent, risk_score,
		entity_snapshot_before, entity_snapshot_after, integrity_hash
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16, $17, $18, $19, $20
	)
`

func auditArgs(e *model.Entry) []interface{} {
	return []interface{}{
		e.ID, e.EntityID, e.EntityType, e.Action, e.UserID, e.TeamSlug, e.Timestamp,
		e.Details, e.Category, e.Severity, e.IsSensitive,
		e.CorrelationID, e.RequestID, e.SessionID, e.IPAddress, e.UserAgent, e.RiskScore,
		e.EntitySnapshotBefore, e.EntitySnapshotAfter, e.IntegrityHash,
	}
}

func (r *auditRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, entry *model.Entry) error {
	if _, err := tx.Exec(ctx, insertAuditQuery, auditArgs(entry)...); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) Insert(ctx context.Context, entry *model.Entry) error {
	if _, err := r.pool.Exec(ctx, insertAuditQuery, auditArgs(entry)...); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) Query(ctx context.Context, filter model.QueryFilter) ([]*model.Entry, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	pos := 1

	add := func(clause string, value interface{}) {
		where += fmt.Sprintf(" AND "+clause, pos)
		args = append(args, value)
		pos++
	}

	if filter.EntityID != nil {
		add("entity_id = $%d", *filter.EntityID)
	}
	if filter.EntityType != nil {
		add("entity_type = $%d", *filter.EntityType)
	}
	if filter.Action != nil {
		add("action = $%d", string(*filter.Action))
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.TeamSlug != nil {
		add("team_slug = $%d", *filter.TeamSlug)
	}
	if filter.FromDate != nil {
		add("timestamp >= $%d", *filter.FromDate)
	}
	if filter.ToDate != nil {
		add("timestamp <= $%d", *filter.ToDate)
	}
	if filter.Category != nil {
		add("category = $%d", string(*filter.Category))
	}
	if filter.CorrelationID != nil {
		add("correlation_id = $%d", *filter.CorrelationID)
	}
	if filter.RequestID != nil {
		add("request_id = $%d", *filter.RequestID)
	}
	if filter.IsSensitive != nil {
		add("is_sensitive = $%d", *filter.IsSensitive)
	}
	if filter.IsArchived != nil {
		add("is_archived = $%d", *filter.IsArchived)
	}
	if filter.MinSeverity != nil {
		// Severity ordering is encoded in SQL so the filter works
		// without loading every row.
		add(`(CASE severity
			WHEN 'INFO' THEN 0 WHEN 'WARNING' THEN 1
			WHEN 'ERROR' THEN 2 WHEN 'CRITICAL' THEN 3 END) >= (CASE $%d
			WHEN 'INFO' THEN 0 WHEN 'WARNING' THEN 1
			WHEN 'ERROR' THEN 2 WHEN 'CRITICAL' THEN 3 END)`, string(*filter.MinSeverity))
	}

	take := filter.Take
	if take <= 0 {
		take = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM audit_log %s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, auditColumns, where, pos, pos+1)
	args = append(args, take, filter.Skip)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *auditRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	query := `
		UPDATE audit_log
		SET is_archived = TRUE, archived_at = NOW()
		WHERE id IN (
			SELECT id FROM audit_log
			WHERE is_archived = FALSE AND timestamp < $1
			ORDER BY timestamp ASC
			LIMIT $2
		)
	`

	result, err := r.pool.Exec(ctx, query, cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to archive audit entries: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *auditRepository) VerifyIntegrity(ctx context.Context, limit int) (*model.IntegrityReport, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log ORDER BY timestamp DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	report := &model.IntegrityReport{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		report.Checked++
		if !e.VerifyIntegrity() {
			report.Tampered = append(report.Tampered, e.ID)
		}
	}
	return report, rows.Err()
}

func scanEntry(row pgx.Row) (*model.Entry, error) {
	var e model.Entry
	err := row.Scan(
		&e.ID, &e.EntityID, &e.EntityType, &e.Action, &e.UserID, &e.TeamSlug, &e.Timestamp,
		&e.Details, &e.Category, &e.Severity, &e.IsSensitive,
		&e.CorrelationID, &e.RequestID, &e.SessionID, &e.IPAddress, &e.UserAgent, &e.RiskScore,
		&e.EntitySnapshotBefore, &e.EntitySnapshotAfter,
		&e.IntegrityHash, &e.IsArchived, &e.ArchivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	return &e, nil
}
