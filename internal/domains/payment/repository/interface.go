package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"paygate-backend/internal/domains/payment/model"
)

// =====================================================
// PAYMENT REPOSITORY INTERFACE
// =====================================================

// TransitionHook runs inside the transition transaction. The container
// wires the audit writer here so the audit row commits or rolls back
// together with the payment mutation.
type TransitionHook func(ctx context.Context, tx pgx.Tx, payment *model.Payment, record *model.TransitionRecord) error

type PaymentRepository interface {
	// ============================================
	// WRITES
	// ============================================

	// Create inserts the INIT row. Duplicate (team_id, order_id)
	// surfaces model.ErrDuplicateOrder.
	Create(ctx context.Context, payment *model.Payment) error

	// SaveTransition persists the payment and appends its transition
	// record in one transaction. Registered hooks run in the same
	// transaction.
	SaveTransition(ctx context.Context, payment *model.Payment, record *model.TransitionRecord) error

	// Update persists mutable payment fields outside a transition
	// (error fields, payment URL).
	Update(ctx context.Context, payment *model.Payment) error

	// IncrementAuthorizationAttempts bumps the per-payment counter.
	IncrementAuthorizationAttempts(ctx context.Context, id uuid.UUID) error

	// ============================================
	// READS
	// ============================================

	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*model.Payment, error)

	// GetByTeamOrder resolves the idempotency key. Returns nil when no
	// payment exists for the pair.
	GetByTeamOrder(ctx context.Context, teamID uuid.UUID, orderID string) (*model.Payment, error)

	// ListActive returns non-terminal payments of a team.
	ListActive(ctx context.Context, teamID uuid.UUID) ([]*model.Payment, error)

	// ListExpiredCandidates returns payments whose deadline has passed
	// and whose status has a permitted path to EXPIRED. Consumed by the
	// expiry sweeper.
	ListExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]*model.Payment, error)

	// ListByStatuses returns payments in the given statuses, oldest
	// first. Consumed by the reconciliation worker.
	ListByStatuses(ctx context.Context, statuses []model.Status, limit int) ([]*model.Payment, error)

	// List filters payments for the admin surface.
	List(ctx context.Context, req model.ListPaymentsRequest) ([]*model.Payment, int, error)

	// GetDailyTotal sums confirmed amounts of a team for the calendar
	// day containing at (UTC). Feeds the daily-limit rule predicate.
	GetDailyTotal(ctx context.Context, teamID uuid.UUID, at time.Time) (int64, error)

	// GetTransition loads a transition record by its ID.
	GetTransition(ctx context.Context, transitionID string) (*model.TransitionRecord, error)
}

// =====================================================
// TRANSITION REPOSITORY INTERFACE
// =====================================================

type TransitionRepository interface {
	// ListByPayment returns the ordered transition history.
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*model.TransitionRecord, error)
}

// =====================================================
// RETRY REPOSITORY INTERFACE
// =====================================================

type RetryRepository interface {
	// CreateAttempt appends one retry attempt row.
	CreateAttempt(ctx context.Context, attempt *model.RetryAttempt) error

	// CountByPayment returns how many attempts were already recorded.
	CountByPayment(ctx context.Context, paymentID uuid.UUID) (int, error)

	// ListByPayment returns the attempts in attempt order.
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*model.RetryAttempt, error)
}
