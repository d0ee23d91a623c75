package statemachine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/pkg/logger"
)

// =====================================================
// PAYMENT STATE MACHINE
// =====================================================
// Sole mutator of Payment.Status. Every transition is serialised by a
// per-payment lease, validated against the table and the target's
// predicate, then persisted atomically with its transition record.

// SystemUser is recorded on transitions with no acting user.
const SystemUser = "system"

// Store persists a payment together with its transition record in one
// transaction. Implemented by the payment repository.
type Store interface {
	SaveTransition(ctx context.Context, payment *model.Payment, record *model.TransitionRecord) error
	GetTransition(ctx context.Context, transitionID string) (*model.TransitionRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
}

type Machine struct {
	locks      lock.Manager
	store      Store
	lockExpiry time.Duration
	now        func() time.Time
}

// NewMachine creates the state machine. lockExpiry must cover the
// longest expected transition persistence.
func NewMachine(locks lock.Manager, store Store, lockExpiry time.Duration) *Machine {
	return &Machine{
		locks:      locks,
		store:      store,
		lockExpiry: lockExpiry,
		now:        time.Now,
	}
}

func lockResource(p *model.Payment) string {
	return fmt.Sprintf("payment_state_transition_%s", p.ID)
}

// Transition drives payment into target.
//
// Business Logic Flow:
// 1. Acquire the per-payment transition lease; contention fails fast
//    with a lock conflict and no state change.
// 2. Re-read the persisted status under the lease. A caller holding a
//    copy fetched before a concurrent transition re-evaluates against
//    the stored status, not its stale one.
// 3. Check the transition table.
// 4. Evaluate the target's business predicate.
// 5. Mutate status and the per-state timestamp, append the transition
//    record, persist both atomically.
// 6. On persistence failure restore the in-memory payment so the
//    operation appears not to have happened.
func (m *Machine) Transition(ctx context.Context, p *model.Payment, target model.Status, userID string, reason *string, trCtx map[string]string) (*model.TransitionResult, error) {
	lease, err := m.locks.Acquire(ctx, lockResource(p), m.lockExpiry)
	if err != nil {
		if err == lock.ErrLockUnavailable {
			return nil, model.NewLockConflictError(lockResource(p))
		}
		return nil, fmt.Errorf("failed to acquire transition lock: %w", err)
	}
	defer m.locks.Release(ctx, lease)

	if err := m.refreshUnderLease(ctx, p); err != nil {
		return nil, err
	}

	if verdict := m.CanTransition(p, target); !verdict.Allowed {
		if !Allowed(p.Status, target) {
			return nil, model.NewInvalidTransitionError(p.Status, target)
		}
		return nil, model.NewRuleViolationError(verdict.Violations)
	}

	return m.apply(ctx, p, target, userID, reason, trCtx, false, nil)
}

// apply performs step 4 of the transition contract. Callers hold the
// transition lease and have already validated the move.
func (m *Machine) apply(ctx context.Context, p *model.Payment, target model.Status, userID string, reason *string, trCtx map[string]string, isRollback bool, rollbackOf *string) (*model.TransitionResult, error) {
	if userID == "" {
		userID = SystemUser
	}

	now := m.now()
	before := *p

	record := &model.TransitionRecord{
		TransitionID:   xid.New().String(),
		PaymentID:      p.ID,
		FromStatus:     before.Status,
		ToStatus:       target,
		TransitionedAt: now,
		UserID:         userID,
		Reason:         reason,
		Context:        trCtx,
		IsRollback:     isRollback,
		RollbackOf:     rollbackOf,
	}

	p.Status = target
	p.ApplyStatusTimestamp(target, now)

	if err := m.store.SaveTransition(ctx, p, record); err != nil {
		*p = before
		if errors.Is(err, model.ErrStaleStatus) {
			// The row moved between our re-read and the write. The
			// caller re-evaluates, same as losing the lease race.
			return nil, model.NewInvalidTransitionError(before.Status, target)
		}
		logger.Error("transition persistence failed", err)
		return nil, fmt.Errorf("%w: %v", model.ErrPersistenceFailed, err)
	}

	return &model.TransitionResult{
		FromStatus:     before.Status,
		ToStatus:       target,
		TransitionID:   record.TransitionID,
		TransitionedAt: now,
		Context:        trCtx,
	}, nil
}

// refreshUnderLease reconciles the caller's copy with the persisted
// row. Only status-bearing fields are taken; the caller's pending field
// mutations survive when the status still matches.
func (m *Machine) refreshUnderLease(ctx context.Context, p *model.Payment) error {
	current, err := m.store.GetByID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, model.ErrPaymentNotFound) {
			return nil
		}
		return fmt.Errorf("failed to re-read payment under lease: %w", err)
	}
	if current.Status == p.Status {
		return nil
	}

	p.Status = current.Status
	p.RefundedAmount = current.RefundedAmount
	p.RefundCount = current.RefundCount
	p.AuthorizationAttempts = current.AuthorizationAttempts
	p.UpdatedAt = current.UpdatedAt
	return nil
}

// CanTransition is the non-mutating table + predicate check.
func (m *Machine) CanTransition(p *model.Payment, target model.Status) model.Verdict {
	if !Allowed(p.Status, target) {
		return model.Verdict{
			Allowed:    false,
			Violations: []string{fmt.Sprintf("transition %s -> %s is not in the table", p.Status, target)},
		}
	}

	violations := m.validateTarget(p, target)
	return model.Verdict{
		Allowed:    len(violations) == 0,
		Violations: violations,
	}
}

// validateTarget runs the per-target business predicate.
func (m *Machine) validateTarget(p *model.Payment, target model.Status) []string {
	now := m.now()
	var violations []string

	switch target {
	case model.StatusAuthorizing:
		if p.Amount <= 0 {
			violations = append(violations, "amount must be positive")
		}
		if p.IsExpired(now) {
			violations = append(violations, "payment session has expired")
		}
		if !p.CanRetryAuthorization() {
			violations = append(violations, "authorization attempt limit reached")
		}
	case model.StatusConfirming:
		if p.AuthorizedAt == nil {
			violations = append(violations, "payment was never authorized")
		}
		if p.IsExpired(now) {
			violations = append(violations, "payment session has expired")
		}
	case model.StatusRefunding:
		if p.RefundableAmount() <= 0 {
			violations = append(violations, "nothing left to refund")
		}
	case model.StatusExpired:
		if !p.IsExpired(now) {
			violations = append(violations, "payment deadline has not passed")
		}
	}

	return violations
}

// Rollback reverses a prior transition.
//
// Business Logic Flow:
// 1. Acquire the per-payment transition lease.
// 2. Load the named transition; the payment must currently sit in its
//    ToStatus, and that status must be non-terminal.
// 3. The table must permit moving back to the original FromStatus.
// 4. Record the reversal as a fresh transition with IsRollback set.
func (m *Machine) Rollback(ctx context.Context, p *model.Payment, transitionID, userID string) (*model.TransitionResult, error) {
	lease, err := m.locks.Acquire(ctx, lockResource(p), m.lockExpiry)
	if err != nil {
		if err == lock.ErrLockUnavailable {
			return nil, model.NewLockConflictError(lockResource(p))
		}
		return nil, fmt.Errorf("failed to acquire transition lock: %w", err)
	}
	defer m.locks.Release(ctx, lease)

	if err := m.refreshUnderLease(ctx, p); err != nil {
		return nil, err
	}

	record, err := m.store.GetTransition(ctx, transitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transition %s: %w", transitionID, err)
	}
	if record == nil || record.PaymentID != p.ID {
		return nil, model.ErrTransitionNotFound
	}

	if p.Status != record.ToStatus {
		return nil, fmt.Errorf("%w: payment has moved past transition %s", model.ErrRollbackNotAllowed, transitionID)
	}
	if p.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: current status %s is terminal", model.ErrRollbackNotAllowed, p.Status)
	}
	if !Allowed(p.Status, record.FromStatus) {
		return nil, fmt.Errorf("%w: no permitted path %s -> %s", model.ErrRollbackNotAllowed, p.Status, record.FromStatus)
	}

	reason := fmt.Sprintf("rollback of %s", transitionID)
	return m.apply(ctx, p, record.FromStatus, userID, &reason, nil, true, &transitionID)
}
