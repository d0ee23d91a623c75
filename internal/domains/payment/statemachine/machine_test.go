package statemachine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/infrastructure/lock"
)

// fakeStore records transitions and the last persisted payment state
// in memory, mirroring what the pgx repository exposes.
type fakeStore struct {
	records   []*model.TransitionRecord
	persisted *model.Payment
	failSav   bool
	staleSav  bool
}

func (s *fakeStore) SaveTransition(_ context.Context, p *model.Payment, record *model.TransitionRecord) error {
	if s.failSav {
		return errors.New("connection reset")
	}
	if s.staleSav {
		return model.ErrStaleStatus
	}
	cp := *p
	s.persisted = &cp
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) GetTransition(_ context.Context, transitionID string) (*model.TransitionRecord, error) {
	for _, r := range s.records {
		if r.TransitionID == transitionID {
			return r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	if s.persisted == nil || s.persisted.ID != id {
		return nil, model.ErrPaymentNotFound
	}
	cp := *s.persisted
	return &cp, nil
}

func newTestMachine(store *fakeStore) *Machine {
	locks := lock.NewMemoryManager(lock.Options{MaxAttempts: 1, RetryBackoff: time.Millisecond})
	return NewMachine(locks, store, 30*time.Second)
}

func newTestPayment(status model.Status) *model.Payment {
	return &model.Payment{
		ID:                 uuid.New(),
		PaymentID:          "pg-test-1",
		OrderID:            "O-1",
		TeamID:             uuid.New(),
		TeamSlug:           "acme",
		Amount:             150000,
		Currency:           "RUB",
		Status:             status,
		ExpiresAt:          time.Now().Add(30 * time.Minute),
		MaxAllowedAttempts: 3,
	}
}

func TestTable_TerminalStatusesHaveNoTargets(t *testing.T) {
	for _, s := range []model.Status{
		model.StatusCancelled, model.StatusReversed, model.StatusRefunded,
		model.StatusRejected, model.StatusExpired, model.StatusDeadlineExpired,
	} {
		assert.Empty(t, TargetsFrom(s), "terminal status %s must have no targets", s)
		assert.True(t, s.IsTerminal())
	}
}

func TestTable_SpotChecks(t *testing.T) {
	assert.True(t, Allowed(model.StatusInit, model.StatusNew))
	assert.True(t, Allowed(model.StatusNew, model.StatusAuthorizing))
	assert.True(t, Allowed(model.StatusAuthorizing, model.StatusAuthorized))
	assert.True(t, Allowed(model.StatusConfirming, model.StatusConfirmed))
	assert.True(t, Allowed(model.StatusConfirmed, model.StatusRefunding))
	assert.True(t, Allowed(model.StatusRefunding, model.StatusPartialRefunded))

	assert.False(t, Allowed(model.StatusInit, model.StatusConfirmed))
	assert.False(t, Allowed(model.StatusNew, model.StatusRefunding))
	assert.False(t, Allowed(model.StatusConfirmed, model.StatusCancelled))
	assert.False(t, Allowed(model.StatusExpired, model.StatusNew))
}

func TestTransition_HappyPath(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	result, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusNew, result.FromStatus)
	assert.Equal(t, model.StatusAuthorizing, result.ToStatus)
	assert.NotEmpty(t, result.TransitionID)
	assert.Equal(t, model.StatusAuthorizing, p.Status)
	assert.NotNil(t, p.AuthorizingAt)

	require.Len(t, store.records, 1)
	assert.Equal(t, "merchant", store.records[0].UserID)
	assert.False(t, store.records[0].IsRollback)
}

func TestTransition_DefaultsToSystemUser(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	_, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, SystemUser, store.records[0].UserID)
}

func TestTransition_InvalidTarget(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	_, err := m.Transition(context.Background(), p, model.StatusRefunding, "merchant", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StatusNew, p.Status)
	assert.Empty(t, store.records)
}

func TestTransition_ExpiredBlocksAuthorizing(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)
	p.ExpiresAt = time.Now().Add(-time.Minute)

	_, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRuleViolation)
	assert.Equal(t, model.StatusNew, p.Status)
}

func TestTransition_AttemptBudgetBlocksAuthorizing(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusAuthFail)
	p.AuthorizationAttempts = 3

	verdict := m.CanTransition(p, model.StatusAuthorizing)
	assert.False(t, verdict.Allowed)
	assert.Contains(t, verdict.Violations, "authorization attempt limit reached")
}

func TestTransition_ExpiredTargetRequiresDeadline(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)

	p := newTestPayment(model.StatusNew)
	verdict := m.CanTransition(p, model.StatusExpired)
	assert.False(t, verdict.Allowed)

	p.ExpiresAt = time.Now().Add(-time.Second)
	verdict = m.CanTransition(p, model.StatusExpired)
	assert.True(t, verdict.Allowed)
}

func TestTransition_RefundingRequiresRefundable(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusConfirmed)
	p.RefundedAmount = p.Amount

	verdict := m.CanTransition(p, model.StatusRefunding)
	assert.False(t, verdict.Allowed)
	assert.Contains(t, verdict.Violations, "nothing left to refund")
}

func TestTransition_PersistenceFailureRestoresPayment(t *testing.T) {
	store := &fakeStore{failSav: true}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	_, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistenceFailed)
	assert.Equal(t, model.StatusNew, p.Status)
	assert.Nil(t, p.AuthorizingAt)
}

func TestTransition_LockConflict(t *testing.T) {
	store := &fakeStore{}
	locks := lock.NewMemoryManager(lock.Options{MaxAttempts: 1, RetryBackoff: time.Millisecond})
	m := NewMachine(locks, store, 30*time.Second)
	p := newTestPayment(model.StatusNew)

	// Hold the payment's transition lease from outside.
	lease, err := locks.Acquire(context.Background(), lockResource(p), time.Minute)
	require.NoError(t, err)
	defer locks.Release(context.Background(), lease)

	_, err = m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrLockConflict)
	assert.Equal(t, model.StatusNew, p.Status)
}

func TestRollback(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusAuthFail)

	result, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.NoError(t, err)

	rb, err := m.Rollback(context.Background(), p, result.TransitionID, "operator")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAuthorizing, rb.FromStatus)
	assert.Equal(t, model.StatusAuthFail, rb.ToStatus)
	assert.Equal(t, model.StatusAuthFail, p.Status)

	require.Len(t, store.records, 2)
	assert.True(t, store.records[1].IsRollback)
	require.NotNil(t, store.records[1].RollbackOf)
	assert.Equal(t, result.TransitionID, *store.records[1].RollbackOf)
}

func TestRollback_RejectsWhenStatusMoved(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	first, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), p, model.StatusAuthorized, "merchant", nil, nil)
	require.NoError(t, err)

	_, err = m.Rollback(context.Background(), p, first.TransitionID, "operator")
	assert.ErrorIs(t, err, model.ErrRollbackNotAllowed)
}

func TestRollback_RejectsTerminal(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	result, err := m.Transition(context.Background(), p, model.StatusCancelled, "merchant", nil, nil)
	require.NoError(t, err)

	_, err = m.Rollback(context.Background(), p, result.TransitionID, "operator")
	assert.ErrorIs(t, err, model.ErrRollbackNotAllowed)
	assert.Equal(t, model.StatusCancelled, p.Status)
}

func TestRollback_UnknownTransition(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	_, err := m.Rollback(context.Background(), p, "missing", "operator")
	assert.ErrorIs(t, err, model.ErrTransitionNotFound)
}

func TestTransition_StaleCopyObservesPersistedStatus(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusConfirmed)

	// Copy fetched before the refund settles.
	stale := *p

	_, err := m.Transition(context.Background(), p, model.StatusRefunding, "merchant", nil, nil)
	require.NoError(t, err)
	p.RefundedAmount = p.Amount
	_, err = m.Transition(context.Background(), p, model.StatusRefunded, "merchant", nil, nil)
	require.NoError(t, err)

	// The loser of the race re-evaluates against REFUNDED, not its
	// in-memory CONFIRMED, and cannot pull the payment out of a
	// terminal state.
	_, err = m.Transition(context.Background(), &stale, model.StatusRefunding, "merchant", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StatusRefunded, stale.Status)
	assert.Equal(t, stale.Amount, stale.RefundedAmount)
	require.Len(t, store.records, 2)

	// The record chain stays contiguous.
	assert.Equal(t, store.records[0].ToStatus, store.records[1].FromStatus)
}

func TestTransition_StaleWriteRejectedByStore(t *testing.T) {
	store := &fakeStore{staleSav: true}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusNew)

	_, err := m.Transition(context.Background(), p, model.StatusAuthorizing, "merchant", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StatusNew, p.Status)
	assert.Empty(t, store.records)
}

func TestExpirableStatuses(t *testing.T) {
	expirable := ExpirableStatuses()

	for _, s := range []model.Status{
		model.StatusInit, model.StatusNew, model.StatusFormShowed,
		model.StatusAuthorizing, model.StatusAuthorized,
	} {
		assert.Contains(t, expirable, s)
	}
	for _, s := range []model.Status{
		model.StatusConfirming, model.StatusConfirmed, model.StatusRefunding,
		model.StatusExpired, model.StatusCancelled,
	} {
		assert.NotContains(t, expirable, s)
	}

	// Every listed status must actually hold the edge.
	for _, s := range expirable {
		assert.True(t, Allowed(s, model.StatusExpired))
	}
}

func TestTransition_ChainReproducesHistory(t *testing.T) {
	store := &fakeStore{}
	m := newTestMachine(store)
	p := newTestPayment(model.StatusInit)

	path := []model.Status{
		model.StatusNew, model.StatusAuthorizing, model.StatusAuthorized,
		model.StatusConfirming, model.StatusConfirmed,
	}
	for _, target := range path {
		_, err := m.Transition(context.Background(), p, target, "", nil, nil)
		require.NoError(t, err, "transition to %s", target)
	}

	require.Len(t, store.records, len(path))
	for i := 1; i < len(store.records); i++ {
		assert.Equal(t, store.records[i-1].ToStatus, store.records[i].FromStatus)
	}
	assert.Equal(t, model.StatusConfirmed, p.Status)
	assert.NotNil(t, p.ConfirmedAt)
}
