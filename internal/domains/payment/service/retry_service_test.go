package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/internal/shared/errcodes"
)

// =====================================================
// FAKES
// =====================================================

type fakeRetryRepo struct {
	mu   sync.Mutex
	rows []*model.RetryAttempt
}

func (r *fakeRetryRepo) CreateAttempt(_ context.Context, attempt *model.RetryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, attempt)
	return nil
}

func (r *fakeRetryRepo) CountByPayment(_ context.Context, paymentID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.rows {
		if row.PaymentID == paymentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRetryRepo) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]*model.RetryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RetryAttempt
	for _, row := range r.rows {
		if row.PaymentID == paymentID {
			out = append(out, row)
		}
	}
	return out, nil
}

// scriptedProcessor fails until the scripted errors run out, then
// succeeds. A nil entry means success.
type scriptedProcessor struct {
	mu     sync.Mutex
	script []error
	calls  int
}

func (p *scriptedProcessor) ProcessPayment(_ context.Context, payment *model.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.script) == 0 {
		payment.Status = model.StatusAuthorized
		return nil
	}
	err := p.script[0]
	p.script = p.script[1:]
	if err == nil {
		payment.Status = model.StatusAuthorized
	}
	return err
}

func transientErr() error {
	return model.NewPaymentError(errcodes.BankDeclined, "issuer unavailable", nil)
}

// instantPolicy removes real sleeping from tests.
func instantPolicy(maxAttempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.DelayFunc = func(int) time.Duration { return 0 }
	return p
}

type retryHarness struct {
	svc      *RetryService
	repo     *fakePaymentRepo
	attempts *fakeRetryRepo
	proc     *scriptedProcessor
	payment  *model.Payment
}

func newRetryHarness(t *testing.T, script ...error) *retryHarness {
	t.Helper()

	repo := newFakePaymentRepo()
	attempts := &fakeRetryRepo{}
	proc := &scriptedProcessor{script: script}
	locks := lock.NewMemoryManager(lock.Options{MaxAttempts: 2, RetryBackoff: time.Millisecond})

	errCode := errcodes.BankDeclined
	payment := &model.Payment{
		ID:        uuid.New(),
		PaymentID: "pay-1",
		OrderID:   "order-1",
		TeamID:    uuid.New(),
		Amount:    10000,
		Status:    model.StatusAuthFail,
		ErrorCode: &errCode,
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.payments[payment.PaymentID] = payment

	return &retryHarness{
		svc:      NewRetryService(repo, attempts, locks, proc, time.Second, 1000000),
		repo:     repo,
		attempts: attempts,
		proc:     proc,
		payment:  payment,
	}
}

// =====================================================
// RETRY
// =====================================================

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	h := newRetryHarness(t, transientErr(), transientErr(), nil)

	result, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.AttemptsUsed)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, 1, result.Attempts[0].AttemptNumber)
	assert.False(t, result.Attempts[0].IsSuccess)
	assert.Equal(t, 3, result.Attempts[2].AttemptNumber)
	assert.True(t, result.Attempts[2].IsSuccess)
	assert.Len(t, h.attempts.rows, 3)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	h := newRetryHarness(t, transientErr(), transientErr(), transientErr())

	result, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.AttemptsUsed)
	for _, row := range result.Attempts {
		assert.False(t, row.IsSuccess)
		require.NotNil(t, row.ErrorCode)
		assert.Equal(t, errcodes.BankDeclined, *row.ErrorCode)
	}
}

func TestRetry_CumulativeAcrossInvocations(t *testing.T) {
	h := newRetryHarness(t, transientErr(), transientErr(), transientErr(), transientErr())

	// First invocation burns two of three attempts.
	_, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(2))
	require.NoError(t, err)
	assert.Len(t, h.attempts.rows, 2)

	// Second invocation gets exactly the remaining one.
	result, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	require.NoError(t, err)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.Equal(t, 3, result.Attempts[0].AttemptNumber)
	assert.Len(t, h.attempts.rows, 3)

	// Budget is now gone.
	_, err = h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	assert.ErrorIs(t, err, model.ErrRetryExhausted)
}

func TestRetry_SettledPaymentIsRejected(t *testing.T) {
	h := newRetryHarness(t)
	h.payment.Status = model.StatusConfirmed

	_, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	assert.ErrorIs(t, err, model.ErrRetryExhausted)
	assert.Zero(t, h.proc.calls)
}

func TestRetry_TooOldIsRejected(t *testing.T) {
	h := newRetryHarness(t)
	h.payment.CreatedAt = time.Now().Add(-25 * time.Hour)

	_, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	assert.ErrorIs(t, err, model.ErrRetryExhausted)
	assert.Zero(t, h.proc.calls)
}

func TestRetry_NonRetryableCodeStopsUpfront(t *testing.T) {
	h := newRetryHarness(t)
	code := errcodes.RuleViolation
	h.payment.ErrorCode = &code

	_, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	assert.ErrorIs(t, err, model.ErrRetryExhausted)
	assert.Zero(t, h.proc.calls)
}

func TestRetry_NonRetryableFailureStopsEarly(t *testing.T) {
	fatal := model.NewPaymentError(errcodes.RuleViolation, "denied", nil)
	h := newRetryHarness(t, fatal, transientErr())

	result, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.Equal(t, 1, h.proc.calls)
}

func TestRetry_OpaqueErrorIsRetryable(t *testing.T) {
	// Errors without a gateway code map to BankDeclined, which is in
	// the transient set.
	h := newRetryHarness(t, errors.New("connection reset"), nil)

	result, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.AttemptsUsed)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	h := newRetryHarness(t, transientErr(), transientErr())

	policy := instantPolicy(3)
	policy.DelayFunc = func(int) time.Duration { return time.Minute }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result, err := h.svc.Retry(ctx, "pay-1", policy)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.AttemptsUsed)
}

func TestRetry_RecordsStatusProgression(t *testing.T) {
	h := newRetryHarness(t, nil)

	result, err := h.svc.Retry(context.Background(), "pay-1", instantPolicy(3))
	require.NoError(t, err)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, model.StatusAuthFail, result.Attempts[0].StatusBefore)
	assert.Equal(t, model.StatusAuthorized, result.Attempts[0].StatusAfter)
	assert.Equal(t, PolicyDefault, result.Attempts[0].PolicyName)
}

// =====================================================
// POLICIES
// =====================================================

func TestPolicy_DelaySchedule(t *testing.T) {
	p := DefaultPolicy()
	p.JitterFraction = 0

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}

func TestPolicy_DelayCapped(t *testing.T) {
	p := ConservativePolicy()
	p.JitterFraction = 0

	assert.Equal(t, time.Hour, p.Delay(20))
}

func TestPolicy_JitterStaysInBand(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestPolicy_UnknownCodeNotRetryable(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.IsRetryable("4242"))
	assert.True(t, p.IsRetryable(errcodes.BankDeclined))
	assert.False(t, p.IsRetryable(errcodes.RuleViolation))
}

func TestSelectPolicy_AmountBand(t *testing.T) {
	assert.Equal(t, PolicyDefault, SelectPolicy(5000, 1000000).Name)
	assert.Equal(t, PolicyConservative, SelectPolicy(2000000, 1000000).Name)
	assert.Equal(t, PolicyDefault, SelectPolicy(2000000, 0).Name)
}

func TestPolicyByName_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, PolicyAggressive, PolicyByName("aggressive").Name)
	assert.Equal(t, PolicyConservative, PolicyByName("conservative").Name)
	assert.Equal(t, PolicyDefault, PolicyByName("no-such-policy").Name)
}

// =====================================================
// SCHEDULED RETRIES
// =====================================================

func TestSchedule_FireDueRunsOnlyDueEntries(t *testing.T) {
	h := newRetryHarness(t, nil)

	h.svc.Schedule("pay-1", time.Now().Add(-time.Second), PolicyDefault)
	h.svc.Schedule("pay-future", time.Now().Add(time.Hour), PolicyDefault)

	fired := h.svc.FireDue(context.Background())
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, h.proc.calls)
	assert.Equal(t, 1, h.svc.ScheduledCount())
}

func TestSchedule_FailureDoesNotBlockOthers(t *testing.T) {
	h := newRetryHarness(t, nil)

	// pay-missing has no payment row; its retry errors but pay-1 still
	// fires.
	h.svc.Schedule("pay-missing", time.Now().Add(-2*time.Second), PolicyDefault)
	h.svc.Schedule("pay-1", time.Now().Add(-time.Second), PolicyDefault)

	fired := h.svc.FireDue(context.Background())
	assert.Equal(t, 2, fired)
	assert.Equal(t, 1, h.proc.calls)
	assert.Zero(t, h.svc.ScheduledCount())
}

func TestSchedule_ReplacesPendingEntry(t *testing.T) {
	h := newRetryHarness(t)

	h.svc.Schedule("pay-1", time.Now().Add(time.Hour), PolicyDefault)
	h.svc.Schedule("pay-1", time.Now().Add(2*time.Hour), PolicyConservative)
	assert.Equal(t, 1, h.svc.ScheduledCount())
}
