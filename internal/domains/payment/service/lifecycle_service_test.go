package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "paygate-backend/internal/domains/audit/model"
	auditservice "paygate-backend/internal/domains/audit/service"
	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/statemachine"
	rulesmodel "paygate-backend/internal/domains/rules/model"
	rulesservice "paygate-backend/internal/domains/rules/service"
	teammodel "paygate-backend/internal/domains/team/model"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/internal/shared/errcodes"
)

// =====================================================
// FAKES
// =====================================================

// fakePaymentRepo keeps payments and transitions in memory. It doubles
// as the state machine store, the same way the pgx repository does.
type fakePaymentRepo struct {
	mu          sync.Mutex
	payments    map[string]*model.Payment
	transitions []*model.TransitionRecord
	increments  int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*model.Payment)}
}

func (r *fakePaymentRepo) Create(_ context.Context, p *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.TeamID == p.TeamID && existing.OrderID == p.OrderID {
			return model.ErrDuplicateOrder
		}
	}
	r.payments[p.PaymentID] = p
	return nil
}

func (r *fakePaymentRepo) SaveTransition(_ context.Context, p *model.Payment, record *model.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.PaymentID] = p
	r.transitions = append(r.transitions, record)
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, p *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.PaymentID] = p
	return nil
}

func (r *fakePaymentRepo) IncrementAuthorizationAttempts(_ context.Context, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.increments++
	return nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, model.ErrPaymentNotFound
}

func (r *fakePaymentRepo) GetByPaymentID(_ context.Context, paymentID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[paymentID]; ok {
		return p, nil
	}
	return nil, model.ErrPaymentNotFound
}

func (r *fakePaymentRepo) GetByTeamOrder(_ context.Context, teamID uuid.UUID, orderID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.TeamID == teamID && p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) ListActive(_ context.Context, teamID uuid.UUID) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.payments {
		if p.TeamID == teamID && !p.Status.IsTerminal() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ListExpiredCandidates(_ context.Context, now time.Time, _ int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.payments {
		if !p.Status.IsTerminal() && p.IsExpired(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ListByStatuses(_ context.Context, statuses []model.Status, _ int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.payments {
		for _, s := range statuses {
			if p.Status == s {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) List(_ context.Context, _ model.ListPaymentsRequest) ([]*model.Payment, int, error) {
	return nil, 0, nil
}

func (r *fakePaymentRepo) GetDailyTotal(_ context.Context, _ uuid.UUID, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *fakePaymentRepo) GetTransition(_ context.Context, transitionID string) (*model.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transitions {
		if t.TransitionID == transitionID {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

type fakeTransitionRepo struct {
	repo *fakePaymentRepo
}

func (r *fakeTransitionRepo) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]*model.TransitionRecord, error) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	var out []*model.TransitionRecord
	for _, t := range r.repo.transitions {
		if t.PaymentID == paymentID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeRuleRepo struct {
	rules []*rulesmodel.Rule
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *rulesmodel.Rule) error {
	r.rules = append(r.rules, rule)
	return nil
}
func (r *fakeRuleRepo) GetByID(_ context.Context, _ uuid.UUID) (*rulesmodel.Rule, error) {
	return nil, rulesmodel.ErrRuleNotFound
}
func (r *fakeRuleRepo) Update(_ context.Context, _ *rulesmodel.Rule) error { return nil }
func (r *fakeRuleRepo) Delete(_ context.Context, _ uuid.UUID) error        { return nil }
func (r *fakeRuleRepo) ListApplicable(_ context.Context, teamID uuid.UUID) ([]*rulesmodel.Rule, error) {
	var out []*rulesmodel.Rule
	for _, rule := range r.rules {
		if rule.TeamID == nil || *rule.TeamID == teamID {
			out = append(out, rule)
		}
	}
	return out, nil
}
func (r *fakeRuleRepo) List(_ context.Context, _, _ int) ([]*rulesmodel.Rule, int, error) {
	return r.rules, len(r.rules), nil
}

type nopCache struct{}

func (nopCache) Get(_ context.Context, _ string, _ interface{}) (bool, error)      { return false, nil }
func (nopCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error { return nil }
func (nopCache) Delete(_ context.Context, _ ...string) error                       { return nil }
func (nopCache) Ping(_ context.Context) error                                      { return nil }
func (nopCache) DeletePattern(_ context.Context, _ string) error                   { return nil }
func (nopCache) Increment(_ context.Context, _ string) (int64, error)              { return 0, nil }
func (nopCache) Exists(_ context.Context, _ string) (bool, error)                  { return false, nil }
func (nopCache) Expire(_ context.Context, _ string, _ time.Duration) error         { return nil }
func (nopCache) TTL(_ context.Context, _ string) (time.Duration, error)            { return 0, nil }

type fakeAuditSink struct {
	mu      sync.Mutex
	entries []*auditmodel.Entry
}

func (s *fakeAuditSink) Insert(_ context.Context, entry *auditmodel.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeAuditSink) InsertWithTx(ctx context.Context, _ pgx.Tx, entry *auditmodel.Entry) error {
	return s.Insert(ctx, entry)
}

func (s *fakeAuditSink) Query(_ context.Context, _ auditmodel.QueryFilter) ([]*auditmodel.Entry, error) {
	return nil, nil
}

func (s *fakeAuditSink) ArchiveOlderThan(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

func (s *fakeAuditSink) VerifyIntegrity(_ context.Context, _ int) (*auditmodel.IntegrityReport, error) {
	return &auditmodel.IntegrityReport{}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.TransitionResult
}

func (p *fakePublisher) PublishTransition(_ context.Context, _ *model.Payment, result *model.TransitionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, result)
}

type fakeAuthorizer struct {
	err error
}

func (a *fakeAuthorizer) Authorize(_ context.Context, _ *model.Payment) error { return a.err }

// =====================================================
// HARNESS
// =====================================================

type harness struct {
	svc       *LifecycleService
	repo      *fakePaymentRepo
	publisher *fakePublisher
	auth      *fakeAuthorizer
	team      *teammodel.Team
}

func newHarness(t *testing.T, rules ...*rulesmodel.Rule) *harness {
	t.Helper()

	repo := newFakePaymentRepo()
	locks := lock.NewMemoryManager(lock.Options{MaxAttempts: 3, RetryBackoff: time.Millisecond})
	machine := statemachine.NewMachine(locks, repo, time.Second)
	engine := rulesservice.NewEngine(&fakeRuleRepo{rules: rules}, nopCache{}, nil)
	audit := auditservice.NewAuditService(&fakeAuditSink{}, time.Minute)
	publisher := &fakePublisher{}
	auth := &fakeAuthorizer{}

	svc := NewLifecycleService(repo, &fakeTransitionRepo{repo: repo}, machine, locks, engine, audit, auth, publisher, Options{
		BaseURL:         "https://gw.example.com",
		LockExpiry:      time.Second,
		DefaultExpiry:   15 * time.Minute,
		MaxAuthAttempts: 3,
	})

	return &harness{
		svc:       svc,
		repo:      repo,
		publisher: publisher,
		auth:      auth,
		team: &teammodel.Team{
			ID:       uuid.New(),
			TeamSlug: "acme-shop",
			IsActive: true,
		},
	}
}

func initRequest(orderID string, amount int64) model.InitRequest {
	return model.InitRequest{
		TeamSlug: "acme-shop",
		OrderID:  orderID,
		Amount:   amount,
		Currency: "RUB",
		Token:    "t",
	}
}

func (h *harness) initialized(t *testing.T, orderID string, amount int64) *model.Payment {
	t.Helper()
	payment, err := h.svc.Initialize(context.Background(), h.team, initRequest(orderID, amount))
	require.NoError(t, err)
	return payment
}

func (h *harness) confirmed(t *testing.T, orderID string, amount int64) *model.Payment {
	t.Helper()
	payment := h.initialized(t, orderID, amount)
	_, _, err := h.svc.Authorize(context.Background(), payment.PaymentID, "merchant")
	require.NoError(t, err)
	_, err = h.svc.Confirm(context.Background(), payment.PaymentID, "merchant")
	require.NoError(t, err)
	return payment
}

// =====================================================
// INITIALIZATION
// =====================================================

func TestInitialize_CreatesPaymentInNew(t *testing.T) {
	h := newHarness(t)

	payment := h.initialized(t, "order-1", 150000)

	assert.Equal(t, model.StatusNew, payment.Status)
	assert.NotEmpty(t, payment.PaymentID)
	require.NotNil(t, payment.PaymentURL)
	assert.True(t, strings.HasPrefix(*payment.PaymentURL, "https://gw.example.com/pay/"))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), payment.ExpiresAt, time.Minute)

	// INIT -> NEW is recorded.
	require.Len(t, h.repo.transitions, 1)
	assert.Equal(t, model.StatusInit, h.repo.transitions[0].FromStatus)
	assert.Equal(t, model.StatusNew, h.repo.transitions[0].ToStatus)
	assert.Len(t, h.publisher.events, 1)
}

func TestInitialize_DuplicateOrder(t *testing.T) {
	h := newHarness(t)

	h.initialized(t, "order-1", 150000)

	_, err := h.svc.Initialize(context.Background(), h.team, initRequest("order-1", 150000))
	require.Error(t, err)

	var pErr *model.PaymentError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, errcodes.DuplicateOrder, pErr.Code)
	assert.Equal(t, 1, h.repo.count())
}

func TestInitialize_RuleDenialLeavesNoRow(t *testing.T) {
	h := newHarness(t, &rulesmodel.Rule{
		ID:       uuid.New(),
		Name:     "hard cap",
		Type:     rulesmodel.TypePaymentLimit,
		Action:   rulesmodel.ActionDeny,
		Priority: 1,
		IsActive: true,
		Parameters: map[string]interface{}{
			"transaction_limit": float64(100000),
		},
	})

	_, err := h.svc.Initialize(context.Background(), h.team, initRequest("order-1", 500000))
	require.Error(t, err)

	var pErr *model.PaymentError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, errcodes.RuleViolation, pErr.Code)
	assert.Zero(t, h.repo.count())
	assert.Empty(t, h.repo.transitions)
}

func TestInitialize_UnsupportedTeamCurrency(t *testing.T) {
	h := newHarness(t)
	h.team.SupportedCurrencies = []string{"USD"}

	_, err := h.svc.Initialize(context.Background(), h.team, initRequest("order-1", 100))
	require.Error(t, err)
	assert.Zero(t, h.repo.count())
}

func TestInitialize_CustomExpiry(t *testing.T) {
	h := newHarness(t)

	req := initRequest("order-1", 100)
	req.PaymentExpiry = 60

	payment, err := h.svc.Initialize(context.Background(), h.team, req)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), payment.ExpiresAt, time.Minute)
}

// =====================================================
// AUTHORIZE AND CONFIRM
// =====================================================

func TestAuthorize_HappyPath(t *testing.T) {
	h := newHarness(t)
	payment := h.initialized(t, "order-1", 150000)

	got, result, err := h.svc.Authorize(context.Background(), payment.PaymentID, "merchant")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAuthorized, got.Status)
	assert.Equal(t, model.StatusAuthorizing, result.FromStatus)
	assert.NotNil(t, got.AuthorizedAt)
	assert.Equal(t, 1, got.AuthorizationAttempts)
	assert.Equal(t, 1, h.repo.increments)
}

func TestAuthorize_DeclineMovesToAuthFail(t *testing.T) {
	h := newHarness(t)
	h.auth.err = model.NewPaymentError(errcodes.BankDeclined, "issuer declined", nil)
	payment := h.initialized(t, "order-1", 150000)

	got, _, err := h.svc.Authorize(context.Background(), payment.PaymentID, "merchant")
	require.Error(t, err)

	assert.Equal(t, model.StatusAuthFail, got.Status)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, errcodes.BankDeclined, *got.ErrorCode)
}

func TestAuthorize_OpaqueErrorMapsToBankDeclined(t *testing.T) {
	h := newHarness(t)
	h.auth.err = errors.New("issuer timeout")
	payment := h.initialized(t, "order-1", 150000)

	got, _, err := h.svc.Authorize(context.Background(), payment.PaymentID, "merchant")
	require.Error(t, err)

	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, errcodes.BankDeclined, *got.ErrorCode)
}

func TestConfirm_FullChain(t *testing.T) {
	h := newHarness(t)
	payment := h.confirmed(t, "order-1", 150000)

	stored, err := h.repo.GetByPaymentID(context.Background(), payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.NotNil(t, stored.ConfirmedAt)

	// INIT->NEW, NEW->AUTHORIZING, AUTHORIZING->AUTHORIZED,
	// AUTHORIZED->CONFIRMING, CONFIRMING->CONFIRMED.
	assert.Len(t, h.repo.transitions, 5)
}

func TestConfirm_WithoutAuthorizationRejected(t *testing.T) {
	h := newHarness(t)
	payment := h.initialized(t, "order-1", 150000)

	_, err := h.svc.Confirm(context.Background(), payment.PaymentID, "merchant")
	require.Error(t, err)

	var pErr *model.PaymentError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, errcodes.InvalidTransition, pErr.Code)
}

// =====================================================
// REFUNDS
// =====================================================

func TestRefund_PartialThenFull(t *testing.T) {
	h := newHarness(t)
	payment := h.confirmed(t, "order-1", 10000)

	got, err := h.svc.Refund(context.Background(), payment.PaymentID, "merchant", 3000, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartialRefunded, got.Status)
	assert.Equal(t, int64(3000), got.RefundedAmount)
	assert.Equal(t, int64(7000), got.RefundableAmount())

	// Over the remainder is rejected without touching state.
	_, err = h.svc.Refund(context.Background(), payment.PaymentID, "merchant", 8000, nil)
	var pErr *model.PaymentError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, errcodes.RefundExceedsTotal, pErr.Code)
	assert.Equal(t, model.StatusPartialRefunded, got.Status)

	got, err = h.svc.Refund(context.Background(), payment.PaymentID, "merchant", 7000, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, got.Status)
	assert.Zero(t, got.RefundableAmount())
	assert.Equal(t, 2, got.RefundCount)
}

func TestRefund_RequiresPositiveAmount(t *testing.T) {
	h := newHarness(t)
	payment := h.confirmed(t, "order-1", 10000)

	_, err := h.svc.Refund(context.Background(), payment.PaymentID, "merchant", 0, nil)
	require.Error(t, err)
}

// =====================================================
// CANCEL, EXPIRE, ROLLBACK
// =====================================================

func TestCancel_VoidsPayment(t *testing.T) {
	h := newHarness(t)
	payment := h.initialized(t, "order-1", 150000)

	reason := "customer abandoned checkout"
	got, err := h.svc.Cancel(context.Background(), payment.PaymentID, "merchant", &reason)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
}

func TestExpire_Idempotent(t *testing.T) {
	h := newHarness(t)
	payment := h.initialized(t, "order-1", 150000)
	payment.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, h.repo.Update(context.Background(), payment))

	got, err := h.svc.Expire(context.Background(), payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	before := len(h.repo.transitions)

	// Second sweep pass is a no-op.
	got, err = h.svc.Expire(context.Background(), payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Len(t, h.repo.transitions, before)
}

func TestExpire_FutureDeadlineRejected(t *testing.T) {
	h := newHarness(t)
	payment := h.initialized(t, "order-1", 150000)

	_, err := h.svc.Expire(context.Background(), payment.PaymentID)
	require.Error(t, err)
}

func TestRollback_ReversesDecline(t *testing.T) {
	h := newHarness(t)
	h.auth.err = errors.New("issuer timeout")
	payment := h.initialized(t, "order-1", 150000)

	_, result, err := h.svc.Authorize(context.Background(), payment.PaymentID, "merchant")
	require.Error(t, err)
	require.Equal(t, model.StatusAuthFail, result.ToStatus)

	got, err := h.svc.Rollback(context.Background(), payment.PaymentID, result.TransitionID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuthorizing, got.Status)

	last := h.repo.transitions[len(h.repo.transitions)-1]
	assert.True(t, last.IsRollback)
	require.NotNil(t, last.RollbackOf)
	assert.Equal(t, result.TransitionID, *last.RollbackOf)
}

func TestRollback_RejectedAfterFurtherProgress(t *testing.T) {
	h := newHarness(t)
	payment := h.initialized(t, "order-1", 150000)
	first := h.repo.transitions[0]

	_, _, err := h.svc.Authorize(context.Background(), payment.PaymentID, "merchant")
	require.NoError(t, err)

	_, err = h.svc.Rollback(context.Background(), payment.PaymentID, first.TransitionID, "admin")
	assert.ErrorIs(t, err, model.ErrRollbackNotAllowed)
}

// =====================================================
// QUERIES
// =====================================================

func TestGetStatusAndHistory(t *testing.T) {
	h := newHarness(t)
	payment := h.confirmed(t, "order-1", 10000)

	state, err := h.svc.GetStatus(context.Background(), payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, state.Status)
	assert.Equal(t, int64(10000), state.Amount)

	history, err := h.svc.GetHistory(context.Background(), payment.PaymentID)
	require.NoError(t, err)
	assert.Len(t, history, 5)

	// CONFIRMED may still enter the refund path, so it counts as active.
	active, err := h.svc.GetActivePayments(context.Background(), h.team.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestGetStatus_UnknownPayment(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrPaymentNotFound)
}
