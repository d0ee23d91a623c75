package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	auditmodel "paygate-backend/internal/domains/audit/model"
	auditservice "paygate-backend/internal/domains/audit/service"
	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/repository"
	"paygate-backend/internal/domains/payment/statemachine"
	rulesmodel "paygate-backend/internal/domains/rules/model"
	rulesservice "paygate-backend/internal/domains/rules/service"
	teammodel "paygate-backend/internal/domains/team/model"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/internal/shared"
	"paygate-backend/internal/shared/errcodes"
	"paygate-backend/pkg/logger"
)

// =====================================================
// PAYMENT LIFECYCLE SERVICE
// =====================================================
// Operation orchestrator. Every public operation follows the same
// shape: lock, fetch, state machine, persist, audit, event.

// Options carry the tunables the container reads from config.
type Options struct {
	BaseURL            string
	LockExpiry         time.Duration
	DefaultExpiry      time.Duration
	MaxAuthAttempts    int
	HighValueThreshold int64
}

type LifecycleService struct {
	repo       repository.PaymentRepository
	transRepo  repository.TransitionRepository
	machine    *statemachine.Machine
	locks      lock.Manager
	rules      *rulesservice.Engine
	audit      *auditservice.AuditService
	authorizer Authorizer
	publisher  EventPublisher
	scheduler  RetryScheduler
	opts       Options
	now        func() time.Time
}

func NewLifecycleService(
	repo repository.PaymentRepository,
	transRepo repository.TransitionRepository,
	machine *statemachine.Machine,
	locks lock.Manager,
	rules *rulesservice.Engine,
	audit *auditservice.AuditService,
	authorizer Authorizer,
	publisher EventPublisher,
	opts Options,
) *LifecycleService {
	return &LifecycleService{
		repo:       repo,
		transRepo:  transRepo,
		machine:    machine,
		locks:      locks,
		rules:      rules,
		audit:      audit,
		authorizer: authorizer,
		publisher:  publisher,
		opts:       opts,
		now:        time.Now,
	}
}

// SetRetryScheduler enables delayed retry scheduling for declined
// authorizations. Without a scheduler declines stay in AUTH_FAIL until
// an operator or the merchant re-drives them.
func (s *LifecycleService) SetRetryScheduler(scheduler RetryScheduler) {
	s.scheduler = scheduler
}

// =====================================================
// INITIALIZATION
// =====================================================

// Initialize creates a payment for a merchant init call.
//
// Business Logic Flow:
// 1. Acquire the per-order init lease so concurrent duplicates
//    serialise.
// 2. Verify no payment exists for (team, orderId); duplicates are rejected.
// 3. Evaluate business rules BEFORE any persistence; a denial leaves
//    no payment row behind.
// 4. Construct the entity in INIT with PaymentId and PaymentURL,
//    persist it, then drive INIT -> NEW through the state machine.
// 5. Audit and publish the created payment.
func (s *LifecycleService) Initialize(ctx context.Context, team *teammodel.Team, req model.InitRequest) (*model.Payment, error) {
	correlationID := s.audit.BeginCorrelation("payment.init", req.OrderID, map[string]string{
		"team_slug": team.TeamSlug,
	})

	resource := fmt.Sprintf("payment:init:%s:%s", req.OrderID, team.ID)
	lease, err := s.locks.Acquire(ctx, resource, s.opts.LockExpiry)
	if err != nil {
		if errors.Is(err, lock.ErrLockUnavailable) {
			return nil, model.NewLockConflictError(resource)
		}
		return nil, fmt.Errorf("failed to acquire init lock: %w", err)
	}
	defer s.locks.Release(ctx, lease)

	existing, err := s.repo.GetByTeamOrder(ctx, team.ID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.audit.CompleteCorrelation(correlationID, false, "duplicate order")
		return nil, model.NewDuplicateOrderError(team.TeamSlug, req.OrderID)
	}

	if !team.SupportsCurrency(req.Currency) {
		return nil, model.NewRuleViolationError([]string{
			fmt.Sprintf("currency %s is not enabled for this team", req.Currency),
		})
	}

	if err := s.evaluateInitRules(ctx, team, req); err != nil {
		s.audit.CompleteCorrelation(correlationID, false, "rule violation")
		return nil, err
	}

	payment := s.buildPayment(team, req)

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, model.ErrDuplicateOrder) {
			return nil, model.NewDuplicateOrderError(team.TeamSlug, req.OrderID)
		}
		return nil, err
	}

	result, err := s.machine.Transition(ctx, payment, model.StatusNew, statemachine.SystemUser, nil, map[string]string{
		"correlation_id": correlationID,
	})
	if err != nil {
		return nil, err
	}

	s.writeAudit(ctx, payment, auditmodel.ActionPaymentCreated, correlationID,
		fmt.Sprintf("payment %s created for order %s", payment.PaymentID, payment.OrderID), payment)
	s.audit.CompleteCorrelation(correlationID, true, "payment created")
	s.publisher.PublishTransition(ctx, payment, result)

	return payment, nil
}

func (s *LifecycleService) evaluateInitRules(ctx context.Context, team *teammodel.Team, req model.InitRequest) error {
	dailyTotal, err := s.repo.GetDailyTotal(ctx, team.ID, s.now())
	if err != nil {
		return err
	}

	ectx := rulesmodel.EvaluationContext{
		ContextType: rulesmodel.ContextPaymentInit,
		TeamID:      team.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		DailyTotal:  dailyTotal,
	}
	if req.Email != nil {
		ectx.Email = *req.Email
	}
	if req.CustomerKey != nil {
		ectx.CustomerKey = *req.CustomerKey
	}

	result, err := s.rules.Evaluate(ctx, ectx)
	if err != nil {
		return err
	}
	if !result.IsAllowed {
		return model.NewRuleViolationError(result.ViolationMessages())
	}
	if result.IsWarning {
		logger.Warn("payment init passed with warnings", map[string]interface{}{
			"order_id": req.OrderID,
			"warnings": len(result.Warnings),
		})
	}
	return nil
}

func (s *LifecycleService) buildPayment(team *teammodel.Team, req model.InitRequest) *model.Payment {
	now := s.now()

	expiry := s.opts.DefaultExpiry
	if req.PaymentExpiry > 0 {
		expiry = time.Duration(req.PaymentExpiry) * time.Minute
	}

	paymentID := xid.New().String()
	paymentURL := fmt.Sprintf("%s/pay/%s", s.opts.BaseURL, paymentID)

	return &model.Payment{
		ID:                 uuid.New(),
		PaymentID:          paymentID,
		OrderID:            req.OrderID,
		TeamID:             team.ID,
		TeamSlug:           team.TeamSlug,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Status:             model.StatusInit,
		ExpiresAt:          now.Add(expiry),
		MaxAllowedAttempts: s.opts.MaxAuthAttempts,
		InitializedAt:      now,
		PaymentURL:         &paymentURL,
		Description:        req.Description,
		Email:              req.Email,
		CustomerKey:        req.CustomerKey,
		Metadata:           req.Data,
		Items:              req.Items,
		Receipt:            req.Receipt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// =====================================================
// LIFECYCLE OPERATIONS
// =====================================================

// Process moves a pre-authorization payment into AUTHORIZING.
func (s *LifecycleService) Process(ctx context.Context, paymentID, userID string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result, err := s.machine.Transition(ctx, payment, model.StatusAuthorizing, userID, nil, nil)
	if err != nil {
		return nil, err
	}
	payment.AuthorizationAttempts++
	if err := s.repo.IncrementAuthorizationAttempts(ctx, payment.ID); err != nil {
		logger.Error("failed to increment authorization attempts", err)
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// Authorize drives a payment through AUTHORIZING into AUTHORIZED or
// AUTH_FAIL, delegating the acquiring side-effect to the authorizer.
func (s *LifecycleService) Authorize(ctx context.Context, paymentID, userID string) (*model.Payment, *model.TransitionResult, error) {
	payment, err := s.Process(ctx, paymentID, userID)
	if err != nil {
		return nil, nil, err
	}

	if authErr := s.authorizer.Authorize(ctx, payment); authErr != nil {
		code, message := errorCodeOf(authErr)
		payment.ErrorCode = &code
		payment.ErrorMessage = &message

		reason := fmt.Sprintf("authorization declined: %s", code)
		result, err := s.machine.Transition(ctx, payment, model.StatusAuthFail, userID, &reason, nil)
		if err != nil {
			return nil, nil, err
		}
		s.afterTransition(ctx, payment, result)
		s.scheduleRetry(ctx, payment, code)
		return payment, result, authErr
	}

	result, err := s.machine.Transition(ctx, payment, model.StatusAuthorized, userID, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	s.afterTransition(ctx, payment, result)
	return payment, result, nil
}

// Confirm captures an authorized payment: AUTHORIZED -> CONFIRMING ->
// CONFIRMED. The intermediate stage exists so out-of-band acquirer
// callbacks can land before terminality.
func (s *LifecycleService) Confirm(ctx context.Context, paymentID, userID string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if _, err := s.machine.Transition(ctx, payment, model.StatusConfirming, userID, nil, nil); err != nil {
		return nil, err
	}

	result, err := s.machine.Transition(ctx, payment, model.StatusConfirmed, userID, nil, nil)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// Cancel voids a payment.
func (s *LifecycleService) Cancel(ctx context.Context, paymentID, userID string, reason *string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result, err := s.machine.Transition(ctx, payment, model.StatusCancelled, userID, reason, nil)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// Refund returns part or all of a confirmed payment.
//
// Business Logic Flow:
// 1. The requested amount must be positive and within the refundable
//    remainder.
// 2. CONFIRMED/PARTIAL_REFUNDED -> REFUNDING.
// 3. Apply the amount, then REFUNDING -> REFUNDED when nothing
//    remains, PARTIAL_REFUNDED otherwise.
func (s *LifecycleService) Refund(ctx context.Context, paymentID, userID string, amount int64, reason *string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	refundable := payment.RefundableAmount()
	if amount <= 0 || amount > refundable {
		return nil, model.NewInvalidAmountError(amount, refundable)
	}

	if _, err := s.machine.Transition(ctx, payment, model.StatusRefunding, userID, reason, nil); err != nil {
		return nil, err
	}

	payment.RefundedAmount += amount
	payment.RefundCount++

	target := model.StatusPartialRefunded
	if payment.RefundableAmount() == 0 {
		target = model.StatusRefunded
	}

	refundCtx := map[string]string{"refund_amount": fmt.Sprintf("%d", amount)}
	result, err := s.machine.Transition(ctx, payment, target, userID, reason, refundCtx)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// Expire is the idempotent deadline enforcement used by the sweeper.
// Terminal payments are a no-op.
func (s *LifecycleService) Expire(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status.IsTerminal() {
		return payment, nil
	}

	result, err := s.machine.Transition(ctx, payment, model.StatusExpired, statemachine.SystemUser, nil, nil)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// Fail records an error and voids the payment.
func (s *LifecycleService) Fail(ctx context.Context, paymentID, errorCode, errorMessage string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	payment.ErrorCode = &errorCode
	payment.ErrorMessage = &errorMessage

	reason := fmt.Sprintf("failed with code %s", errorCode)
	result, err := s.machine.Transition(ctx, payment, model.StatusCancelled, statemachine.SystemUser, &reason, nil)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// Rollback reverses a recorded transition through the state machine.
func (s *LifecycleService) Rollback(ctx context.Context, paymentID, transitionID, userID string) (*model.Payment, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result, err := s.machine.Rollback(ctx, payment, transitionID, userID)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, payment, result)
	return payment, nil
}

// =====================================================
// QUERIES
// =====================================================

// GetStatus answers getState/check.
func (s *LifecycleService) GetStatus(ctx context.Context, paymentID string) (*model.StateResponse, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	return &model.StateResponse{
		PaymentID:      payment.PaymentID,
		OrderID:        payment.OrderID,
		Status:         payment.Status,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		RefundedAmount: payment.RefundedAmount,
		RefundCount:    payment.RefundCount,
		ExpiresAt:      payment.ExpiresAt,
		ConfirmedAt:    payment.ConfirmedAt,
		ErrorCode:      payment.ErrorCode,
		ErrorMessage:   payment.ErrorMessage,
	}, nil
}

// GetActivePayments lists a team's non-terminal payments.
func (s *LifecycleService) GetActivePayments(ctx context.Context, teamID uuid.UUID) ([]*model.Payment, error) {
	return s.repo.ListActive(ctx, teamID)
}

// GetHistory returns the ordered transition records of a payment.
func (s *LifecycleService) GetHistory(ctx context.Context, paymentID string) ([]*model.TransitionRecord, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.transRepo.ListByPayment(ctx, payment.ID)
}

// IsExpired reports whether a payment's deadline has passed.
func (s *LifecycleService) IsExpired(ctx context.Context, paymentID string) (bool, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return false, err
	}
	return payment.IsExpired(s.now()), nil
}

// =====================================================
// HELPERS
// =====================================================

// afterTransition publishes a completed transition. The audit row for
// the transition itself is written by the repository hook inside the
// transition transaction; only the webhook fan-out happens here.
func (s *LifecycleService) afterTransition(ctx context.Context, payment *model.Payment, result *model.TransitionResult) {
	s.publisher.PublishTransition(ctx, payment, result)
}

// scheduleRetry enqueues a delayed retry for a retryable decline. The
// retry service re-checks the budget when the task fires, so this only
// filters the obviously hopeless cases.
func (s *LifecycleService) scheduleRetry(ctx context.Context, payment *model.Payment, code string) {
	if s.scheduler == nil {
		return
	}

	policy := SelectPolicy(payment.Amount, s.opts.HighValueThreshold)
	if !policy.IsRetryable(code) {
		return
	}
	if payment.AuthorizationAttempts >= policy.MaxAttempts {
		return
	}

	delay := policy.Delay(payment.AuthorizationAttempts)
	err := s.scheduler.EnqueueRetry(ctx, shared.PaymentRetryPayload{
		PaymentID:   payment.PaymentID,
		AttemptNo:   payment.AuthorizationAttempts,
		Policy:      policy.Name,
		ErrorCode:   code,
		ScheduledAt: s.now().Add(delay),
	}, delay)
	if err != nil {
		logger.Error("failed to schedule retry for payment "+payment.PaymentID, err)
	}
}

func (s *LifecycleService) writeAudit(ctx context.Context, payment *model.Payment, action auditmodel.Action, correlationID, details string, snapshot interface{}) {
	err := s.audit.Write(ctx, auditservice.Record{
		Entity:        payment,
		Action:        action,
		TeamSlug:      payment.TeamSlug,
		Details:       details,
		CorrelationID: correlationID,
		SnapshotAfter: snapshot,
	})
	if err != nil {
		logger.Error("failed to write payment audit", err)
	}
}

// errorCodeOf extracts the gateway code from an authorizer error.
func errorCodeOf(err error) (string, string) {
	var pErr *model.PaymentError
	if errors.As(err, &pErr) {
		return pErr.Code, pErr.Message
	}
	return errcodes.BankDeclined, err.Error()
}
