package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/domains/payment/repository"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/pkg/logger"
)

// =====================================================
// RETRY SERVICE
// =====================================================
// Re-drives failed payments through a processing collaborator under a
// named backoff policy. Attempt counting is cumulative across
// invocations, so a rescheduled payment never exceeds its budget.

// Processor is the collaborator that performs one processing attempt.
// The lifecycle service's authorization path implements it.
type Processor interface {
	ProcessPayment(ctx context.Context, payment *model.Payment) error
}

// successStatuses are the settled states a retry must never disturb.
var successStatuses = map[model.Status]bool{
	model.StatusAuthorized:      true,
	model.StatusConfirmed:       true,
	model.StatusRefunded:        true,
	model.StatusPartialRefunded: true,
}

type scheduledRetry struct {
	paymentID string
	policy    string
	dueAt     time.Time
}

type RetryService struct {
	repo      repository.PaymentRepository
	attempts  repository.RetryRepository
	locks     lock.Manager
	processor Processor

	lockExpiry         time.Duration
	highValueThreshold int64

	mu        sync.Mutex
	scheduled map[string]scheduledRetry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryService(
	repo repository.PaymentRepository,
	attempts repository.RetryRepository,
	locks lock.Manager,
	processor Processor,
	lockExpiry time.Duration,
	highValueThreshold int64,
) *RetryService {
	return &RetryService{
		repo:               repo,
		attempts:           attempts,
		locks:              locks,
		processor:          processor,
		lockExpiry:         lockExpiry,
		highValueThreshold: highValueThreshold,
		scheduled:          make(map[string]scheduledRetry),
		now:                time.Now,
		sleep:              sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs the remaining attempt budget for a payment.
//
// Business Logic Flow:
// 1. Acquire the per-payment retry lease.
// 2. Verify the payment is not settled, not older than the retry age
//    window, still has budget, and its error code is retryable.
// 3. Attempt in a loop: sleep the policy backoff (except before the
//    first attempt of this call), delegate to the processor, record the
//    attempt row. Stop early on success or a non-retryable failure.
// 4. Return the aggregate result.
func (s *RetryService) Retry(ctx context.Context, paymentID string, policy Policy) (*model.RetryResult, error) {
	resource := fmt.Sprintf("payment:retry:%s", paymentID)
	lease, err := s.locks.Acquire(ctx, resource, s.lockExpiry)
	if err != nil {
		if errors.Is(err, lock.ErrLockUnavailable) {
			return nil, model.NewLockConflictError(resource)
		}
		return nil, fmt.Errorf("failed to acquire retry lock: %w", err)
	}
	defer s.locks.Release(ctx, lease)

	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if successStatuses[payment.Status] {
		return nil, fmt.Errorf("%w: payment %s already settled in %s",
			model.ErrRetryExhausted, paymentID, payment.Status)
	}
	if now.Sub(payment.CreatedAt) > model.MaxRetryablePaymentAgeHours*time.Hour {
		return nil, fmt.Errorf("%w: payment %s is older than the retry window",
			model.ErrRetryExhausted, paymentID)
	}

	prior, err := s.attempts.CountByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if prior >= policy.MaxAttempts {
		return nil, fmt.Errorf("%w: %d of %d attempts used",
			model.ErrRetryExhausted, prior, policy.MaxAttempts)
	}
	if payment.ErrorCode != nil && !policy.IsRetryable(*payment.ErrorCode) {
		return nil, fmt.Errorf("%w: code %s is not retryable",
			model.ErrRetryExhausted, *payment.ErrorCode)
	}

	result := &model.RetryResult{}
	started := s.now()

	for attempt := prior + 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > prior+1 {
			if err := s.sleep(ctx, policy.Delay(attempt-1)); err != nil {
				result.TotalDuration = s.now().Sub(started)
				return result, err
			}
		}

		row, attemptErr := s.runAttempt(ctx, payment, attempt, policy)
		result.Attempts = append(result.Attempts, *row)
		result.AttemptsUsed++

		if attemptErr == nil {
			result.Success = true
			break
		}
		if code, _ := errorCodeOf(attemptErr); !policy.IsRetryable(code) {
			break
		}
	}

	result.TotalDuration = s.now().Sub(started)
	logger.Info("retry finished", map[string]interface{}{
		"payment_id": paymentID,
		"policy":     policy.Name,
		"success":    result.Success,
		"attempts":   result.AttemptsUsed,
	})
	return result, nil
}

// runAttempt executes one processor call and persists its row.
func (s *RetryService) runAttempt(ctx context.Context, payment *model.Payment, attempt int, policy Policy) (*model.RetryAttempt, error) {
	attemptStart := s.now()
	statusBefore := payment.Status

	attemptErr := s.processor.ProcessPayment(ctx, payment)

	row := &model.RetryAttempt{
		ID:            uuid.New(),
		PaymentID:     payment.ID,
		AttemptNumber: attempt,
		AttemptedAt:   attemptStart,
		IsSuccess:     attemptErr == nil,
		Duration:      s.now().Sub(attemptStart),
		StatusBefore:  statusBefore,
		StatusAfter:   payment.Status,
		PolicyName:    policy.Name,
	}
	if attemptErr != nil {
		code, message := errorCodeOf(attemptErr)
		row.ErrorCode = &code
		row.ErrorMessage = &message
	}

	if err := s.attempts.CreateAttempt(ctx, row); err != nil {
		logger.Error("failed to persist retry attempt", err)
	}
	return row, attemptErr
}

// PolicyFor selects the policy for a payment by amount band.
func (s *RetryService) PolicyFor(payment *model.Payment) Policy {
	return SelectPolicy(payment.Amount, s.highValueThreshold)
}

// History returns the recorded attempts of a payment.
func (s *RetryService) History(ctx context.Context, paymentID string) ([]*model.RetryAttempt, error) {
	payment, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.attempts.ListByPayment(ctx, payment.ID)
}

// =====================================================
// SCHEDULED RETRIES
// =====================================================

// Schedule queues a retry to fire at the given time. Re-scheduling a
// payment replaces its pending entry.
func (s *RetryService) Schedule(paymentID string, at time.Time, policyName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[paymentID] = scheduledRetry{
		paymentID: paymentID,
		policy:    policyName,
		dueAt:     at,
	}
}

// ScheduledCount reports the pending queue depth.
func (s *RetryService) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

// FireDue runs every due scheduled retry, oldest first, and returns how
// many fired. A failing retry is logged and never blocks the others.
func (s *RetryService) FireDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []scheduledRetry
	for id, entry := range s.scheduled {
		if !entry.dueAt.After(now) {
			due = append(due, entry)
			delete(s.scheduled, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].dueAt.Before(due[j].dueAt) })

	fired := 0
	for _, entry := range due {
		if _, err := s.Retry(ctx, entry.paymentID, PolicyByName(entry.policy)); err != nil {
			logger.Error("scheduled retry failed", err)
		}
		fired++
	}
	return fired
}
