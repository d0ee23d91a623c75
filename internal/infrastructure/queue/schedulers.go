package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"paygate-backend/internal/shared"
	"paygate-backend/pkg/logger"
)

// =====================================================
// PERIODIC TASK SCHEDULER
// =====================================================
// One scheduler owns every timer. Each registration fires a scoped
// task; asynq's unique option keeps a slow run from overlapping the
// next tick of the same task.

type Scheduler struct {
	scheduler *asynq.Scheduler
}

func NewScheduler(redisAddr string) *Scheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddr},
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{scheduler: scheduler}
}

// RegisterPeriodicTasks wires every background timer.
func (s *Scheduler) RegisterPeriodicTasks() error {
	if err := s.registerExpirySweep(); err != nil {
		return err
	}
	if err := s.registerReconciliation(); err != nil {
		return err
	}
	if err := s.registerAuditCleanup(); err != nil {
		return err
	}
	if err := s.registerMetricsRollup(); err != nil {
		return err
	}
	if err := s.registerMaintenance(); err != nil {
		return err
	}
	if err := s.registerLockSweep(); err != nil {
		return err
	}
	return nil
}

// ================================================
// JOB 1: Expiry Sweep (every minute)
// ================================================
// The sweep is authoritative for EXPIRED: a payment whose deadline has
// passed is moved regardless of what the merchant does next.
func (s *Scheduler) registerExpirySweep() error {
	task := asynq.NewTask(shared.TypePaymentExpirySweep, nil)

	_, err := s.scheduler.Register(
		"@every 1m",
		task,
		asynq.Queue(shared.QueueCritical),
		asynq.MaxRetry(0),
		asynq.Timeout(50*time.Second),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register ExpirySweep job", err)
		return err
	}

	logger.Info("✓ Registered ExpirySweep: every minute", map[string]interface{}{})
	return nil
}

// ================================================
// JOB 2: Reconciliation (every 5 minutes)
// ================================================
// Payments sitting in NEW/AUTHORIZED are compared against the external
// processor; a divergent state is applied through the state machine.
func (s *Scheduler) registerReconciliation() error {
	task := asynq.NewTask(shared.TypePaymentReconcile, nil)

	_, err := s.scheduler.Register(
		"@every 5m",
		task,
		asynq.Queue(shared.QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(4*time.Minute),
		asynq.Unique(5*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register Reconciliation job", err)
		return err
	}

	logger.Info("✓ Registered Reconciliation: every 5 minutes", map[string]interface{}{})
	return nil
}

// ================================================
// JOB 3: Audit Cleanup (hourly)
// ================================================
func (s *Scheduler) registerAuditCleanup() error {
	payload, err := json.Marshal(shared.AuditCleanupPayload{
		RetentionDays: shared.DefaultAuditRetentionDays,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeAuditCleanup, payload)

	_, err = s.scheduler.Register(
		"0 * * * *", // hourly at minute 0
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register AuditCleanup job", err)
		return err
	}

	logger.Info("✓ Registered AuditCleanup: hourly", map[string]interface{}{})
	return nil
}

// ================================================
// JOB 4: Metrics Rollup (every 15 minutes)
// ================================================
func (s *Scheduler) registerMetricsRollup() error {
	task := asynq.NewTask(shared.TypeMetricsRollup, nil)

	_, err := s.scheduler.Register(
		"*/15 * * * *",
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register MetricsRollup job", err)
		return err
	}

	logger.Info("✓ Registered MetricsRollup: every 15 minutes", map[string]interface{}{})
	return nil
}

// ================================================
// JOB 5: Maintenance (every 6 hours)
// ================================================
// Store-level housekeeping plus in-process cache hygiene (stale
// correlation contexts).
func (s *Scheduler) registerMaintenance() error {
	task := asynq.NewTask(shared.TypeMaintenance, nil)

	_, err := s.scheduler.Register(
		"0 */6 * * *",
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(15*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register Maintenance job", err)
		return err
	}

	logger.Info("✓ Registered Maintenance: every 6 hours", map[string]interface{}{})
	return nil
}

// ================================================
// JOB 6: Lock Sweep (every minute)
// ================================================
func (s *Scheduler) registerLockSweep() error {
	task := asynq.NewTask(shared.TypeLockSweep, nil)

	_, err := s.scheduler.Register(
		"@every 1m",
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Second),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register LockSweep job", err)
		return err
	}

	logger.Info("✓ Registered LockSweep: every minute", map[string]interface{}{})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
