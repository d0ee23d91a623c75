package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"paygate-backend/internal/config"
	"paygate-backend/internal/infrastructure/acquirer"
	infraCache "paygate-backend/internal/infrastructure/cache"
	"paygate-backend/internal/infrastructure/database"
	"paygate-backend/internal/infrastructure/lock"
	"paygate-backend/internal/infrastructure/queue"
	"paygate-backend/internal/infrastructure/webhook"
	"paygate-backend/pkg/cache"
	"paygate-backend/pkg/jwt"

	auditHandler "paygate-backend/internal/domains/audit/handler"
	auditModel "paygate-backend/internal/domains/audit/model"
	auditRepo "paygate-backend/internal/domains/audit/repository"
	auditService "paygate-backend/internal/domains/audit/service"
	paymentHandler "paygate-backend/internal/domains/payment/handler"
	paymentModel "paygate-backend/internal/domains/payment/model"
	paymentRepo "paygate-backend/internal/domains/payment/repository"
	paymentService "paygate-backend/internal/domains/payment/service"
	"paygate-backend/internal/domains/payment/statemachine"
	rulesHandler "paygate-backend/internal/domains/rules/handler"
	rulesRepo "paygate-backend/internal/domains/rules/repository"
	rulesService "paygate-backend/internal/domains/rules/service"
	teamHandler "paygate-backend/internal/domains/team/handler"
	teamRepo "paygate-backend/internal/domains/team/repository"
	teamService "paygate-backend/internal/domains/team/service"

	"paygate-backend/internal/shared/middleware"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container holds the full dependency graph of the API binary.
// Initialization order matters: config, infrastructure, repositories,
// services, handlers.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================

	Config     *config.Config
	DB         *database.PostgresDB
	Cache      cache.Cache
	JWTManager *jwt.Manager
	Locks      lock.Manager
	Queue      *queue.Client

	// ========================================
	// REPOSITORY LAYER
	// ========================================

	TeamRepo       teamRepo.TeamRepository
	PaymentRepo    paymentRepo.PaymentRepository
	TransitionRepo paymentRepo.TransitionRepository
	RetryRepo      paymentRepo.RetryRepository
	MetricsRepo    paymentRepo.MetricsRepository
	RuleRepo       rulesRepo.RuleRepository
	AuditRepo      auditRepo.AuditRepository

	// ========================================
	// SERVICE LAYER
	// ========================================

	AuditService *auditService.AuditService
	RuleEngine   *rulesService.Engine
	TeamService  *teamService.TeamService
	Machine      *statemachine.Machine
	Acquirer     paymentService.Authorizer
	Reconciler   paymentService.Reconciler
	Dispatcher   *webhook.Dispatcher
	Lifecycle    *paymentService.LifecycleService
	Retry        *paymentService.RetryService

	// ========================================
	// HANDLER LAYER
	// ========================================

	MerchantHandler *paymentHandler.MerchantHandler
	AdminHandler    *paymentHandler.AdminHandler
	AuditHandler    *auditHandler.AuditHandler
	RuleHandler     *rulesHandler.RuleHandler
	TeamHandler     *teamHandler.TeamHandler
}

// ========================================
// CONSTRUCTOR
// ========================================

// NewContainer builds the dependency graph for the API binary.
func NewContainer() (*Container, error) {
	log.Println("initializing container...")

	c := &Container{}

	// ----------------------------------------
	// STEP 1: CONFIGURATION
	// ----------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Printf("config loaded (environment: %s)", cfg.App.Environment)

	// ----------------------------------------
	// STEP 2: DATABASE
	// ----------------------------------------
	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	c.DB = db
	log.Println("database connected")

	// ----------------------------------------
	// STEP 3: REDIS CACHE
	// ----------------------------------------
	redisCache := infraCache.NewRedisCache(
		cfg.Redis.Host,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if rc, ok := redisCache.(*infraCache.RedisCache); ok {
		if err := rc.Connect(context.Background()); err != nil {
			// Cache misses degrade performance, not correctness.
			log.Printf("redis connection failed (non-critical): %v", err)
		}
	}
	c.Cache = redisCache

	// ----------------------------------------
	// STEP 4: LOCKS, QUEUE, JWT, ACQUIRER
	// ----------------------------------------
	lockOpts := lock.Options{
		MaxAttempts:  cfg.Locks.MaxAttempts,
		RetryBackoff: cfg.Locks.RetryBackoff,
	}
	if cfg.Locks.Backend == "redis" {
		rc, ok := redisCache.(*infraCache.RedisCache)
		if !ok {
			return nil, fmt.Errorf("redis lock backend requires the redis cache")
		}
		c.Locks = lock.NewRedisManager(rc.Client(), lockOpts)
	} else {
		c.Locks = lock.NewMemoryManager(lockOpts)
	}

	c.Queue = queue.NewClient(cfg.Redis.Host)
	c.JWTManager = jwt.NewManager(cfg.JWT.Secret)

	switch cfg.Acquirer.Backend {
	case "http":
		httpAcquirer := acquirer.NewHTTPAcquirer(cfg.Acquirer.BaseURL, cfg.Acquirer.APIKey, cfg.Acquirer.Timeout)
		c.Acquirer = httpAcquirer
		c.Reconciler = httpAcquirer
	default:
		simulator := acquirer.NewSimulator(cfg.Acquirer.SimulatorLatency)
		c.Acquirer = simulator
		c.Reconciler = simulator
	}

	// ----------------------------------------
	// STEP 5: REPOSITORIES
	// ----------------------------------------
	if err := c.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// ----------------------------------------
	// STEP 6: SERVICES
	// ----------------------------------------
	if err := c.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// ----------------------------------------
	// STEP 7: HANDLERS
	// ----------------------------------------
	c.initHandlers()

	log.Println("container initialized")
	return c, nil
}

// ========================================
// PRIVATE INITIALIZATION
// ========================================

func (c *Container) initRepositories() error {
	pool := c.DB.Pool

	c.TeamRepo = teamRepo.NewTeamRepository(pool)
	c.TransitionRepo = paymentRepo.NewTransitionRepository(pool)
	c.RetryRepo = paymentRepo.NewRetryRepository(pool)
	c.MetricsRepo = paymentRepo.NewMetricsRepository(pool)
	c.RuleRepo = rulesRepo.NewRuleRepository(pool)
	c.AuditRepo = auditRepo.NewAuditRepository(pool)

	// The audit service must exist before the payment repository so the
	// transition hook can write audit rows inside the same transaction.
	c.AuditService = auditService.NewAuditService(c.AuditRepo, c.Config.Audit.CorrelationTimeWindow)
	c.PaymentRepo = paymentRepo.NewPaymentRepository(pool, c.transitionAuditHook())

	return nil
}

func (c *Container) initServices() error {
	cfg := c.Config

	c.RuleEngine = rulesService.NewEngine(c.RuleRepo, c.Cache, c.AuditService)
	c.TeamService = teamService.NewTeamService(
		c.TeamRepo,
		c.Cache,
		c.JWTManager,
		cfg.Jobs.FailedAuthLockLimit,
		time.Duration(cfg.Jobs.FailedAuthLockMins)*time.Minute,
	)

	store, ok := c.PaymentRepo.(statemachine.Store)
	if !ok {
		return fmt.Errorf("payment repository does not implement the state machine store")
	}
	c.Machine = statemachine.NewMachine(c.Locks, store, cfg.Locks.DefaultExpiry)

	c.Dispatcher = webhook.NewDispatcher(c.TeamRepo, c.Queue)

	c.Lifecycle = paymentService.NewLifecycleService(
		c.PaymentRepo,
		c.TransitionRepo,
		c.Machine,
		c.Locks,
		c.RuleEngine,
		c.AuditService,
		c.Acquirer,
		c.Dispatcher,
		paymentService.Options{
			BaseURL:            cfg.App.BaseURL,
			LockExpiry:         cfg.Locks.DefaultExpiry,
			DefaultExpiry:      time.Duration(cfg.Payment.DefaultExpiryMinutes) * time.Minute,
			MaxAuthAttempts:    cfg.Payment.MaxAuthAttempts,
			HighValueThreshold: cfg.Payment.HighValueThreshold,
		},
	)
	c.Lifecycle.SetRetryScheduler(c.Queue)

	c.Retry = paymentService.NewRetryService(
		c.PaymentRepo,
		c.RetryRepo,
		c.Locks,
		&retryProcessor{lifecycle: c.Lifecycle},
		cfg.Locks.DefaultExpiry,
		cfg.Payment.HighValueThreshold,
	)

	return nil
}

func (c *Container) initHandlers() {
	c.MerchantHandler = paymentHandler.NewMerchantHandler(c.TeamService, c.Lifecycle)
	c.AdminHandler = paymentHandler.NewAdminHandler(c.Lifecycle, c.Retry, c.PaymentRepo, c.MetricsRepo, c.Locks)
	c.AuditHandler = auditHandler.NewAuditHandler(c.AuditService)
	c.RuleHandler = rulesHandler.NewRuleHandler(c.RuleEngine)
	c.TeamHandler = teamHandler.NewTeamHandler(c.TeamService)
}

// ========================================
// WIRING ADAPTERS
// ========================================

// transitionAuditHook writes the audit row for every state transition
// inside the transition's own transaction, so tampering with one cannot
// leave the other behind.
func (c *Container) transitionAuditHook() paymentRepo.TransitionHook {
	return func(ctx context.Context, tx pgx.Tx, payment *paymentModel.Payment, record *paymentModel.TransitionRecord) error {
		details := fmt.Sprintf("%s -> %s", record.FromStatus, record.ToStatus)
		if record.Reason != nil {
			details = fmt.Sprintf("%s (%s)", details, *record.Reason)
		}

		rec := auditService.Record{
			Entity:        payment,
			Action:        transitionAction(record),
			UserID:        record.UserID,
			TeamSlug:      payment.TeamSlug,
			Details:       details,
			SnapshotAfter: payment,
		}
		if ip := middleware.GetClientIPFromContext(ctx); ip != "" {
			rec.IPAddress = &ip
		}
		return c.AuditService.WriteWithTx(ctx, tx, rec)
	}
}

// transitionAction classifies a transition record for the audit trail.
func transitionAction(record *paymentModel.TransitionRecord) auditModel.Action {
	switch {
	case record.IsRollback:
		return auditModel.ActionPaymentRollback
	case record.ToStatus == paymentModel.StatusExpired,
		record.ToStatus == paymentModel.StatusDeadlineExpired:
		return auditModel.ActionPaymentExpired
	case record.ToStatus == paymentModel.StatusRefunded,
		record.ToStatus == paymentModel.StatusPartialRefunded:
		return auditModel.ActionPaymentRefunded
	default:
		return auditModel.ActionPaymentTransition
	}
}

// retryProcessor adapts the lifecycle's authorization path to the retry
// service's Processor interface.
type retryProcessor struct {
	lifecycle *paymentService.LifecycleService
}

func (p *retryProcessor) ProcessPayment(ctx context.Context, payment *paymentModel.Payment) error {
	updated, _, err := p.lifecycle.Authorize(ctx, payment.PaymentID, "retry-service")
	if updated != nil {
		*payment = *updated
	}
	return err
}

// ========================================
// CLEANUP
// ========================================

// Cleanup releases infrastructure resources during graceful shutdown.
func (c *Container) Cleanup() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			log.Printf("failed to close task queue client: %v", err)
		}
	}

	if c.DB != nil && c.DB.Pool != nil {
		c.DB.Pool.Close()
		log.Println("database connections closed")
	}

	if c.Cache != nil {
		if rc, ok := c.Cache.(*infraCache.RedisCache); ok {
			if err := rc.Close(); err != nil {
				log.Printf("failed to close redis: %v", err)
			}
		}
	}
}
