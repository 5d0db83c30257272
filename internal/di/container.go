package di

import (
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/gateway"
	"github.com/mcofie/gatepass-settlement/internal/handler"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/internal/worker"
	"github.com/mcofie/gatepass-settlement/pkg/database"
	"github.com/mcofie/gatepass-settlement/pkg/kafka"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/redis"
)

// Container holds all dependencies for the settlement service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	// Gateways
	Verifier gateway.Verifier

	// Repositories
	CatalogRepo     repository.CatalogRepository
	SettlementRepo  repository.SettlementRepository
	LedgerRepo      repository.LedgerRepository
	AttemptRepo     repository.AttemptRepository
	OutboxRepo      repository.OutboxRepository
	PayoutRepo      repository.PayoutRepository
	FeeSettingsRepo repository.FeeSettingsRepository
	RoleRepo        repository.RoleRepository

	// Services
	AuthzService        service.AuthorizationService
	SettlementService   service.SettlementService
	FeeService          service.FeeService
	RevenueService      service.RevenueService
	PayoutService       service.PayoutService
	NotificationService service.NotificationService

	// Workers
	OutboxWorker *worker.OutboxWorker

	// Handlers
	HealthHandler  *handler.HealthHandler
	PaymentHandler *handler.PaymentHandler
	WebhookHandler *handler.WebhookHandler
	FeeHandler     *handler.FeeHandler
	PayoutHandler  *handler.PayoutHandler
	AdminHandler   *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	// DB nil selects the in-memory repositories
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	Verifier gateway.Verifier

	SettlementConfig    *service.SettlementServiceConfig
	DefaultFees         domain.FeeSettings
	FeeSettingsCacheTTL time.Duration
	Webhook             *handler.WebhookConfig
	OutboxConfig        *worker.OutboxWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Verifier: cfg.Verifier,
	}

	c.initRepositories(cfg)

	reporter := service.NewErrorReporter(logger.Get())
	topic := ""
	if cfg.SettlementConfig != nil {
		topic = cfg.SettlementConfig.TicketsIssuedTopic
	}

	c.AuthzService = service.NewAuthorizationService(c.RoleRepo)
	c.SettlementService = service.NewSettlementService(
		c.CatalogRepo, c.SettlementRepo, c.AttemptRepo, c.FeeSettingsRepo, c.Verifier, reporter, cfg.SettlementConfig,
	)
	c.FeeService = service.NewFeeService(c.CatalogRepo, c.FeeSettingsRepo, c.AuthzService)
	c.RevenueService = service.NewRevenueService(c.CatalogRepo, c.LedgerRepo, c.PayoutRepo, c.AuthzService)
	c.PayoutService = service.NewPayoutService(c.CatalogRepo, c.LedgerRepo, c.PayoutRepo, c.AuthzService)
	c.NotificationService = service.NewNotificationService(c.CatalogRepo, c.SettlementRepo, c.OutboxRepo, reporter, topic)

	// Without a producer the outbox accumulates until a worker with Kafka runs
	if c.Producer != nil {
		c.OutboxWorker = worker.NewOutboxWorker(c.OutboxRepo, c.Producer, cfg.OutboxConfig)
	}

	c.HealthHandler = handler.NewHealthHandler(c.healthComponents())
	c.PaymentHandler = handler.NewPaymentHandler(c.SettlementService)
	c.WebhookHandler = handler.NewWebhookHandler(c.SettlementService, cfg.Webhook)
	c.FeeHandler = handler.NewFeeHandler(c.FeeService)
	c.PayoutHandler = handler.NewPayoutHandler(c.PayoutService, c.RevenueService)
	c.AdminHandler = handler.NewAdminHandler(c.NotificationService)

	return c
}

func (c *Container) initRepositories(cfg *ContainerConfig) {
	var feeSettings repository.FeeSettingsRepository

	if c.DB != nil {
		catalog := repository.NewPostgresCatalogRepository(c.DB)
		c.CatalogRepo = catalog
		c.LedgerRepo = catalog
		c.SettlementRepo = repository.NewPostgresSettlementRepository(c.DB)
		c.AttemptRepo = repository.NewPostgresAttemptRepository(c.DB)
		c.OutboxRepo = repository.NewPostgresOutboxRepository(c.DB)
		c.PayoutRepo = repository.NewPostgresPayoutRepository(c.DB)
		c.RoleRepo = repository.NewPostgresRoleRepository(c.DB)
		feeSettings = repository.NewPostgresFeeSettingsRepository(c.DB, cfg.DefaultFees)
	} else {
		logger.Get().Warn("no database configured, using in-memory repositories")
		store := repository.NewMemoryStore()
		c.CatalogRepo = store
		c.LedgerRepo = store
		c.SettlementRepo = store
		c.AttemptRepo = store
		c.OutboxRepo = store
		c.PayoutRepo = repository.NewMemoryPayoutRepository()
		c.RoleRepo = repository.NewMemoryRoleRepository()
		feeSettings = repository.NewMemoryFeeSettingsRepository(cfg.DefaultFees)
	}

	if c.Redis != nil {
		feeSettings = repository.NewCachedFeeSettingsRepository(feeSettings, c.Redis.Client(), cfg.FeeSettingsCacheTTL)
	}
	c.FeeSettingsRepo = feeSettings
}

func (c *Container) healthComponents() map[string]handler.HealthChecker {
	components := map[string]handler.HealthChecker{
		"database": nil,
		"redis":    nil,
		"kafka":    nil,
	}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	if c.Producer != nil {
		components["kafka"] = handler.HealthCheckFunc(c.Producer.Ping)
	}
	return components
}
