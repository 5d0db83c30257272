package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/di"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/gateway"
	"github.com/mcofie/gatepass-settlement/internal/handler"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/internal/worker"
	"github.com/mcofie/gatepass-settlement/pkg/config"
	"github.com/mcofie/gatepass-settlement/pkg/database"
	"github.com/mcofie/gatepass-settlement/pkg/kafka"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/middleware"
	pkgredis "github.com/mcofie/gatepass-settlement/pkg/redis"
	"github.com/mcofie/gatepass-settlement/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "settlement-service"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting settlement service", zap.String("version", cfg.App.Version))

	ctx := context.Background()

	// Telemetry
	otelCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, otelCfg); err != nil {
		appLog.Warn("telemetry disabled", zap.Error(err))
	}
	if err := telemetry.InitMetrics(ctx, otelCfg); err != nil {
		appLog.Warn("metric exporter disabled", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("settlement metrics disabled", zap.Error(err))
	}

	// Database
	var db *database.PostgresDB
	db, err = database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		if cfg.IsProduction() {
			appLog.Fatal("database connection failed", zap.Error(err))
		}
		appLog.Warn("database connection failed", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
		appLog.Info("database connected")
		if cfg.Database.AutoMigrate {
			if err := repository.Migrate(ctx, db); err != nil {
				appLog.Fatal("migration failed", zap.Error(err))
			}
		}
	}

	// Redis
	var rdb *pkgredis.Client
	rdb, err = pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Warn("redis connection failed", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
		appLog.Info("redis connected")
	}

	// Kafka producer for the outbox relay
	var producer *kafka.Producer
	producer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID,
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		appLog.Warn("kafka connection failed, outbox relay disabled", zap.Error(err))
		producer = nil
	} else {
		defer producer.Close()
		appLog.Info("kafka connected")
	}

	// Payment gateway
	verifier, err := gateway.NewVerifier(&gateway.Config{
		Kind:       cfg.Gateway.Kind,
		BaseURL:    cfg.Gateway.BaseURL,
		SecretKey:  cfg.Gateway.SecretKey,
		Timeout:    cfg.Gateway.Timeout,
		MaxRetries: cfg.Gateway.MaxRetries,
	})
	if err != nil {
		appLog.Fatal("failed to create gateway verifier", zap.Error(err))
	}

	container := di.NewContainer(&di.ContainerConfig{
		DB:       db,
		Redis:    rdb,
		Producer: producer,
		Verifier: verifier,
		SettlementConfig: &service.SettlementServiceConfig{
			TicketsIssuedTopic: cfg.Settlement.TicketsIssuedTopic,
		},
		DefaultFees: domain.FeeSettings{
			PlatformFeePercent:  decimal.NewFromFloat(cfg.Settlement.DefaultPlatformFee),
			ProcessorFeePercent: decimal.NewFromFloat(cfg.Settlement.DefaultProcessorFee),
		},
		FeeSettingsCacheTTL: cfg.Settlement.FeeSettingsCacheTTL,
		Webhook: &handler.WebhookConfig{
			Secret:       cfg.Gateway.WebhookSecret,
			StripeSecret: cfg.Gateway.StripeWebhookSecret,
			LegacyToken:  cfg.Gateway.LegacyWebhookToken,
		},
		OutboxConfig: &worker.OutboxWorkerConfig{
			PollInterval:         cfg.Settlement.OutboxPollInterval,
			BatchSize:            cfg.Settlement.OutboxBatchSize,
			RetryInterval:        5 * time.Second,
			CleanupInterval:      time.Hour,
			CleanupRetentionDays: cfg.Settlement.OutboxRetentionDays,
		},
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if container.OutboxWorker != nil {
		if err := container.OutboxWorker.Start(workerCtx); err != nil {
			appLog.Fatal("failed to start outbox worker", zap.Error(err))
		}
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, container)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Settlement Service listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", zap.Error(err))
	}
	if container.OutboxWorker != nil {
		container.OutboxWorker.Stop()
	}
	if err := telemetry.ShutdownMetrics(shutdownCtx); err != nil {
		appLog.Warn("metric exporter shutdown failed", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("tracer shutdown failed", zap.Error(err))
	}

	appLog.Info("server exited gracefully")
}

func setupRouter(cfg *config.Config, c *di.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(serviceName))
	router.Use(middleware.Logger(logger.Get()))
	router.Use(middleware.Metrics())

	router.GET("/health", c.HealthHandler.Health)
	router.GET("/ready", c.HealthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Replays payout and resend writes carrying X-Idempotency-Key
	idempotent := func(ctx *gin.Context) { ctx.Next() }
	if c.Redis != nil {
		idempotent = middleware.Idempotency(middleware.DefaultIdempotencyConfig(c.Redis))
	}

	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("/verify", c.PaymentHandler.VerifyPayment)
			payments.GET("/:reference/tickets", c.PaymentHandler.GetTickets)
		}

		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/gateway", c.WebhookHandler.HandleGatewayWebhook)
			webhooks.POST("/legacy", c.WebhookHandler.HandleLegacyWebhook)
			webhooks.POST("/stripe", c.WebhookHandler.HandleStripeWebhook)
		}

		v1.POST("/fees/quote", c.FeeHandler.Quote)

		authed := v1.Group("", middleware.JWTAuth(cfg.JWT.Secret))
		{
			events := authed.Group("/events/:id")
			events.GET("/revenue", c.PayoutHandler.GetRevenue)
			events.GET("/payouts", c.PayoutHandler.ListPayouts)
			events.POST("/payouts", idempotent, c.PayoutHandler.RequestPayout)

			admin := authed.Group("/admin", handler.RequireSuperAdmin(c.AuthzService))
			admin.POST("/payouts/:id/approve", c.PayoutHandler.Approve)
			admin.POST("/payouts/:id/paid", c.PayoutHandler.MarkPaid)
			admin.POST("/payouts/:id/fail", c.PayoutHandler.Fail)
			admin.GET("/fee-settings", c.FeeHandler.GetSettings)
			admin.PUT("/fee-settings", c.FeeHandler.UpdateSettings)
			admin.POST("/reservations/:id/resend", idempotent, c.AdminHandler.ResendTickets)
		}
	}

	return router
}
