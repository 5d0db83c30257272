package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/consumer"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/config"
	"github.com/mcofie/gatepass-settlement/pkg/kafka"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	pkgredis "github.com/mcofie/gatepass-settlement/pkg/redis"
	"github.com/mcofie/gatepass-settlement/pkg/retry"
	"github.com/mcofie/gatepass-settlement/pkg/telemetry"
	"go.uber.org/zap"
)

const workerName = "notification-worker"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: workerName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Notification Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    workerName,
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
		appLog.Warn("worker metrics disabled", zap.Error(err))
	}

	dispatcher, err := consumer.NewHTTPDispatcher(&consumer.HTTPDispatcherConfig{
		URL:     cfg.Notification.DispatchURL,
		Token:   cfg.Notification.DispatchToken,
		Timeout: cfg.Notification.DispatchTimeout,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create dispatcher: %v", err))
	}

	// Initialize Kafka consumer
	source, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup,
		Topics:         []string{cfg.Settlement.TicketsIssuedTopic},
		ClientID:       workerName,
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		SessionTimeout: 30 * time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Kafka consumer: %v", err))
	}
	defer source.Close()

	// Producer for the dead letter topic
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      workerName + "-dlq",
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Kafka producer: %v", err))
	}
	defer producer.Close()

	var dedupe consumer.Deduper
	rdb, err := pkgredis.NewClient(ctx, &pkgredis.Config{
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
	})
	if err != nil {
		appLog.Warn("redis unavailable, duplicate deliveries reach the dispatcher", zap.Error(err))
	} else {
		defer rdb.Close()
		dedupe = consumer.NewRedisDeduper(rdb, cfg.Notification.DedupeTTL)
	}

	consumerCfg := consumer.DefaultNotificationConsumerConfig()
	if cfg.Notification.MaxRetries > 0 {
		consumerCfg.Retry.MaxRetries = cfg.Notification.MaxRetries
	}

	worker := consumer.NewNotificationConsumer(
		source,
		dispatcher,
		retry.NewKafkaDLQPublisher(producer, workerName),
		dedupe,
		service.NewErrorReporter(appLog),
		consumerCfg,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil {
			appLog.Error("notification consumer exited", zap.Error(err))
		}
	}()

	appLog.Info(fmt.Sprintf("Consuming %s as group %s", cfg.Settlement.TicketsIssuedTopic, cfg.Kafka.ConsumerGroup))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down Notification Worker...")

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		appLog.Warn("consumer did not stop within 30s")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = telemetry.ShutdownMetrics(shutdownCtx)
	_ = telemetry.Shutdown(shutdownCtx)

	appLog.Info("Notification Worker stopped")
}
