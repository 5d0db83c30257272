package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	OTel         OTelConfig         `mapstructure:"otel"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns host:port
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// JWTConfig holds settings for validating bearer tokens issued by the auth provider
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// GatewayConfig holds payment gateway settings
type GatewayConfig struct {
	Kind                string        `mapstructure:"kind"` // paystack, stripe, mock
	BaseURL             string        `mapstructure:"base_url"`
	SecretKey           string        `mapstructure:"secret_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	WebhookSecret       string        `mapstructure:"webhook_secret"` // HMAC-SHA512 for /webhooks/gateway
	StripeWebhookSecret string        `mapstructure:"stripe_webhook_secret"`
	LegacyWebhookToken  string        `mapstructure:"legacy_webhook_token"`
}

// SettlementConfig holds settlement pipeline settings
type SettlementConfig struct {
	TicketsIssuedTopic  string        `mapstructure:"tickets_issued_topic"`
	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	OutboxRetentionDays int           `mapstructure:"outbox_retention_days"`
	FeeSettingsCacheTTL time.Duration `mapstructure:"fee_settings_cache_ttl"`
	DefaultPlatformFee  float64       `mapstructure:"default_platform_fee_percent"`
	DefaultProcessorFee float64       `mapstructure:"default_processor_fee_percent"`
}

// NotificationConfig holds settings for the ticket notification worker
type NotificationConfig struct {
	DispatchURL     string        `mapstructure:"dispatch_url"`
	DispatchToken   string        `mapstructure:"dispatch_token"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	DedupeTTL       time.Duration `mapstructure:"dedupe_ttl"`
}

const defaultJWTSecret = "your-secret-key-change-in-production"

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables may carry everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "settlement-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8084)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "gatepass")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "5m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", false)

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "notification-worker")
	v.SetDefault("KAFKA_CLIENT_ID", "settlement-service")

	// JWT defaults
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "gatepass")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "settlement-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Gateway defaults
	v.SetDefault("GATEWAY_KIND", "mock")
	v.SetDefault("GATEWAY_BASE_URL", "https://api.paystack.co")
	v.SetDefault("GATEWAY_SECRET_KEY", "")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("GATEWAY_MAX_RETRIES", 2)
	v.SetDefault("GATEWAY_WEBHOOK_SECRET", "")
	v.SetDefault("GATEWAY_STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("GATEWAY_LEGACY_WEBHOOK_TOKEN", "")

	// Settlement defaults
	v.SetDefault("SETTLEMENT_TICKETS_ISSUED_TOPIC", "settlement.tickets-issued")
	v.SetDefault("SETTLEMENT_OUTBOX_POLL_INTERVAL", "500ms")
	v.SetDefault("SETTLEMENT_OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("SETTLEMENT_OUTBOX_RETENTION_DAYS", 7)
	v.SetDefault("SETTLEMENT_FEE_SETTINGS_CACHE_TTL", "1m")
	v.SetDefault("SETTLEMENT_DEFAULT_PLATFORM_FEE_PERCENT", 4.0)
	v.SetDefault("SETTLEMENT_DEFAULT_PROCESSOR_FEE_PERCENT", 1.95)

	// Notification defaults
	v.SetDefault("NOTIFICATION_DISPATCH_URL", "http://localhost:8090/internal/ticket-notifications")
	v.SetDefault("NOTIFICATION_DISPATCH_TIMEOUT", "10s")
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_DISPATCH_TOKEN", "")
	v.SetDefault("NOTIFICATION_DEDUPE_TTL", "24h")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Gateway
	cfg.Gateway.Kind = strings.ToLower(v.GetString("GATEWAY_KIND"))
	cfg.Gateway.BaseURL = strings.TrimRight(v.GetString("GATEWAY_BASE_URL"), "/")
	cfg.Gateway.SecretKey = v.GetString("GATEWAY_SECRET_KEY")
	cfg.Gateway.Timeout = v.GetDuration("GATEWAY_TIMEOUT")
	cfg.Gateway.MaxRetries = v.GetInt("GATEWAY_MAX_RETRIES")
	cfg.Gateway.WebhookSecret = v.GetString("GATEWAY_WEBHOOK_SECRET")
	cfg.Gateway.StripeWebhookSecret = v.GetString("GATEWAY_STRIPE_WEBHOOK_SECRET")
	cfg.Gateway.LegacyWebhookToken = v.GetString("GATEWAY_LEGACY_WEBHOOK_TOKEN")

	// Settlement
	cfg.Settlement.TicketsIssuedTopic = v.GetString("SETTLEMENT_TICKETS_ISSUED_TOPIC")
	cfg.Settlement.OutboxPollInterval = v.GetDuration("SETTLEMENT_OUTBOX_POLL_INTERVAL")
	cfg.Settlement.OutboxBatchSize = v.GetInt("SETTLEMENT_OUTBOX_BATCH_SIZE")
	cfg.Settlement.OutboxRetentionDays = v.GetInt("SETTLEMENT_OUTBOX_RETENTION_DAYS")
	cfg.Settlement.FeeSettingsCacheTTL = v.GetDuration("SETTLEMENT_FEE_SETTINGS_CACHE_TTL")
	cfg.Settlement.DefaultPlatformFee = v.GetFloat64("SETTLEMENT_DEFAULT_PLATFORM_FEE_PERCENT")
	cfg.Settlement.DefaultProcessorFee = v.GetFloat64("SETTLEMENT_DEFAULT_PROCESSOR_FEE_PERCENT")

	// Notification
	cfg.Notification.DispatchURL = v.GetString("NOTIFICATION_DISPATCH_URL")
	cfg.Notification.DispatchTimeout = v.GetDuration("NOTIFICATION_DISPATCH_TIMEOUT")
	cfg.Notification.MaxRetries = v.GetInt("NOTIFICATION_MAX_RETRIES")
	cfg.Notification.DispatchToken = v.GetString("NOTIFICATION_DISPATCH_TOKEN")
	cfg.Notification.DedupeTTL = v.GetDuration("NOTIFICATION_DEDUPE_TTL")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch c.Gateway.Kind {
	case "paystack", "stripe", "mock":
	default:
		return fmt.Errorf("unsupported gateway kind: %q", c.Gateway.Kind)
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	if c.Settlement.DefaultProcessorFee < 0 || c.Settlement.DefaultProcessorFee >= 100 {
		return fmt.Errorf("invalid default processor fee percent: %v", c.Settlement.DefaultProcessorFee)
	}
	if c.Settlement.DefaultPlatformFee < 0 {
		return fmt.Errorf("invalid default platform fee percent: %v", c.Settlement.DefaultPlatformFee)
	}

	if c.IsProduction() {
		if c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT secret must be changed in production")
		}
		if c.Gateway.Kind == "mock" {
			return fmt.Errorf("mock gateway is not allowed in production")
		}
		if c.Gateway.Kind == "stripe" {
			if c.Gateway.StripeWebhookSecret == "" {
				return fmt.Errorf("GATEWAY_STRIPE_WEBHOOK_SECRET is required in production")
			}
		} else if c.Gateway.WebhookSecret == "" {
			return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required in production")
		}
	}

	return nil
}

// ValidateDatabase validates database configuration
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
