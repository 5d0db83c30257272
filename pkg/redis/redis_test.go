package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

// getTestConfig returns config for testing
func getTestConfig() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	if password := os.Getenv("TEST_REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}

	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 50, cfg.PoolSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.False(t, cfg.EnableTracing)
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.Addr())
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := &Config{
		Host:          "invalid-host-that-does-not-exist",
		Port:          9999,
		MaxRetries:    0,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   500 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, cfg)
	assert.Error(t, err)
}

func TestClient_Integration(t *testing.T) {
	skipIfNoIntegration(t)

	ctx := context.Background()
	cfg := getTestConfig()
	cfg.EnableTracing = true

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.HealthCheck(ctx))

	key := "test:settlement:" + time.Now().Format("150405.000000")
	ok, err := client.SetNX(ctx, key, "v1", time.Minute).Result()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "v2", time.Minute).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	require.NoError(t, client.Del(ctx, key).Err())
}
