package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FeeSettingsCacheKey is the Redis key of the cached global fee settings
const FeeSettingsCacheKey = "settlement:fee-settings"

// CachedFeeSettingsRepository reads fee settings through Redis. Redis
// failures fall back to the underlying repository.
type CachedFeeSettingsRepository struct {
	next FeeSettingsRepository
	rdb  redis.Cmdable
	ttl  time.Duration
}

// NewCachedFeeSettingsRepository wraps next with a Redis read-through cache
func NewCachedFeeSettingsRepository(next FeeSettingsRepository, rdb redis.Cmdable, ttl time.Duration) *CachedFeeSettingsRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedFeeSettingsRepository{next: next, rdb: rdb, ttl: ttl}
}

// Get returns the cached settings, loading them on a miss
func (r *CachedFeeSettingsRepository) Get(ctx context.Context) (*domain.FeeSettings, error) {
	data, err := r.rdb.Get(ctx, FeeSettingsCacheKey).Bytes()
	switch {
	case err == nil:
		var s domain.FeeSettings
		if jsonErr := json.Unmarshal(data, &s); jsonErr == nil {
			return &s, nil
		}
		logger.Get().Warn("Discarding undecodable fee settings cache entry")
	case !errors.Is(err, redis.Nil):
		logger.Get().Warn("Fee settings cache read failed", zap.Error(err))
	}

	s, err := r.next.Get(ctx)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(s); err == nil {
		if err := r.rdb.Set(ctx, FeeSettingsCacheKey, payload, r.ttl).Err(); err != nil {
			logger.Get().Warn("Fee settings cache write failed", zap.Error(err))
		}
	}
	return s, nil
}

// Update writes through and invalidates the cache
func (r *CachedFeeSettingsRepository) Update(ctx context.Context, s *domain.FeeSettings) error {
	if err := r.next.Update(ctx, s); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, FeeSettingsCacheKey).Err(); err != nil {
		logger.Get().Warn("Fee settings cache invalidation failed", zap.Error(err))
	}
	return nil
}

// Ensure CachedFeeSettingsRepository implements FeeSettingsRepository
var _ FeeSettingsRepository = (*CachedFeeSettingsRepository)(nil)
