package repository

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/attention/internal/cache"
	"github.com/oggyb/attention/internal/db"
)

// DeviceRepository is the device token registry.
// Token sets are served cache-first when a RedisCache is configured;
// cache failures only cost a database round-trip.
type DeviceRepository struct {
	db     *gorm.DB
	cache  *cache.RedisCache
	logger *slog.Logger
}

// NewDeviceRepository creates a registry; rc may be nil to disable caching.
func NewDeviceRepository(database *gorm.DB, rc *cache.RedisCache, logger *slog.Logger) *DeviceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceRepository{db: database, cache: rc, logger: logger}
}

// Register adds a token for a user. A duplicate (user, token) surfaces as gorm.ErrDuplicatedKey.
func (r *DeviceRepository) Register(ctx context.Context, userID uint64, token string) error {
	if err := r.db.WithContext(ctx).Create(&db.DeviceToken{UserID: userID, Token: token}).Error; err != nil {
		return err
	}
	r.Invalidate(ctx, userID)
	return nil
}

// TokensForUser returns every token registered for a user, possibly none.
//
// Cache-first strategy:
//  1. Reads the tokens:user:<id> set from Redis.
//  2. On miss or error, loads from DB.
//  3. Non-empty DB results are written back with the configured TTL.
func (r *DeviceRepository) TokensForUser(ctx context.Context, userID uint64) ([]string, error) {
	if r.cache != nil {
		tokens, ok, err := r.cache.GetTokens(ctx, userID)
		if err != nil {
			r.logger.Warn("token cache read failed", "user_id", userID, "err", err)
		} else if ok {
			return tokens, nil
		}
	}

	var tokens []string
	err := r.db.WithContext(ctx).
		Model(&db.DeviceToken{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, err
	}

	if r.cache != nil && len(tokens) > 0 {
		if err := r.cache.SetTokens(ctx, userID, tokens); err != nil {
			r.logger.Warn("token cache write failed", "user_id", userID, "err", err)
		}
	}
	return tokens, nil
}

// Invalidate drops the cached token set of a user.
func (r *DeviceRepository) Invalidate(ctx context.Context, userID uint64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateTokens(ctx, userID); err != nil {
		r.logger.Warn("token cache invalidation failed", "user_id", userID, "err", err)
	}
}
