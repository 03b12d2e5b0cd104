package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/attention/internal/cache"
	"github.com/oggyb/attention/internal/push"
)

// AppContext holds shared dependencies (DB, Redis, Logger, device messenger).
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache // nil disables caching and Redis alert ids
	Logger     *slog.Logger
	Messenger  *push.Messenger

	// FanoutLimit bounds concurrent deliveries per broadcast; <= 0 is unbounded.
	FanoutLimit int
}

// New creates a new AppContext
func New(db *gorm.DB, rdb *cache.RedisCache, messenger *push.Messenger, logger *slog.Logger) *AppContext {
	return &AppContext{
		DB:          db,
		RedisCache:  rdb,
		Logger:      logger,
		Messenger:   messenger,
		FanoutLimit: 8,
	}
}
