package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/attention/internal/config"
	"github.com/redis/go-redis/v9"
)

// alertSeqTTL keeps per-second sequence keys around just long enough to
// absorb clock skew between instances.
const alertSeqTTL = 5 * time.Second

type RedisCache struct {
	Client   *redis.Client
	TokenTTL time.Duration
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	ttl := cfg.Cache.TokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{Client: redis.NewClient(opts), TokenTTL: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForTokens generates the Redis key holding a user's device token set.
func (c *RedisCache) KeyForTokens(userID uint64) string {
	return fmt.Sprintf("tokens:user:%d", userID)
}

// KeyForAlertSeq generates the per-second alert sequence key.
func (c *RedisCache) KeyForAlertSeq(unix int64) string {
	return fmt.Sprintf("alerts:seq:%d", unix)
}

// GetTokens returns the cached token set for a user.
// A miss is reported as ok=false; an empty set is never cached.
func (c *RedisCache) GetTokens(ctx context.Context, userID uint64) ([]string, bool, error) {
	key := c.KeyForTokens(userID)
	tokens, err := c.Client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if len(tokens) == 0 {
		return nil, false, nil
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, c.TokenTTL).Err()
	return tokens, true, nil
}

// SetTokens replaces the cached token set for a user.
func (c *RedisCache) SetTokens(ctx context.Context, userID uint64, tokens []string) error {
	key := c.KeyForTokens(userID)
	if len(tokens) == 0 {
		return c.Client.Del(ctx, key).Err()
	}

	members := make([]any, len(tokens))
	for i, t := range tokens {
		members[i] = t
	}

	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, c.TokenTTL)
		return nil
	})
	return err
}

// InvalidateTokens drops the cached token set for a user.
func (c *RedisCache) InvalidateTokens(ctx context.Context, userID uint64) error {
	return c.Client.Del(ctx, c.KeyForTokens(userID)).Err()
}

// NextAlertSeq returns a sequence number unique across instances for the given second.
func (c *RedisCache) NextAlertSeq(ctx context.Context, unix int64) (int64, error) {
	key := c.KeyForAlertSeq(unix)
	var incr *redis.IntCmd
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, alertSeqTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
