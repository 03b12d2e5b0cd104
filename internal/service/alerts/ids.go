package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/attention/internal/cache"
)

// IDGenerator issues alert ids of the form "<unix seconds>.<n>".
//
// n comes from a Redis counter shared by every instance for that second, so
// ids stay unique across instances. If Redis is unavailable n falls back to
// the zero-padded nanosecond part of the clock, which never collides with a
// counter value.
type IDGenerator struct {
	cache  *cache.RedisCache
	now    func() time.Time
	logger *slog.Logger
}

// NewIDGenerator creates a generator; rc may be nil to always use the clock.
func NewIDGenerator(rc *cache.RedisCache, logger *slog.Logger) *IDGenerator {
	return &IDGenerator{cache: rc, now: time.Now, logger: logger}
}

// Next returns a fresh alert id.
func (g *IDGenerator) Next(ctx context.Context) string {
	now := g.now()
	sec := now.Unix()
	if g.cache != nil {
		seq, err := g.cache.NextAlertSeq(ctx, sec)
		if err == nil {
			return fmt.Sprintf("%d.%d", sec, seq)
		}
		g.logger.WarnContext(ctx, "alert sequence unavailable, using clock", "err", err)
	}
	return fmt.Sprintf("%d.%09d", sec, now.Nanosecond())
}
