package push

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Tally counts per-token outcomes of a broadcast.
type Tally struct {
	Delivered int
	Failed    int
}

// OK reports whether at least one device received the message.
func (t Tally) OK() bool { return t.Delivered > 0 }

// Broadcaster fans a payload out to many tokens with bounded concurrency.
type Broadcaster struct {
	limit  int
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster; limit <= 0 means unbounded.
func NewBroadcaster(limit int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{limit: limit, logger: logger}
}

// Broadcast sends data to every token and returns the tally.
// Failures are logged and counted; they never cancel sibling deliveries.
func (b *Broadcaster) Broadcast(
	ctx context.Context,
	sender Sender,
	tokens []string,
	data map[string]string,
	priority Priority,
) Tally {
	var (
		g                 errgroup.Group
		delivered, failed atomic.Int64
	)
	if b.limit > 0 {
		g.SetLimit(b.limit)
	}

	action := data["action"]
	for _, token := range tokens {
		g.Go(func() error {
			err := sender.Send(ctx, Message{Token: token, Data: data, Priority: priority})
			if err != nil {
				failed.Add(1)
				deliveriesTotal.WithLabelValues(action, resultFor(err)).Inc()
				b.logger.WarnContext(ctx, "push delivery failed",
					"action", action,
					"token", Redact(token),
					"err", err,
				)
				return nil
			}
			delivered.Add(1)
			deliveriesTotal.WithLabelValues(action, "delivered").Inc()
			return nil
		})
	}
	_ = g.Wait()

	return Tally{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}

// Redact keeps only the tail of a token for logs.
func Redact(token string) string {
	const keep = 6
	if len(token) <= keep {
		return "…" + token
	}
	return "…" + token[len(token)-keep:]
}
