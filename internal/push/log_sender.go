package push

import (
	"context"
	"log/slog"
)

// LogSender accepts every non-empty token and logs the payload.
// Used in development, where no device gateway is running.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrInvalidToken
	}
	s.logger.InfoContext(ctx, "push message",
		"token", Redact(msg.Token),
		"priority", msg.Priority,
		"data", msg.Data,
	)
	return nil
}
