package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSender publishes messages on a Pub/Sub channel per device token.
// Device gateways subscribe to <prefix><token>; a publish nobody receives
// means the token has no live device and is reported as ErrInvalidToken.
type RedisSender struct {
	client *redis.Client
	prefix string
}

type envelope struct {
	Priority Priority          `json:"priority"`
	Data     map[string]string `json:"data"`
}

func NewRedisSender(client *redis.Client, prefix string) *RedisSender {
	return &RedisSender{client: client, prefix: prefix}
}

// RedisFactory builds a Messenger factory that verifies the connection first.
func RedisFactory(client *redis.Client, prefix string) func(ctx context.Context) (Sender, error) {
	return func(ctx context.Context) (Sender, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("push: redis not reachable: %w", err)
		}
		return NewRedisSender(client, prefix), nil
	}
}

// Channel returns the channel a token's gateway listens on.
func (s *RedisSender) Channel(token string) string {
	return s.prefix + token
}

func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrInvalidToken
	}

	body, err := json.Marshal(envelope{Priority: msg.Priority, Data: msg.Data})
	if err != nil {
		return fmt.Errorf("push: encode message: %w", err)
	}

	receivers, err := s.client.Publish(ctx, s.Channel(msg.Token), body).Result()
	if err != nil {
		return fmt.Errorf("push: publish: %w", err)
	}
	if receivers == 0 {
		return ErrInvalidToken
	}
	return nil
}
