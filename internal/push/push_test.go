package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/attention/internal/logger"
)

// fakeSender records messages and rejects tokens listed in invalid.
type fakeSender struct {
	mu      sync.Mutex
	invalid map[string]bool
	sent    []Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invalid[msg.Token] {
		return ErrInvalidToken
	}
	f.sent = append(f.sent, msg)
	return nil
}

func quietBroadcaster() *Broadcaster {
	return NewBroadcaster(2, logger.New(logger.Config{Level: "error", Output: io.Discard}))
}

func TestMessenger_AcquireInitialisesOnce(t *testing.T) {
	var calls atomic.Int32
	m := NewMessenger(func(ctx context.Context) (Sender, error) {
		calls.Add(1)
		return &fakeSender{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Acquire(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestMessenger_RetriesFailedInit(t *testing.T) {
	var calls int
	m := NewMessenger(func(ctx context.Context) (Sender, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("not yet")
		}
		return &fakeSender{}, nil
	})

	_, err := m.Acquire(context.Background())
	assert.Error(t, err)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, 2, calls)

	_, err = (&Messenger{}).Acquire(context.Background())
	assert.Error(t, err)
}

func TestBroadcast_ToleratesInvalidTokens(t *testing.T) {
	sender := &fakeSender{invalid: map[string]bool{"bad": true}}
	before := testutil.ToFloat64(deliveriesTotal.WithLabelValues("alert", "invalid_token"))

	tally := quietBroadcaster().Broadcast(context.Background(), sender,
		[]string{"good-1", "bad", "good-2"},
		map[string]string{"action": "alert"},
		PriorityHigh,
	)

	assert.Equal(t, Tally{Delivered: 2, Failed: 1}, tally)
	assert.True(t, tally.OK())
	assert.Len(t, sender.sent, 2)
	for _, m := range sender.sent {
		assert.Equal(t, PriorityHigh, m.Priority)
	}
	assert.Equal(t, before+1, testutil.ToFloat64(deliveriesTotal.WithLabelValues("alert", "invalid_token")))
}

func TestBroadcast_AllFail(t *testing.T) {
	failing := SenderFunc(func(context.Context, Message) error { return errors.New("transport down") })

	tally := quietBroadcaster().Broadcast(context.Background(), failing, []string{"a", "b"}, map[string]string{"action": "read"}, PriorityLow)

	assert.Equal(t, Tally{Failed: 2}, tally)
	assert.False(t, tally.OK())
	assert.False(t, Tally{}.OK(), "no tokens is not a success")
}

func TestBroadcast_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := SenderFunc(func(context.Context, Message) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	tally := quietBroadcaster().Broadcast(context.Background(), slow, []string{"1", "2", "3", "4", "5", "6"}, nil, PriorityLow)

	assert.Equal(t, 6, tally.Delivered)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRedisSender(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := NewMessenger(RedisFactory(client, "push:device:"))
	sender, err := m.Acquire(ctx)
	require.NoError(t, err)

	sub := client.Subscribe(ctx, "push:device:bob-phone")
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	err = sender.Send(ctx, Message{Token: "bob-phone", Priority: PriorityHigh, Data: map[string]string{"action": "alert"}})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, PriorityHigh, env.Priority)
	assert.Equal(t, "alert", env.Data["action"])

	assert.ErrorIs(t, sender.Send(ctx, Message{Token: "nobody-listens"}), ErrInvalidToken)
	assert.ErrorIs(t, sender.Send(ctx, Message{}), ErrInvalidToken)
}

func TestRedisFactory_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewMessenger(RedisFactory(client, "p:")).Acquire(context.Background())
	assert.Error(t, err)
}

func TestLogSenderAndRedact(t *testing.T) {
	s := NewLogSender(logger.New(logger.Config{Output: io.Discard}))
	assert.NoError(t, s.Send(context.Background(), Message{Token: "abc"}))
	assert.ErrorIs(t, s.Send(context.Background(), Message{}), ErrInvalidToken)

	assert.Equal(t, "…abc", Redact("abc"))
	assert.Equal(t, "…456789", Redact("0123456789"))
}
