// Package push delivers data messages to device tokens.
//
// The transport behind a Sender is opaque to callers: they only learn whether a
// single token accepted the message. Broadcast fans one payload out to many
// tokens and reports a Tally instead of failing fast.
package push

import (
	"context"
	"errors"
	"sync"
)

type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
)

// Message is one payload addressed to one device token.
type Message struct {
	Token    string
	Data     map[string]string
	Priority Priority
}

// ErrInvalidToken reports that the transport rejected a token.
// It is a per-token failure, never fatal to a broadcast.
var ErrInvalidToken = errors.New("push: invalid device token")

// Sender submits a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Messenger owns the process-wide Sender and initialises it on first use.
// Acquire is idempotent: once a Sender is built it is reused, and a failed
// initialisation is retried by the next caller.
type Messenger struct {
	mu      sync.Mutex
	factory func(ctx context.Context) (Sender, error)
	sender  Sender
}

func NewMessenger(factory func(ctx context.Context) (Sender, error)) *Messenger {
	return &Messenger{factory: factory}
}

// Ready wraps an already-initialised Sender.
func Ready(s Sender) *Messenger {
	return &Messenger{sender: s}
}

// Acquire returns the initialised Sender, building it if needed.
func (m *Messenger) Acquire(ctx context.Context) (Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sender != nil {
		return m.sender, nil
	}
	if m.factory == nil {
		return nil, errors.New("push: messenger has no sender")
	}

	s, err := m.factory(ctx)
	if err != nil {
		return nil, err
	}
	m.sender = s
	return s, nil
}
