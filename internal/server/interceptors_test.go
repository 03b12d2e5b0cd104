package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/attention/internal/logger"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/attention.v2.AttentionService/SendAlert"}

func TestCallerUsername(t *testing.T) {
	_, ok := CallerUsername(context.Background())
	assert.False(t, ok)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(UsernameKey, "alice"))
	name, ok := CallerUsername(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs(UsernameKey, ""))
	_, ok = CallerUsername(ctx)
	assert.False(t, ok)
}

func TestUnaryRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		UsernameKey, "alice",
		RequestIDKey, "req-42",
	))

	var scoped *slog.Logger
	_, err := UnaryRequestLogger(base)(ctx, nil, testInfo, func(ctx context.Context, req any) (any, error) {
		scoped = logger.FromContext(ctx, nil)
		return nil, status.Error(codes.PermissionDenied, "no")
	})
	require.Error(t, err)
	require.NotNil(t, scoped)
	assert.NotSame(t, base, scoped)

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, `"caller":"alice"`)
	assert.Contains(t, out, `"code":"PermissionDenied"`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestUnaryRequestLogger_GeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	_, err := UnaryRequestLogger(base)(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Regexp(t, `"request_id":"[0-9a-f-]{36}"`, buf.String())
}

func TestUnaryRecoverer(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(logger.Config{Level: "info", Output: &buf})

	_, err := UnaryRecoverer(base)(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, buf.String(), "rpc panicked")

	want := errors.New("plain")
	_, err = UnaryRecoverer(base)(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		return nil, want
	})
	assert.Same(t, want, err)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, levelFor(codes.OK))
	assert.Equal(t, slog.LevelWarn, levelFor(codes.NotFound))
	assert.Equal(t, slog.LevelError, levelFor(codes.Unavailable))
}
