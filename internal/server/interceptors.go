package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/attention/internal/logger"
)

// Metadata keys understood by the server.
const (
	// UsernameKey carries the authenticated caller, set by the upstream gateway.
	UsernameKey  = "x-username"
	RequestIDKey = "x-request-id"
)

// CallerUsername returns the authenticated caller of an incoming call.
func CallerUsername(ctx context.Context) (string, bool) {
	v := firstValue(ctx, UsernameKey)
	return v, v != ""
}

// UnaryRequestLogger tags every call with a request id, puts a request-scoped
// logger in its context and logs its outcome.
func UnaryRequestLogger(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		reqID := firstValue(ctx, RequestIDKey)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		caller, _ := CallerUsername(ctx)

		l := base.With("request_id", reqID, "method", info.FullMethod, "caller", caller)
		ctx = logger.IntoContext(ctx, l)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, reqID))

		resp, err := handler(ctx, req)

		code := status.Code(err)
		l.Log(ctx, levelFor(code), "rpc finished",
			"code", code.String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// UnaryRecoverer turns a handler panic into codes.Internal.
func UnaryRecoverer(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(ctx, base).Error("rpc panicked",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func levelFor(code codes.Code) slog.Level {
	switch code {
	case codes.OK:
		return slog.LevelInfo
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func firstValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
