// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Domain is the ErrorInfo domain attached to every mapped status.
const Domain = "attention.v2"

var grpcCodes = map[Code]codes.Code{
	CodeUserNotFound:       codes.NotFound,
	CodeNotFriends:         codes.FailedPrecondition,
	CodePermissionDenied:   codes.PermissionDenied,
	CodeNoDevices:          codes.FailedPrecondition,
	CodeNoRecipientDevices: codes.Internal,
	CodeDeliveryFailed:     codes.Unavailable,
	CodeAlreadyExists:      codes.AlreadyExists,
	CodeInvalidArgument:    codes.InvalidArgument,
	CodeUnauthenticated:    codes.Unauthenticated,
	CodeInternal:           codes.Internal,
}

// Map converts domain/repo/infra errors into gRPC status errors.
// AppErrors keep their message and carry an ErrorInfo whose Reason is the Code.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return withReason(grpcCodes[appErr.Code], appErr.Code, appErr.Message)

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, gorm.ErrDuplicatedKey):
		return withReason(codes.AlreadyExists, CodeAlreadyExists, "record already exists")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// storage details never leave the process
		return withReason(codes.Internal, CodeInternal, "internal error")
	}
}

// ReasonOf returns the domain Code carried by a status produced by Map.
func ReasonOf(err error) Code {
	st, ok := status.FromError(err)
	if !ok {
		return CodeOf(err)
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return Code(info.GetReason())
		}
	}
	return ""
}

func withReason(c codes.Code, reason Code, msg string) error {
	st := status.New(c, msg)
	if detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: string(reason), Domain: Domain}); err == nil {
		return detailed.Err()
	}
	return st.Err()
}
