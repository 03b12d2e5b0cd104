package attention

import (
	"context"
	"log/slog"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/attention/internal/app"
	svcErr "github.com/oggyb/attention/internal/errors"
	"github.com/oggyb/attention/internal/logger"
	"github.com/oggyb/attention/internal/server"
	"github.com/oggyb/attention/internal/service/accounts"
	"github.com/oggyb/attention/internal/service/alerts"
	"github.com/oggyb/attention/internal/service/friends"
)

// Service implements the AttentionService gRPC API on top of the
// relationship, alert and account services.
//
// Every method except RegisterUser acts on behalf of the caller named by the
// x-username metadata key. Successful calls answer with
// {success: true, message, data}; failures are gRPC status errors whose
// ErrorInfo reason is the domain error code.
type Service struct {
	friends  *friends.Service
	alerts   *alerts.Dispatcher
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewAttentionService creates the API with dependencies from AppContext.
func NewAttentionService(appCtx *app.AppContext) *Service {
	rel := friends.NewService(appCtx)
	return &Service{
		friends:  rel,
		alerts:   alerts.NewDispatcher(appCtx, rel),
		accounts: accounts.NewService(appCtx, rel),
		logger:   appCtx.Logger,
	}
}

// RegisterUser creates an account. It needs no caller identity.
//
// Example:
//
//	{"first_name": "Alice", "last_name": "Liddell", "username": "alice", "password": "correct horse"}
func (s *Service) RegisterUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req registerUserRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	err := s.accounts.RegisterUser(ctx, accounts.Registration{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully created user", nil)
}

// RegisterDevice adds a push token for the caller.
func (s *Service) RegisterDevice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req registerDeviceRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.accounts.RegisterDevice(ctx, caller, req.FCMToken); err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully created token", nil)
}

// AddFriend adds username to the caller's friends.
func (s *Service) AddFriend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req addFriendRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.friends.AddFriend(ctx, caller, req.Username); err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully added/restored friend", nil)
}

// RenameFriend sets the caller's name for username without adding them.
func (s *Service) RenameFriend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req renameFriendRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.friends.RenameFriend(ctx, caller, req.Username, req.NewName); err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully updated friend name", nil)
}

// GetFriendName answers {name} as the caller sees username.
func (s *Service) GetFriendName(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req getFriendNameRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	name, err := s.friends.GetFriendDisplayName(ctx, caller, req.Username)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Got name", map[string]string{"name": name})
}

// RemoveFriend hides friend from the caller's list.
func (s *Service) RemoveFriend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req removeFriendRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.friends.RemoveFriend(ctx, caller, req.Friend); err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully deleted friend", nil)
}

// GetUserInfo dumps the caller's profile and friends.
// With page_size set, friends holds one page and next_page_token the rest.
func (s *Service) GetUserInfo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req getUserInfoRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}

	var info *accounts.UserInfo
	if req.PageSize == 0 {
		info, err = s.accounts.GetUserInfo(ctx, caller)
	} else {
		info, err = s.accounts.GetUserInfoPage(ctx, caller, &req.PageToken, req.PageSize)
	}
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Got user data", info)
}

// DeleteUserData erases the caller's account after re-checking the password.
func (s *Service) DeleteUserData(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req deleteUserDataRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.accounts.DeleteUserData(ctx, caller, req.Username, req.Password); err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully deleted user data", nil)
}

// SendAlert alerts to from the caller and answers {id}.
func (s *Service) SendAlert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req sendAlertRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	id, err := s.alerts.SendAlert(ctx, caller, req.To, *req.Message)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully sent message", map[string]string{"id": id})
}

// AlertRead acknowledges alert_id sent by from, on behalf of the caller's
// device fcm_token.
func (s *Service) AlertRead(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	var req alertReadRequest
	if err := decode(in, &req); err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.alerts.AcknowledgeRead(ctx, caller, req.From, req.AlertID, req.FCMToken); err != nil {
		return nil, s.fail(ctx, err)
	}
	return s.respond(ctx, "Successfully notified devices", nil)
}

// respond encodes a successful answer. Encoding failures go through fail
// like any other error.
func (s *Service) respond(ctx context.Context, message string, data any) (*structpb.Struct, error) {
	out, err := encode(message, data)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return out, nil
}

// fail logs err with the request-scoped logger and maps it to a gRPC status.
func (s *Service) fail(ctx context.Context, err error) error {
	l := logger.FromContext(ctx, s.logger)
	if svcErr.CodeOf(err) == svcErr.CodeInternal {
		l.ErrorContext(ctx, "request failed", "err", err)
	} else {
		l.DebugContext(ctx, "request rejected", "err", err)
	}
	return svcErr.Map(err)
}

func callerOf(ctx context.Context) (string, error) {
	caller, ok := server.CallerUsername(ctx)
	if !ok {
		return "", svcErr.ErrUnauthenticated
	}
	return caller, nil
}
