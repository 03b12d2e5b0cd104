package accounts

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/attention/internal/app"
	"github.com/oggyb/attention/internal/db"
	svcErr "github.com/oggyb/attention/internal/errors"
	"github.com/oggyb/attention/internal/repository"
	"github.com/oggyb/attention/internal/service/friends"
)

// Registration is the data needed to create an account.
type Registration struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
}

// UserInfo is a user's profile together with their friend list, or one page
// of it when NextPageToken may be set.
type UserInfo struct {
	Username      string         `json:"username"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Email         *string        `json:"email"`
	Friends       []friends.View `json:"friends"`
	NextPageToken *string        `json:"next_page_token,omitempty"`
}

// Service manages accounts and their devices.
type Service struct {
	users         *repository.UserRepository
	devices       *repository.DeviceRepository
	relationships *friends.Service
	hashCost      int
	logger        *slog.Logger
}

// NewService creates an account service with dependencies from AppContext.
func NewService(appCtx *app.AppContext, relationships *friends.Service) *Service {
	return &Service{
		users:         repository.NewUserRepository(appCtx.DB),
		devices:       repository.NewDeviceRepository(appCtx.DB, appCtx.RedisCache, appCtx.Logger),
		relationships: relationships,
		hashCost:      bcrypt.DefaultCost,
		logger:        appCtx.Logger,
	}
}

// WithHashCost overrides the bcrypt cost, mostly to keep tests fast.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// RegisterUser creates an account with a bcrypt-hashed password.
// A taken username or email fails with ErrUsernameTaken.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if err != nil {
		return svcErr.Internal("hash password", err)
	}

	user := &db.User{
		Username:     reg.Username,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PasswordHash: string(hash),
	}
	if reg.Email != "" {
		email := reg.Email
		user.Email = &email
	}

	err = s.users.Create(ctx, user)
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return svcErr.ErrUsernameTaken
	case err != nil:
		return svcErr.Internal("create user", err)
	}
	s.logger.InfoContext(ctx, "user registered", "username", reg.Username)
	return nil
}

// RegisterDevice adds a push token to username's devices.
func (s *Service) RegisterDevice(ctx context.Context, username, token string) error {
	user, err := s.relationships.Resolve(ctx, username)
	if err != nil {
		return err
	}

	err = s.devices.Register(ctx, user.ID, token)
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return svcErr.ErrTokenRegistered
	case err != nil:
		return svcErr.Internal("register device", err)
	}
	return nil
}

// GetUserInfo returns username's profile and full friend list.
func (s *Service) GetUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	user, err := s.relationships.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}
	list, err := s.relationships.ListFriends(ctx, user)
	if err != nil {
		return nil, err
	}
	return profileOf(user, list), nil
}

// GetUserInfoPage is GetUserInfo with one page of at most limit friends.
// NextPageToken is nil on the last page.
func (s *Service) GetUserInfoPage(ctx context.Context, username string, token *string, limit int) (*UserInfo, error) {
	user, err := s.relationships.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}
	page, next, err := s.relationships.ListFriendsPage(ctx, user, token, limit)
	if err != nil {
		return nil, err
	}
	info := profileOf(user, page)
	info.NextPageToken = next
	return info, nil
}

func profileOf(user *db.User, list []friends.View) *UserInfo {
	return &UserInfo{
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Friends:   list,
	}
}

// DeleteUserData erases username and all data referencing it.
// Only the account owner may do so, and only with the right password.
func (s *Service) DeleteUserData(ctx context.Context, caller, username, password string) error {
	if caller != username {
		return svcErr.ErrForbidden
	}
	user, err := s.relationships.Resolve(ctx, username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return svcErr.ErrForbidden
	}

	err = s.users.Delete(ctx, user.ID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return svcErr.ErrUserNotFound
	case err != nil:
		return svcErr.Internal("delete user", err)
	}
	s.devices.Invalidate(ctx, user.ID)

	s.logger.InfoContext(ctx, "user data deleted", "username", username)
	return nil
}
