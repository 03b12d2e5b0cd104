package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/attention/internal/app"
	"github.com/oggyb/attention/internal/db"
	svcErr "github.com/oggyb/attention/internal/errors"
	"github.com/oggyb/attention/internal/service/accounts"
	"github.com/oggyb/attention/internal/service/friends"
	"github.com/oggyb/attention/internal/testutil"
)

type fixture struct {
	accounts *accounts.Service
	friends  *friends.Service
	db       *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database := testutil.NewDB(t)
	rc, _ := testutil.NewRedis(t)
	appCtx := app.New(database, rc, nil, testutil.Logger())
	rel := friends.NewService(appCtx)

	return &fixture{
		accounts: accounts.NewService(appCtx, rel).WithHashCost(bcrypt.MinCost),
		friends:  rel,
		db:       database,
	}
}

func (f *fixture) register(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, f.accounts.RegisterUser(context.Background(), accounts.Registration{
		Username:  username,
		Password:  "correct horse",
		FirstName: "First",
		LastName:  username,
	}))
}

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	require.NoError(t, f.accounts.RegisterUser(ctx, accounts.Registration{
		Username:  "alice",
		Password:  "correct horse",
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "alice@example.com",
	}))

	var u db.User
	require.NoError(t, f.db.Where("username = ?", "alice").Take(&u).Error)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse")))
	require.NotNil(t, u.Email)
	assert.Equal(t, "alice@example.com", *u.Email)

	err := f.accounts.RegisterUser(ctx, accounts.Registration{Username: "alice", Password: "another one"})
	assert.ErrorIs(t, err, svcErr.ErrUsernameTaken)
}

func TestRegisterUserWithoutEmail(t *testing.T) {
	f := setup(t)
	// several users without email must not collide on the unique index
	f.register(t, "alice")
	f.register(t, "bob")

	var count int64
	require.NoError(t, f.db.Model(&db.User{}).Where("email IS NULL").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRegisterDevice(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.register(t, "alice")

	require.NoError(t, f.accounts.RegisterDevice(ctx, "alice", "tok-1"))
	assert.ErrorIs(t, f.accounts.RegisterDevice(ctx, "alice", "tok-1"), svcErr.ErrTokenRegistered)
	assert.ErrorIs(t, f.accounts.RegisterDevice(ctx, "mallory", "tok-2"), svcErr.ErrUserNotFound)

	var count int64
	require.NoError(t, f.db.Model(&db.DeviceToken{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetUserInfo(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.register(t, "alice")
	f.register(t, "bob")
	require.NoError(t, f.friends.AddFriend(ctx, "alice", "bob"))

	info, err := f.accounts.GetUserInfo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.Nil(t, info.Email)
	require.Len(t, info.Friends, 1)
	assert.Equal(t, "bob", info.Friends[0].Username)
	assert.Equal(t, "First bob", info.Friends[0].Name)

	_, err = f.accounts.GetUserInfo(ctx, "mallory")
	assert.ErrorIs(t, err, svcErr.ErrUserNotFound)
}

// TestGetUserInfoPage checks that a paged call loads the profile once and
// reads only the requested page of friends.
func TestGetUserInfoPage(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for _, name := range []string{"alice", "bob", "carol"} {
		f.register(t, name)
	}
	require.NoError(t, f.friends.AddFriend(ctx, "alice", "bob"))
	require.NoError(t, f.friends.AddFriend(ctx, "alice", "carol"))

	queries := map[string]int{}
	require.NoError(t, f.db.Callback().Query().After("gorm:query").
		Register("test:count_tables", func(tx *gorm.DB) {
			queries[tx.Statement.Table]++
		}))

	info, err := f.accounts.GetUserInfoPage(ctx, "alice", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	require.Len(t, info.Friends, 1)
	assert.Equal(t, "bob", info.Friends[0].Username)
	require.NotNil(t, info.NextPageToken)
	assert.Equal(t, 1, queries["friends"], "no full friend list is loaded")
	assert.LessOrEqual(t, queries["users"], 2, "one profile lookup plus the friend preload")

	info, err = f.accounts.GetUserInfoPage(ctx, "alice", info.NextPageToken, 1)
	require.NoError(t, err)
	require.Len(t, info.Friends, 1)
	assert.Equal(t, "carol", info.Friends[0].Username)
	assert.Nil(t, info.NextPageToken)

	_, err = f.accounts.GetUserInfoPage(ctx, "alice", nil, 0)
	assert.Equal(t, svcErr.CodeInvalidArgument, svcErr.CodeOf(err))
	_, err = f.accounts.GetUserInfoPage(ctx, "mallory", nil, 1)
	assert.ErrorIs(t, err, svcErr.ErrUserNotFound)
}

func TestDeleteUserData(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.register(t, "alice")
	f.register(t, "bob")
	require.NoError(t, f.accounts.RegisterDevice(ctx, "alice", "alice-phone"))
	require.NoError(t, f.friends.AddFriend(ctx, "alice", "bob"))
	require.NoError(t, f.friends.AddFriend(ctx, "bob", "alice"))

	assert.ErrorIs(t, f.accounts.DeleteUserData(ctx, "bob", "alice", "correct horse"), svcErr.ErrForbidden)
	assert.ErrorIs(t, f.accounts.DeleteUserData(ctx, "alice", "alice", "wrong"), svcErr.ErrForbidden)

	require.NoError(t, f.accounts.DeleteUserData(ctx, "alice", "alice", "correct horse"))

	var users, edges, tokens int64
	require.NoError(t, f.db.Model(&db.User{}).Count(&users).Error)
	require.NoError(t, f.db.Model(&db.Friend{}).Count(&edges).Error)
	require.NoError(t, f.db.Model(&db.DeviceToken{}).Count(&tokens).Error)
	assert.Equal(t, int64(1), users)
	assert.Zero(t, edges, "edges in both directions are removed")
	assert.Zero(t, tokens)

	info, err := f.accounts.GetUserInfo(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, info.Friends)

	assert.ErrorIs(t, f.accounts.DeleteUserData(ctx, "alice", "alice", "correct horse"), svcErr.ErrUserNotFound)
}
