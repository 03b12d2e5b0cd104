package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/attention/internal/db"
	"github.com/oggyb/attention/internal/repository"
	"github.com/oggyb/attention/internal/testutil"
)

func TestUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(testutil.NewDB(t))

	require.NoError(t, repo.Create(ctx, &db.User{Username: "alice", FirstName: "Alice", LastName: "L", PasswordHash: "x"}))

	u, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice L", u.DisplayName())

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	err = repo.Create(ctx, &db.User{Username: "alice", FirstName: "A", LastName: "B", PasswordHash: "x"})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestUserRepository_DeletePurgesEverything(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewDB(t)
	alice := testutil.CreateUser(t, database, "alice", "Alice", "L")
	bob := testutil.CreateUser(t, database, "bob", "Bob", "B")
	testutil.AddToken(t, database, alice.ID, "alice-phone")
	testutil.AddToken(t, database, bob.ID, "bob-phone")

	friends := repository.NewFriendRepository(database)
	for _, pair := range [][2]uint64{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		_, _, err := friends.Upsert(ctx, pair[0], pair[1], repository.EdgeFields{}, repository.EdgeFields{})
		require.NoError(t, err)
	}

	users := repository.NewUserRepository(database)
	require.NoError(t, users.Delete(ctx, alice.ID))

	_, err := users.GetByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	edges, err := friends.ListByOwner(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, edges, "edges pointing at the erased user are purged")

	var tokens int64
	database.Model(&db.DeviceToken{}).Count(&tokens)
	assert.Equal(t, int64(1), tokens)

	assert.ErrorIs(t, users.Delete(ctx, alice.ID), repository.ErrUserNotFound)
}
