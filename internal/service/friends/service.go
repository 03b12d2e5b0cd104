package friends

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oggyb/attention/internal/app"
	"github.com/oggyb/attention/internal/db"
	svcErr "github.com/oggyb/attention/internal/errors"
	"github.com/oggyb/attention/internal/repository"
	"github.com/oggyb/attention/internal/utils/pagination"
)

// View is one entry of a user's friend list as seen by its owner.
type View struct {
	Username          string  `json:"friend"`
	Name              string  `json:"name"`
	Deleted           bool    `json:"deleted"`
	Sent              int64   `json:"sent"`
	Received          int64   `json:"received"`
	LastMessageIDSent *string `json:"last_message_id_sent"`
	LastMessageRead   bool    `json:"last_message_read"`
}

// Service manages the directed friend edges between users.
// Edges are never physically removed: removal only flips the deleted flag,
// so the alert counters survive a remove/re-add cycle.
type Service struct {
	users   *repository.UserRepository
	friends *repository.FriendRepository
	logger  *slog.Logger
}

// NewService creates a relationship service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		users:   repository.NewUserRepository(appCtx.DB),
		friends: repository.NewFriendRepository(appCtx.DB),
		logger:  appCtx.Logger,
	}
}

// AddFriend makes friend live in owner's list, creating the edge if needed.
// Re-adding a removed friend keeps its name and counters.
func (s *Service) AddFriend(ctx context.Context, owner, friend string) error {
	o, f, err := s.resolvePair(ctx, owner, friend)
	if err != nil {
		return err
	}
	if o.ID == f.ID {
		return svcErr.InvalidArg("cannot add yourself as a friend")
	}

	live := false
	_, created, err := s.friends.Upsert(ctx, o.ID, f.ID,
		repository.EdgeFields{Deleted: &live},
		repository.EdgeFields{},
	)
	if err != nil {
		return svcErr.Internal("add friend", err)
	}
	s.logger.Debug("friend added", "owner", owner, "friend", friend, "created", created)
	return nil
}

// RenameFriend sets the name owner uses for friend.
//
// Behavior:
//   - Existing edge: only the name changes; the deleted flag is preserved.
//   - No edge: a deleted edge carrying the name is created, so renaming never
//     implies adding.
func (s *Service) RenameFriend(ctx context.Context, owner, friend, name string) error {
	o, f, err := s.resolvePair(ctx, owner, friend)
	if err != nil {
		return err
	}
	if o.ID == f.ID {
		return svcErr.InvalidArg("cannot rename yourself")
	}

	hidden := true
	_, _, err = s.friends.Upsert(ctx, o.ID, f.ID,
		repository.EdgeFields{Name: &name},
		repository.EdgeFields{Deleted: &hidden},
	)
	if err != nil {
		return svcErr.Internal("rename friend", err)
	}
	return nil
}

// GetFriendDisplayName returns the name owner gave friend, else friend's
// "first last". The edge's deleted flag is not consulted.
func (s *Service) GetFriendDisplayName(ctx context.Context, owner, friend string) (string, error) {
	o, f, err := s.resolvePair(ctx, owner, friend)
	if err != nil {
		return "", err
	}

	edge, err := s.friends.Get(ctx, o.ID, f.ID)
	switch {
	case errors.Is(err, repository.ErrEdgeNotFound):
		return f.DisplayName(), nil
	case err != nil:
		return "", svcErr.Internal("load friend", err)
	}
	return displayName(edge, f), nil
}

// RemoveFriend hides friend from owner's list. Fails with ErrNotFriends when
// no live edge exists.
func (s *Service) RemoveFriend(ctx context.Context, owner, friend string) error {
	o, f, err := s.resolvePair(ctx, owner, friend)
	if err != nil {
		return err
	}

	err = s.friends.Transaction(ctx, func(tx *repository.FriendRepository) error {
		if _, err := tx.LockLive(ctx, o.ID, f.ID); err != nil {
			return err
		}
		return tx.SetDeleted(ctx, o.ID, f.ID, true)
	})
	switch {
	case errors.Is(err, repository.ErrEdgeNotFound):
		return svcErr.ErrNotFriends
	case err != nil:
		return svcErr.Internal("remove friend", err)
	}
	return nil
}

// ListFriends returns all of owner's edges, removed ones included.
func (s *Service) ListFriends(ctx context.Context, owner *db.User) ([]View, error) {
	edges, err := s.friends.ListByOwner(ctx, owner.ID)
	if err != nil {
		return nil, svcErr.Internal("list friends", err)
	}
	return toViews(edges), nil
}

// ListFriendsPage is ListFriends split into pages of at most limit entries.
// An empty token starts from the beginning; a nil next token marks the last page.
func (s *Service) ListFriendsPage(ctx context.Context, owner *db.User, token *string, limit int) ([]View, *string, error) {
	if limit <= 0 {
		return nil, nil, svcErr.InvalidArg("page size must be positive")
	}
	edges, next, err := s.friends.ListByOwnerPage(ctx, owner.ID, token, limit)
	if errors.Is(err, pagination.ErrInvalidToken) {
		return nil, nil, svcErr.InvalidArg("invalid page token")
	}
	if err != nil {
		return nil, nil, svcErr.Internal("list friends", err)
	}
	return toViews(edges), next, nil
}

// CanSend reports whether recipient has a live edge to sender.
// It reads without locking; SendAlert re-checks under lock.
func (s *Service) CanSend(ctx context.Context, sender, recipient string) (bool, error) {
	snd, rcp, err := s.resolvePair(ctx, sender, recipient)
	if err != nil {
		return false, err
	}
	edge, err := s.friends.Get(ctx, rcp.ID, snd.ID)
	switch {
	case errors.Is(err, repository.ErrEdgeNotFound):
		return false, nil
	case err != nil:
		return false, svcErr.Internal("check permission", err)
	}
	return edge.Live(), nil
}

// Authorize checks, through repo, that recipient has sender as a live friend.
// Both edges of the pair are locked in a fixed order; inside a transaction
// they stay locked until commit.
func (s *Service) Authorize(ctx context.Context, repo *repository.FriendRepository, senderID, recipientID uint64) error {
	_, incoming, err := repo.LockPair(ctx, senderID, recipientID)
	switch {
	case err != nil:
		return svcErr.Internal("check permission", err)
	case incoming == nil || !incoming.Live():
		return svcErr.ErrPermissionDenied
	}
	return nil
}

// Resolve looks a user up by username.
func (s *Service) Resolve(ctx context.Context, username string) (*db.User, error) {
	return s.resolve(ctx, username)
}

func (s *Service) resolve(ctx context.Context, username string) (*db.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return nil, svcErr.ErrUserNotFound
	case err != nil:
		return nil, svcErr.Internal("load user", err)
	}
	return u, nil
}

func (s *Service) resolvePair(ctx context.Context, a, b string) (*db.User, *db.User, error) {
	ua, err := s.resolve(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	ub, err := s.resolve(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return ua, ub, nil
}

func displayName(edge *db.Friend, friend *db.User) string {
	if edge.Name != nil {
		return *edge.Name
	}
	return friend.DisplayName()
}

func toViews(edges []db.Friend) []View {
	views := make([]View, 0, len(edges))
	for i := range edges {
		e := &edges[i]
		views = append(views, View{
			Username:          e.FriendUser.Username,
			Name:              displayName(e, &e.FriendUser),
			Deleted:           e.Deleted,
			Sent:              e.Sent,
			Received:          e.Received,
			LastMessageIDSent: e.LastSentAlertID,
			LastMessageRead:   e.LastSentMessageRead,
		})
	}
	return views
}
