package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/attention/internal/db"
	"github.com/oggyb/attention/internal/utils/pagination"
)

// ErrEdgeNotFound is returned when no (live, where requested) edge exists for a pair.
var ErrEdgeNotFound = errors.New("friend edge not found")

// EdgeFields names the subset of edge columns an upsert may write.
// Nil fields are left untouched; counters and alert fields are never part of it.
type EdgeFields struct {
	Name    *string
	Deleted *bool
}

func (f EdgeFields) assignments() map[string]any {
	m := map[string]any{}
	if f.Name != nil {
		m["name"] = *f.Name
	}
	if f.Deleted != nil {
		m["deleted"] = *f.Deleted
	}
	return m
}

func (f EdgeFields) applyTo(edge *db.Friend) {
	if f.Name != nil {
		name := *f.Name
		edge.Name = &name
	}
	if f.Deleted != nil {
		edge.Deleted = *f.Deleted
	}
}

// Lock conflicts are retried this many times in total, with a linear backoff.
const (
	maxTxAttempts = 3
	retryBackoff  = 20 * time.Millisecond
)

// FriendRepository is the directed edge store.
// Every mutation is a single-row read-modify-write under SELECT ... FOR UPDATE,
// so concurrent sends, renames and removals on the same pair never lose updates.
// Outermost transactions aborted by a deadlock or serialization failure are
// replayed from the start.
type FriendRepository struct {
	db   *gorm.DB
	inTx bool
}

// NewFriendRepository creates a new repository bound to the given DB connection.
func NewFriendRepository(database *gorm.DB) *FriendRepository {
	return &FriendRepository{db: database}
}

// Transaction runs fn with a repository bound to one database transaction.
// fn's calls commit together or not at all. fn may run more than once.
func (r *FriendRepository) Transaction(ctx context.Context, fn func(tx *FriendRepository) error) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		return fn(&FriendRepository{db: tx, inTx: true})
	})
}

// LockPair locks both directed edges between a and b, lower owner id first,
// and returns them as (a -> b, b -> a). A missing edge comes back nil.
// Callers locking a pair through LockPair never wait on each other in a cycle.
func (r *FriendRepository) LockPair(ctx context.Context, a, b uint64) (*db.Friend, *db.Friend, error) {
	var ab, ba *db.Friend
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		first, err := lockOptional(tx, lo, hi)
		if err != nil {
			return err
		}
		second, err := lockOptional(tx, hi, lo)
		if err != nil {
			return err
		}
		if lo == a {
			ab, ba = first, second
		} else {
			ab, ba = second, first
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ab, ba, nil
}

// Get returns the edge owner -> friend regardless of its deleted flag.
func (r *FriendRepository) Get(ctx context.Context, ownerID, friendID uint64) (*db.Friend, error) {
	var edge db.Friend
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND friend_id = ?", ownerID, friendID).
		Take(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEdgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// LockLive locks and returns the edge owner -> friend if it exists and is live.
// Missing and deleted edges both yield ErrEdgeNotFound.
func (r *FriendRepository) LockLive(ctx context.Context, ownerID, friendID uint64) (*db.Friend, error) {
	var edge *db.Friend
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		edge, err = lockRow(tx, ownerID, friendID)
		if err != nil {
			return err
		}
		if !edge.Live() {
			return ErrEdgeNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// Upsert creates the edge owner -> friend if absent, else updates only the fields in set.
//
// Behavior:
//   - Absent row: created from onCreate, then set merged over it; created=true.
//   - Existing row: only set's non-nil fields are written; counters, alert id and
//     read flag are preserved.
//   - A concurrent creation of the same pair is retried once as an update.
//   - Outside a transaction, a deadlock or serialization failure is retried.
//
// Example:
//
//	repo.Upsert(ctx, 1, 2, EdgeFields{Name: &name}, EdgeFields{Deleted: &yes}) // rename, hidden if new
func (r *FriendRepository) Upsert(
	ctx context.Context,
	ownerID, friendID uint64,
	set, onCreate EdgeFields,
) (*db.Friend, bool, error) {
	edge, created, err := r.upsertOnce(ctx, ownerID, friendID, set, onCreate)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost the insert race; the row exists now
		return r.upsertOnce(ctx, ownerID, friendID, set, onCreate)
	}
	return edge, created, err
}

func (r *FriendRepository) upsertOnce(
	ctx context.Context,
	ownerID, friendID uint64,
	set, onCreate EdgeFields,
) (*db.Friend, bool, error) {
	var (
		edge    *db.Friend
		created bool
	)
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		existing, err := lockRow(tx, ownerID, friendID)
		switch {
		case errors.Is(err, ErrEdgeNotFound):
			edge = &db.Friend{OwnerID: ownerID, FriendID: friendID}
			onCreate.applyTo(edge)
			set.applyTo(edge)
			created = true
			return tx.Omit(clause.Associations).Create(edge).Error
		case err != nil:
			return err
		}

		edge = existing
		updates := set.assignments()
		if len(updates) == 0 {
			return nil
		}
		if err := pairQuery(tx, ownerID, friendID).Updates(updates).Error; err != nil {
			return err
		}
		set.applyTo(edge)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return edge, created, nil
}

// SetDeleted flips the soft-delete flag of an existing edge.
func (r *FriendRepository) SetDeleted(ctx context.Context, ownerID, friendID uint64, deleted bool) error {
	return r.mutate(ctx, ownerID, friendID, map[string]any{"deleted": deleted})
}

// IncrementSent records an alert sent owner -> friend: sent+1, last alert id set, read flag reset.
func (r *FriendRepository) IncrementSent(ctx context.Context, ownerID, friendID uint64, alertID string) error {
	return r.mutate(ctx, ownerID, friendID, map[string]any{
		"sent":                   gorm.Expr("sent + ?", 1),
		"last_sent_alert_id":     alertID,
		"last_sent_message_read": false,
	})
}

// IncrementReceived records an alert received by owner from friend.
func (r *FriendRepository) IncrementReceived(ctx context.Context, ownerID, friendID uint64) error {
	return r.mutate(ctx, ownerID, friendID, map[string]any{
		"received": gorm.Expr("received + ?", 1),
	})
}

// MarkRead flags the last alert sent owner -> friend as read.
func (r *FriendRepository) MarkRead(ctx context.Context, ownerID, friendID uint64) error {
	return r.mutate(ctx, ownerID, friendID, map[string]any{"last_sent_message_read": true})
}

// MarkReadByAlert flags as read every edge of owner whose last sent alert is alertID.
// Matching is by alert id only; more than one row means an id collision.
func (r *FriendRepository) MarkReadByAlert(ctx context.Context, ownerID uint64, alertID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Friend{}).
		Where("owner_id = ? AND last_sent_alert_id = ?", ownerID, alertID).
		Update("last_sent_message_read", true)
	return res.RowsAffected, res.Error
}

// ListByOwner returns every edge of owner, deleted ones included, with the friend preloaded.
func (r *FriendRepository) ListByOwner(ctx context.Context, ownerID uint64) ([]db.Friend, error) {
	var edges []db.Friend
	err := r.db.WithContext(ctx).
		Preload("FriendUser").
		Where("owner_id = ?", ownerID).
		Order("friend_id ASC").
		Find(&edges).Error
	return edges, err
}

// ListByOwnerPage is ListByOwner keyset-paginated on friend id.
// It returns at most limit edges and the token of the next page, nil on the last page.
func (r *FriendRepository) ListByOwnerPage(
	ctx context.Context,
	ownerID uint64,
	paginationToken *string,
	limit int,
) ([]db.Friend, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	var edges []db.Friend
	err = r.db.WithContext(ctx).
		Preload("FriendUser").
		Where("owner_id = ? AND friend_id > ?", ownerID, cursor.AfterFriendID).
		Order("friend_id ASC").
		Limit(limit + 1).
		Find(&edges).Error
	if err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(edges) > limit {
		edges = edges[:limit]
		token, err := pagination.Encode(pagination.Cursor{AfterFriendID: edges[limit-1].FriendID})
		if err != nil {
			return nil, nil, err
		}
		nextToken = &token
	}
	return edges, nextToken, nil
}

func (r *FriendRepository) mutate(ctx context.Context, ownerID, friendID uint64, updates map[string]any) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockRow(tx, ownerID, friendID); err != nil {
			return err
		}
		return pairQuery(tx, ownerID, friendID).Updates(updates).Error
	})
}

// transaction runs fn in a transaction, or a savepoint when r is already
// bound to one. Only the outermost level retries.
func (r *FriendRepository) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	run := func() error { return r.db.WithContext(ctx).Transaction(fn) }
	if r.inTx {
		return run()
	}
	return retryOnConflict(ctx, run)
}

func retryOnConflict(ctx context.Context, run func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = run()
		if err == nil || attempt == maxTxAttempts || !IsLockConflict(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}

// IsLockConflict reports whether err is a deadlock, lock wait timeout or
// serialization failure raised by MySQL or Postgres.
func IsLockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// deadlock_detected, serialization_failure
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

// lockRow selects the edge FOR UPDATE. SQLite drops the locking clause and
// relies on its database-level write lock instead.
func lockRow(tx *gorm.DB, ownerID, friendID uint64) (*db.Friend, error) {
	var edge db.Friend
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND friend_id = ?", ownerID, friendID).
		Take(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEdgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func lockOptional(tx *gorm.DB, ownerID, friendID uint64) (*db.Friend, error) {
	edge, err := lockRow(tx, ownerID, friendID)
	if errors.Is(err, ErrEdgeNotFound) {
		return nil, nil
	}
	return edge, err
}

func pairQuery(tx *gorm.DB, ownerID, friendID uint64) *gorm.DB {
	return tx.Model(&db.Friend{}).Where("owner_id = ? AND friend_id = ?", ownerID, friendID)
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
