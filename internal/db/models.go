package db

import (
	"strings"
	"time"
)

// User table
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:150;not null"`
	FirstName    string    `gorm:"size:150;not null"`
	LastName     string    `gorm:"size:150;not null"`
	Email        *string   `gorm:"uniqueIndex;size:254"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// DisplayName is the user's own "first last" name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Friend is one directed relationship edge owner -> friend.
//
// Composite PK: (OwnerID, FriendID)
//   - At most one row per ordered pair; (FriendID, OwnerID) is an independent row.
//
// Indexes:
//   - idx_owner_last_alert(owner_id, last_sent_alert_id)
//     Read receipts look edges up by sender and alert id.
//
// Fields:
//   - Name: owner-private label for the friend, nil when never set.
//   - Deleted: soft-delete flag. A deleted edge keeps its counters but is not live
//     and grants no send permission.
//   - Sent/Received: alerts sent/received along this exact direction.
//   - LastSentAlertID/LastSentMessageRead: the latest alert sent owner -> friend
//     and whether it has been acknowledged.
type Friend struct {
	OwnerID             uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_owner_last_alert,priority:1"`
	FriendID            uint64    `gorm:"primaryKey;autoIncrement:false"`
	Name                *string   `gorm:"size:150"`
	Deleted             bool      `gorm:"not null"`
	Sent                int64     `gorm:"not null"`
	Received            int64     `gorm:"not null"`
	LastSentAlertID     *string   `gorm:"size:100;index:idx_owner_last_alert,priority:2"`
	LastSentMessageRead bool      `gorm:"not null"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`

	FriendUser User `gorm:"foreignKey:FriendID;references:ID"`
}

// Live reports whether the edge currently grants its friend send permission.
func (f Friend) Live() bool { return !f.Deleted }

// DeviceToken is a push token registered for a user's device.
type DeviceToken struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_user_token,priority:1"`
	Token     string    `gorm:"size:512;not null;uniqueIndex:idx_user_token,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Models lists every table managed by AutoMigrate, in dependency order.
func Models() []any {
	return []any{&User{}, &Friend{}, &DeviceToken{}}
}
