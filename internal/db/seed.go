package db

import (
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the database and populates it with demo users, devices and friendships.
//
// Behavior:
//  1. Clears existing data in `device_tokens`, `friends` and `users`.
//  2. Creates 6 users (user1..user6, password "password") with two device tokens each.
//  3. Links every user with its neighbours: user N adds user N+1 and user N+2 as live friends,
//     and every third user names one of them.
//
// Compatible with MySQL, Postgres and SQLite.
func SeedTestData(db *gorm.DB) error {
	if err := clearAll(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	const total = 6
	users := make([]User, 0, total)
	for i := 1; i <= total; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		users = append(users, User{
			Username:     fmt.Sprintf("user%d", i),
			FirstName:    "User",
			LastName:     fmt.Sprintf("%d", i),
			Email:        &email,
			PasswordHash: string(hash),
		})
	}
	if err := db.Create(&users).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	log.Printf("Seeded %d users.", len(users))

	for _, u := range users {
		tokens := []DeviceToken{
			{UserID: u.ID, Token: fmt.Sprintf("%s-phone", u.Username)},
			{UserID: u.ID, Token: fmt.Sprintf("%s-tablet", u.Username)},
		}
		if err := db.Create(&tokens).Error; err != nil {
			return fmt.Errorf("failed to seed device tokens: %w", err)
		}
	}

	for i, owner := range users {
		for step := 1; step <= 2; step++ {
			friend := users[(i+step)%total]
			edge := Friend{OwnerID: owner.ID, FriendID: friend.ID}
			if i%3 == 0 && step == 1 {
				name := fmt.Sprintf("Best friend %s", friend.Username)
				edge.Name = &name
			}
			if err := db.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
				return fmt.Errorf("failed to seed friend: %w", err)
			}
		}
	}

	return nil
}

// SeedMinimalTestData inserts a small deterministic dataset.
//
//   - alice, bob, carol (ids 1..3)
//   - alice -> bob live, bob -> alice live, carol -> alice deleted
//   - bob has two devices, alice one, carol none
func SeedMinimalTestData(db *gorm.DB) error {
	if err := clearAll(db); err != nil {
		return err
	}

	users := []User{
		{ID: 1, Username: "alice", FirstName: "Alice", LastName: "Liddell", PasswordHash: "x"},
		{ID: 2, Username: "bob", FirstName: "Bob", LastName: "Builder", PasswordHash: "x"},
		{ID: 3, Username: "carol", FirstName: "Carol", LastName: "Danvers", PasswordHash: "x"},
	}
	if err := db.Create(&users).Error; err != nil {
		return err
	}

	edges := []Friend{
		{OwnerID: 1, FriendID: 2},
		{OwnerID: 2, FriendID: 1},
		{OwnerID: 3, FriendID: 1, Deleted: true},
	}
	if err := db.Omit(clause.Associations).Create(&edges).Error; err != nil {
		return err
	}

	tokens := []DeviceToken{
		{UserID: 1, Token: "alice-phone"},
		{UserID: 2, Token: "bob-phone"},
		{UserID: 2, Token: "bob-tablet"},
	}
	return db.Create(&tokens).Error
}

func clearAll(db *gorm.DB) error {
	for _, table := range []string{"device_tokens", "friends", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
