// Package testutil provides database fixtures for service tests. Tests run
// against an in-memory SQLite database pinned to a single connection so GORM
// transactions serialize the same way a Postgres deployment serializes
// contending writers.
package testutil

import (
	"testing"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{},
		&models.Credit{},
		&models.Booking{},
		&models.BookingStatusHistory{},
		&models.Device{},
		&models.NotificationHistory{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return db
}

func CreateUser(t *testing.T, db *gorm.DB, email, roles string) *models.User {
	t.Helper()

	user := models.User{
		FullName:     "Test User",
		Email:        email,
		PasswordHash: "x",
		Roles:        roles,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	return &user
}

func GrantCredit(t *testing.T, db *gorm.DB, ownerID uint, expiresAt time.Time) *models.Credit {
	t.Helper()

	credit := models.Credit{
		Type:      "session",
		ExpiresAt: expiresAt,
		UserID:    ownerID,
	}
	if err := db.Create(&credit).Error; err != nil {
		t.Fatalf("creating credit for user %d: %v", ownerID, err)
	}
	return &credit
}
