package models

import (
	"time"

	"gorm.io/gorm"
)

// Credit is a consumable entitlement owned by a user. A credit is consumed
// the moment BookingID is set; the unique index keeps a booking from holding
// two credits and the NULL check in the ledger keeps a credit from backing
// two bookings.
type Credit struct {
	gorm.Model
	Type      string    `gorm:"column:type;size:50;not null" json:"type"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
	UserID    uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	BookingID *uint     `gorm:"column:booking_id;uniqueIndex" json:"booking_id,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (c *Credit) Consumed() bool {
	return c.BookingID != nil
}

func (c *Credit) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
