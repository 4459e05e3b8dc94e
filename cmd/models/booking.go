package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusCanceled    = "canceled"
	StatusRescheduled = "rescheduled"
	StatusCompleted   = "completed"
)

// KnownStatus reports whether s is one of the booking lifecycle statuses.
func KnownStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCanceled, StatusRescheduled, StatusCompleted:
		return true
	}
	return false
}

// Booking is a scheduled appointment between a provider and an optional
// patient. PatientID is NULL for anonymous bookings. Version backs the
// optimistic lock on status transitions.
type Booking struct {
	gorm.Model
	Reference  string    `gorm:"column:reference;size:36;not null;uniqueIndex" json:"reference"`
	Time       time.Time `gorm:"column:time;not null" json:"time"`
	Status     string    `gorm:"column:status;size:20;not null;default:'pending';index" json:"status"`
	PatientID  *uint     `gorm:"column:patient_id;index" json:"patient_id,omitempty"`
	ProviderID uint      `gorm:"column:provider_id;not null;index" json:"provider_id"`
	CreditID   uint      `gorm:"column:credit_id;not null" json:"credit_id"`
	Version    uint      `gorm:"column:version;not null;default:0" json:"-"`

	Patient  *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Provider *User `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}

func (b *Booking) Anonymous() bool {
	return b.PatientID == nil
}

// BookingStatusHistory is the append-only audit trail of a booking's status.
// One row per transition, including the initial pending row written when the
// booking is created. Rows are never updated or deleted.
type BookingStatusHistory struct {
	gorm.Model
	BookingID uint      `gorm:"column:booking_id;not null;index:idx_booking_history,priority:1" json:"booking_id"`
	Status    string    `gorm:"column:status;size:20;not null" json:"status"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_booking_history,priority:2" json:"timestamp"`
}

func (BookingStatusHistory) TableName() string {
	return "booking_status_history"
}
