package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RolePatient  = "patient"
	RoleProvider = "provider"
)

type User struct {
	gorm.Model
	FullName     string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email        string `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Phone        string `gorm:"column:phone;size:20" json:"phone"`
	// Roles is a comma separated subset of {patient, provider}. A user may
	// hold both, e.g. a provider who also books care for themselves.
	Roles  string `gorm:"column:roles;size:50;not null" json:"roles"`
	Status string `gorm:"column:status;size:50;not null;default:active" json:"status"`

	Credits []Credit `gorm:"foreignKey:UserID" json:"credits,omitempty"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range strings.Split(u.Roles, ",") {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
