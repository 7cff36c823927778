package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a policyholder with portal access. Passwords are stored as bcrypt hashes only.
type User struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	Email                 string         `gorm:"size:120;uniqueIndex;not null" json:"email"`
	PasswordHash          string         `gorm:"size:255" json:"-"`
	FirstName             string         `gorm:"size:100" json:"first_name"`
	LastName              string         `gorm:"size:100" json:"last_name"`
	Phone                 string         `gorm:"size:20" json:"phone"`
	Address               string         `gorm:"size:255" json:"address"`
	CorrespondenceAddress string         `gorm:"size:255" json:"correspondence_address"`
	BankAccount           string         `gorm:"size:50" json:"bank_account"`
	AgentID               *uint          `gorm:"index" json:"agent_id"`
	Language              string         `gorm:"size:8" json:"language"`
	Provider              string         `gorm:"size:32" json:"provider"`
	ProviderID            string         `gorm:"size:255;index" json:"-"`
	IsAdmin               bool           `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
	Agent                 *Agent         `json:"agent,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// BeforeSave keeps emails normalised so lookups by email are exact.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}
