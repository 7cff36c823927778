package models

import "time"

const (
	ClaimStatusSubmitted = "submitted"
	ClaimStatusInReview  = "in_review"
	ClaimStatusResolved  = "resolved"
	ClaimStatusRejected  = "rejected"
)

const (
	MediaTypePhoto = "photo"
	MediaTypeVideo = "video"
)

// Claim is a policyholder's loss report. Claims are never deleted, only moved through statuses.
type Claim struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	UserID      uint         `gorm:"index;not null" json:"user_id"`
	PolicyID    *uint        `gorm:"index" json:"policy_id"`
	ClaimNumber string       `gorm:"size:50;uniqueIndex;not null" json:"claim_number"`
	Description string       `gorm:"type:text" json:"description"`
	DamageType  string       `gorm:"size:100" json:"damage_type"`
	Latitude    *float64     `json:"latitude"`
	Longitude   *float64     `json:"longitude"`
	Address     string       `gorm:"size:255" json:"address"`
	Status      string       `gorm:"size:20;default:submitted;index" json:"status"`
	Priority    string       `gorm:"size:20;default:normal" json:"priority"`
	SubmittedAt time.Time    `gorm:"autoCreateTime" json:"submitted_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Media       []ClaimMedia `gorm:"foreignKey:ClaimID" json:"media,omitempty"`
}

// ClaimMedia is one photo or video attached to a claim as evidence.
type ClaimMedia struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClaimID    uint      `gorm:"index;not null" json:"claim_id"`
	Filename   string    `gorm:"size:255;not null" json:"filename"`
	FilePath   string    `gorm:"size:255;not null" json:"-"`
	MediaType  string    `gorm:"size:20" json:"media_type"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}
