package models

import "time"

// Document is a customer file kept in the portal's document store.
type Document struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	FilePath     string    `gorm:"size:255;not null" json:"-"`
	DocumentType string    `gorm:"size:100" json:"document_type"`
	UploadedAt   time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}
