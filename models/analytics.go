package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalyticsEvent is a single tracked user action (page view, claim filed, upload).
type AnalyticsEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventType string         `gorm:"size:50;index;not null" json:"event_type"`
	EventName string         `gorm:"size:100" json:"event_name"`
	UserID    *uint          `gorm:"index" json:"user_id"`
	Metadata  datatypes.JSON `json:"metadata"`
	IPAddress string         `gorm:"size:45" json:"ip_address"`
	UserAgent string         `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// AIUsageLog records one call to the AI advisory service and its estimated cost.
type AIUsageLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Feature      string    `gorm:"size:100;index;not null" json:"feature"`
	UserID       *uint     `gorm:"index" json:"user_id"`
	TokensUsed   int64     `json:"tokens_used"`
	CostEstimate float64   `json:"cost_estimate"`
	Success      bool      `json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}
