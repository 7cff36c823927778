package models

import "time"

const (
	AppointmentTypeServiceDesk = "service_desk"
	AppointmentTypeAgent       = "agent"

	AppointmentStatusScheduled = "scheduled"
)

// Appointment is a booked meeting with the service desk or an agent.
type Appointment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	AgentID         *uint     `gorm:"index" json:"agent_id"`
	AppointmentType string    `gorm:"size:50" json:"appointment_type"`
	DateTime        time.Time `gorm:"not null" json:"date_time"`
	Purpose         string    `gorm:"type:text" json:"purpose"`
	Status          string    `gorm:"size:20;default:scheduled" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	Agent           *Agent    `json:"agent,omitempty"`
}
