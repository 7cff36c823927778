package models

import "time"

const (
	PolicyStatusActive  = "active"
	PolicyStatusExpired = "expired"
)

// Policy is a product issued by SwissAxa to a customer.
type Policy struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	PolicyNumber   string    `gorm:"size:50;uniqueIndex;not null" json:"policy_number"`
	PolicyType     string    `gorm:"size:100" json:"policy_type"`
	CoverageAmount float64   `json:"coverage_amount"`
	Premium        float64   `json:"premium"`
	ExpirationDate time.Time `gorm:"type:date;not null" json:"expiration_date"`
	Status         string    `gorm:"size:20;default:active" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// DaysUntilExpiry counts whole calendar days from now's date to the expiration date.
// Negative values mean the policy already expired.
func (p Policy) DaysUntilExpiry(now time.Time) int {
	if p.ExpirationDate.IsZero() {
		return 999
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	exp := time.Date(p.ExpirationDate.Year(), p.ExpirationDate.Month(), p.ExpirationDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(today).Hours() / 24)
}

// ExternalPolicy is a policy held with another insurer, uploaded for comparison.
type ExternalPolicy struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"index;not null" json:"user_id"`
	InsuranceCompany string     `gorm:"size:100;not null" json:"insurance_company"`
	PolicyNumber     string     `gorm:"size:50" json:"policy_number"`
	PolicyType       string     `gorm:"size:100" json:"policy_type"`
	ExpirationDate   *time.Time `gorm:"type:date" json:"expiration_date"`
	FilePath         string     `gorm:"size:255" json:"-"`
	UploadedAt       time.Time  `gorm:"autoCreateTime" json:"uploaded_at"`
}

// PolicyChangeRequest asks for an upgrade, change or cancellation of a policy.
type PolicyChangeRequest struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	PolicyID    *uint     `gorm:"index" json:"policy_id"`
	RequestType string    `gorm:"size:50" json:"request_type"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"size:20;default:pending" json:"status"`
	SubmittedAt time.Time `gorm:"autoCreateTime" json:"submitted_at"`
}
