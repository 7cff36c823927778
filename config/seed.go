package config

import (
	"errors"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/models"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo123"
)

// SeedSampleData creates a demo customer, an agent and a handful of policies.
// Rows that already exist are left alone, so it is safe to run on every boot.
func SeedSampleData(conn *gorm.DB) error {
	var agent models.Agent
	err := conn.Where("email = ?", "max.mueller@swissaxa.de").First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		agent = models.Agent{Name: "Max Müller", Email: "max.mueller@swissaxa.de", Phone: "+49 221 123456"}
		if err := conn.Create(&agent).Error; err != nil {
			return err
		}
		log.Printf("created sample agent: %s", agent.Name)
	} else if err != nil {
		return err
	}

	var user models.User
	err = conn.Where("email = ?", demoEmail).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, herr := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
		if herr != nil {
			return herr
		}
		user = models.User{
			Email:                 demoEmail,
			PasswordHash:          string(hash),
			FirstName:             "Max",
			LastName:              "Mustermann",
			Phone:                 "+49 221 1234567",
			Address:               "Musterstraße 123, 50667 Köln, NRW",
			CorrespondenceAddress: "Musterstraße 123, 50667 Köln, NRW",
			BankAccount:           "DE89 3704 0044 0532 0130 00",
			AgentID:               &agent.ID,
		}
		if err := conn.Create(&user).Error; err != nil {
			return err
		}
		log.Printf("created demo user: %s", user.Email)
	} else if err != nil {
		return err
	}

	var count int64
	if err := conn.Model(&models.Policy{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		today := time.Now().Truncate(24 * time.Hour)
		policies := []models.Policy{
			{UserID: user.ID, PolicyNumber: "SAX-2024-001", PolicyType: "Comprehensive Auto Insurance", CoverageAmount: 50000, Premium: 1200, ExpirationDate: today.AddDate(0, 0, 45), Status: models.PolicyStatusActive},
			{UserID: user.ID, PolicyNumber: "SAX-2024-002", PolicyType: "Home Insurance", CoverageAmount: 250000, Premium: 850, ExpirationDate: today.AddDate(0, 0, 120), Status: models.PolicyStatusActive},
			{UserID: user.ID, PolicyNumber: "SAX-2023-005", PolicyType: "Health Insurance", CoverageAmount: 100000, Premium: 4500, ExpirationDate: today.AddDate(0, 0, -15), Status: models.PolicyStatusExpired},
		}
		if err := conn.Create(&policies).Error; err != nil {
			return err
		}
		log.Printf("created %d sample policies", len(policies))
	}

	if err := conn.Model(&models.ExternalPolicy{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		exp := time.Now().Truncate(24*time.Hour).AddDate(0, 0, 180)
		ext := models.ExternalPolicy{
			UserID:           user.ID,
			InsuranceCompany: "Allianz",
			PolicyNumber:     "ALL-2024-123",
			PolicyType:       "Life Insurance",
			ExpirationDate:   &exp,
			FilePath:         "uploads/policies/sample_policy.pdf",
		}
		if err := conn.Create(&ext).Error; err != nil {
			return err
		}
	}
	return nil
}
