package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/utils"
)

// MobileController serves app-only views. The other mobile routes reuse the web handlers.
type MobileController struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMobileController(db *gorm.DB) *MobileController {
	return &MobileController{db: db, now: time.Now}
}

// Dashboard returns the counters shown on the app's home screen.
func (m *MobileController) Dashboard(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var policies, activeClaims, documents, upcoming int64
	steps := []*gorm.DB{
		m.db.Model(&models.Policy{}).Where("user_id = ?", userID).Count(&policies),
		m.db.Model(&models.Claim{}).Where("user_id = ? AND status = ?", userID, models.ClaimStatusSubmitted).Count(&activeClaims),
		m.db.Model(&models.Document{}).Where("user_id = ?", userID).Count(&documents),
		m.db.Model(&models.Appointment{}).
			Where("user_id = ? AND status = ? AND date_time >= ?", userID, models.AppointmentStatusScheduled, m.now()).
			Count(&upcoming),
	}
	for _, s := range steps {
		if s.Error != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50099, "failed to load dashboard")
			return
		}
	}

	utils.Success(ctx, gin.H{
		"total_policies":        policies,
		"active_claims":         activeClaims,
		"total_documents":       documents,
		"upcoming_appointments": upcoming,
	})
}
