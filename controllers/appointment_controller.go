package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/metrics"
	"github.com/swissaxa/portal/middleware"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

const (
	appointmentLayout = "2006-01-02T15:04"
	agentsCacheKey    = "portal:agents"
	agentsCacheTTL    = 10 * time.Minute
)

type AppointmentController struct {
	db       *gorm.DB
	advisor  ai.Advisor
	notifier services.NotificationStore
	mailer   services.Mailer
	cache    services.Cache
}

func NewAppointmentController(db *gorm.DB, advisor ai.Advisor, notifier services.NotificationStore, mailer services.Mailer, cache services.Cache) *AppointmentController {
	return &AppointmentController{db: db, advisor: advisor, notifier: notifier, mailer: mailer, cache: cache}
}

// Agents lists the bookable agents.
func (a *AppointmentController) Agents(ctx *gin.Context) {
	var agents []models.Agent
	if a.cache != nil && a.cache.GetJSON(agentsCacheKey, &agents) {
		utils.Success(ctx, agents)
		return
	}
	if err := a.db.Order("name ASC").Find(&agents).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to retrieve agents")
		return
	}
	if a.cache != nil {
		a.cache.SetJSON(agentsCacheKey, agents, agentsCacheTTL)
	}
	utils.Success(ctx, agents)
}

// List returns the user's appointments in date order.
func (a *AppointmentController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var appts []models.Appointment
	if err := a.db.Preload("Agent").Where("user_id = ?", userID).Order("date_time ASC").Find(&appts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to retrieve appointments")
		return
	}
	utils.Success(ctx, appts)
}

type appointmentRequest struct {
	AppointmentType string `json:"appointment_type"`
	AgentID         *uint  `json:"agent_id"`
	DateTime        string `json:"date_time"`
	Purpose         string `json:"purpose"`
}

// Create books an appointment and confirms it in-app and by email.
func (a *AppointmentController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req appointmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	when, err := time.ParseInLocation(appointmentLayout, strings.TrimSpace(req.DateTime), time.Local)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40051, "date_time must look like 2006-01-02T15:04")
		return
	}
	apptType := strings.TrimSpace(req.AppointmentType)
	if apptType == "" {
		apptType = models.AppointmentTypeServiceDesk
	}
	if apptType != models.AppointmentTypeServiceDesk && apptType != models.AppointmentTypeAgent {
		utils.Error(ctx, http.StatusBadRequest, 40052, "appointment_type must be service_desk or agent")
		return
	}

	var agent *models.Agent
	if req.AgentID != nil {
		var found models.Agent
		if err := a.db.First(&found, *req.AgentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(ctx, http.StatusNotFound, 40450, "agent not found")
				return
			}
			utils.Error(ctx, http.StatusInternalServerError, 50052, "failed to load agent")
			return
		}
		agent = &found
	}

	appt := models.Appointment{
		UserID:          userID,
		AgentID:         req.AgentID,
		AppointmentType: apptType,
		DateTime:        when,
		Purpose:         utils.SanitizeText(req.Purpose, 2000),
		Status:          models.AppointmentStatusScheduled,
	}
	if err := a.db.Create(&appt).Error; err != nil {
		utils.Logger.Error("create appointment failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50053, "failed to book appointment")
		return
	}
	appt.Agent = agent

	agentName := ""
	if agent != nil {
		agentName = agent.Name
	}
	a.confirm(ctx, userID, when, agentName)

	utils.Created(ctx, "Appointment scheduled successfully", appt)
}

func (a *AppointmentController) confirm(ctx *gin.Context, userID uint, when time.Time, agentName string) {
	rctx := ctx.Request.Context()
	if a.notifier != nil {
		if _, err := a.notifier.Add(rctx, userID, services.AppointmentConfirmedNotification(when, agentName)); err != nil {
			metrics.RecordDegraded("notifications")
			utils.Logger.Warn("appointment notification failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	if a.mailer == nil || !a.mailer.Enabled() {
		return
	}
	to := ctx.GetString(middleware.ContextEmailKey)
	if to == "" {
		var user models.User
		if err := a.db.Select("id", "email").First(&user, userID).Error; err != nil {
			return
		}
		to = user.Email
	}
	if err := a.mailer.Send(rctx, services.AppointmentConfirmationMessage(to, when, agentName)); err != nil {
		metrics.RecordDegraded("mail")
		utils.Logger.Warn("appointment confirmation email failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Suggestions proposes time slots for an appointment type.
func (a *AppointmentController) Suggestions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		AppointmentType string `json:"appointment_type"`
	}
	_ = ctx.ShouldBindJSON(&req)
	apptType := strings.TrimSpace(req.AppointmentType)
	if apptType == "" {
		apptType = models.AppointmentTypeServiceDesk
	}
	suggestions := a.advisor.SuggestAppointmentTimes(userContext(ctx, userID), apptType)
	if suggestions.Times == nil {
		suggestions.Times = []string{}
	}
	utils.Success(ctx, suggestions)
}
