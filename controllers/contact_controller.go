package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/metrics"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

// ContactController forwards customer messages to their agent or the service desk.
// Recipients are never taken from the request, only resolved from an agent id.
type ContactController struct {
	db     *gorm.DB
	cfg    config.AppConfig
	mailer services.Mailer
}

func NewContactController(db *gorm.DB, cfg config.AppConfig, mailer services.Mailer) *ContactController {
	return &ContactController{db: db, cfg: cfg, mailer: mailer}
}

type contactRequest struct {
	AgentID *uint  `json:"agent_id"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (c *ContactController) Send(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req contactRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid request payload")
		return
	}
	subject := utils.SanitizeText(req.Subject, 200)
	message := utils.SanitizeText(req.Message, 5000)
	if subject == "" || message == "" {
		utils.Error(ctx, http.StatusBadRequest, 40061, "subject and message are required")
		return
	}

	var user models.User
	if err := c.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40460, "user not found")
		return
	}

	to := c.cfg.SMTPFrom
	recipient := "service desk"
	if req.AgentID != nil {
		var agent models.Agent
		if err := c.db.First(&agent, *req.AgentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(ctx, http.StatusNotFound, 40461, "agent not found")
				return
			}
			utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load agent")
			return
		}
		to, recipient = agent.Email, agent.Name
	}

	if c.mailer == nil || !c.mailer.Enabled() || to == "" {
		utils.Respond(ctx, http.StatusOK, 0, "Email service is not configured. Please contact us by phone.", gin.H{"sent": false})
		return
	}

	senderName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if senderName == "" {
		senderName = user.Email
	}
	if err := c.mailer.Send(ctx.Request.Context(), services.ContactMessage(to, senderName, user.Email, subject, message)); err != nil {
		metrics.RecordDegraded("mail")
		utils.Logger.Warn("contact email failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Respond(ctx, http.StatusOK, 0, "Your message could not be delivered right now. Please try again later.", gin.H{"sent": false})
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "Message sent to "+recipient, gin.H{"sent": true})
}
