package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/middleware"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

// InformationController manages the customer's personal data and language preference.
type InformationController struct {
	db         *gorm.DB
	cfg        config.AppConfig
	advisor    ai.Advisor
	translator *services.Translator
}

func NewInformationController(db *gorm.DB, cfg config.AppConfig, advisor ai.Advisor, translator *services.Translator) *InformationController {
	return &InformationController{db: db, cfg: cfg, advisor: advisor, translator: translator}
}

// Get returns the profile of the signed-in user.
func (c *InformationController) Get(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var user models.User
	if err := c.db.Preload("Agent").First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	utils.Success(ctx, user)
}

type informationRequest struct {
	FirstName             *string `json:"first_name"`
	LastName              *string `json:"last_name"`
	Phone                 *string `json:"phone"`
	Address               *string `json:"address"`
	CorrespondenceAddress *string `json:"correspondence_address"`
	BankAccount           *string `json:"bank_account"`
	CurrentPassword       string  `json:"current_password"`
}

func apply(dst *string, src *string, limit int) bool {
	if src == nil {
		return false
	}
	v := utils.SanitizeText(*src, limit)
	if v == *dst {
		return false
	}
	*dst = v
	return true
}

// Update changes profile fields. Address, correspondence address and bank account
// changes need the current password. AI findings come back as warnings.
func (c *InformationController) Update(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req informationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	var user models.User
	if err := c.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	apply(&user.FirstName, req.FirstName, 100)
	apply(&user.LastName, req.LastName, 100)
	apply(&user.Phone, req.Phone, 20)
	sensitive := apply(&user.Address, req.Address, 255)
	sensitive = apply(&user.CorrespondenceAddress, req.CorrespondenceAddress, 255) || sensitive
	sensitive = apply(&user.BankAccount, req.BankAccount, 50) || sensitive

	if sensitive && !utils.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "current password required to change address or bank details")
		return
	}

	validation := c.advisor.ValidateUserData(userContext(ctx, userID), ai.UserData{
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		Address:               user.Address,
		CorrespondenceAddress: user.CorrespondenceAddress,
		Phone:                 user.Phone,
		Email:                 user.Email,
	})

	err := c.db.Model(&user).Select("first_name", "last_name", "phone", "address", "correspondence_address", "bank_account").
		Updates(&user).Error
	if err != nil {
		utils.Logger.Error("update information failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to update information")
		return
	}

	warnings := validation.Inconsistencies
	if warnings == nil {
		warnings = []string{}
	}
	message := "Information updated successfully"
	if len(warnings) > 0 {
		message = "Information updated. Please review any warnings."
	}
	utils.Success(ctx, gin.H{
		"message":         message,
		"user":            user,
		"warnings":        warnings,
		"requires_reauth": validation.RequiresReauth,
	})
}

// SetLanguage stores the preferred portal language.
func (c *InformationController) SetLanguage(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	code := strings.ToLower(strings.TrimSpace(ctx.Param("code")))
	if !c.translator.Supported(code) {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid language code")
		return
	}
	if err := c.db.Model(&models.User{}).Where("id = ?", userID).Update("language", code).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to update language")
		return
	}
	utils.Success(ctx, gin.H{"language": code})
}

// Labels returns navigation labels for the negotiated language.
func (c *InformationController) Labels(ctx *gin.Context) {
	lang := ctx.GetString(middleware.ContextLanguageKey)
	if lang == "" {
		lang = c.cfg.DefaultLanguage
	}
	utils.Success(ctx, gin.H{
		"language":  lang,
		"languages": c.translator.Languages(),
		"labels":    c.translator.Labels(lang),
	})
}
