package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/storage"
	"github.com/swissaxa/portal/utils"
)

// ClaimController exposes claims intake and claim history.
type ClaimController struct {
	intake  *services.ClaimIntake
	advisor ai.Advisor
}

func NewClaimController(intake *services.ClaimIntake, advisor ai.Advisor) *ClaimController {
	return &ClaimController{intake: intake, advisor: advisor}
}

// List returns the user's claims with their media.
func (c *ClaimController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	claims, err := c.intake.List(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to load claims")
		return
	}
	if claims == nil {
		claims = []models.Claim{}
	}
	utils.Success(ctx, claims)
}

// Create is the claims intake endpoint. Evidence goes in the "media" file field.
func (c *ClaimController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	form, err := ctx.MultipartForm()
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "please upload at least one photo or video as evidence")
		return
	}

	policyID, err := optionalUint(ctx.PostForm("policy_id"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid policy_id")
		return
	}
	lat, err := optionalFloat(ctx.PostForm("latitude"))
	if err != nil || (lat != nil && (*lat < -90 || *lat > 90)) {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid latitude")
		return
	}
	lng, err := optionalFloat(ctx.PostForm("longitude"))
	if err != nil || (lng != nil && (*lng < -180 || *lng > 180)) {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid longitude")
		return
	}

	res, err := c.intake.Submit(ctx.Request.Context(), services.Submission{
		UserID:      userID,
		PolicyID:    policyID,
		Description: utils.SanitizeText(ctx.PostForm("description"), 5000),
		DamageType:  utils.SanitizeText(ctx.PostForm("damage_type"), 100),
		Latitude:    lat,
		Longitude:   lng,
		Address:     utils.SanitizeText(ctx.PostForm("address"), 255),
		Files:       form.File["media"],
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNoEvidence):
		utils.Error(ctx, http.StatusBadRequest, 40020, "please upload at least one photo or video as evidence")
		return
	case errors.Is(err, services.ErrPolicyNotFound):
		utils.Error(ctx, http.StatusNotFound, 40421, "policy not found")
		return
	case errors.Is(err, storage.ErrTooLarge):
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file exceeds upload size limit")
		return
	case errors.Is(err, storage.ErrEmptyFilename):
		utils.Error(ctx, http.StatusBadRequest, 40024, "file name is not usable")
		return
	default:
		utils.Logger.Error("file claim failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to file claim")
		return
	}

	utils.Created(ctx, res.Message, gin.H{
		"claim":       res.Claim,
		"ai_enriched": res.Enriched,
		"damage_type": res.DamageType,
		"priority":    res.Priority,
	})
}

// Get returns one of the user's claims. Claims of other users are reported as not found.
func (c *ClaimController) Get(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid claim id")
		return
	}
	claim, err := c.intake.Get(ctx.Request.Context(), userID, id)
	if errors.Is(err, services.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40420, "claim not found")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to load claim")
		return
	}
	utils.Success(ctx, claim)
}

// Analyze runs damage triage on a description without filing anything.
func (c *ClaimController) Analyze(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		Description      string `json:"description"`
		ImageDescription string `json:"image_description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid request payload")
		return
	}
	analysis := c.advisor.AnalyzeClaimDamage(userContext(ctx, userID), ai.ClaimInput{
		Description:      utils.SanitizeText(req.Description, 5000),
		ImageDescription: utils.SanitizeText(req.ImageDescription, 2000),
	})
	utils.Success(ctx, analysis)
}
