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
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/storage"
	"github.com/swissaxa/portal/utils"
)

// PolicyController serves internal and external policies, comparisons and change requests.
type PolicyController struct {
	db      *gorm.DB
	advisor ai.Advisor
	store   storage.EvidenceStore
	now     func() time.Time
}

func NewPolicyController(db *gorm.DB, advisor ai.Advisor, store storage.EvidenceStore) *PolicyController {
	return &PolicyController{db: db, advisor: advisor, store: store, now: time.Now}
}

type policyView struct {
	models.Policy
	DaysUntilExpiry int `json:"days_until_expiry"`
}

func (p *PolicyController) policyViews(userID uint) ([]policyView, error) {
	var policies []models.Policy
	if err := p.db.Where("user_id = ?", userID).Order("expiration_date ASC").Find(&policies).Error; err != nil {
		return nil, err
	}
	now := p.now()
	out := make([]policyView, 0, len(policies))
	for _, pol := range policies {
		out = append(out, policyView{Policy: pol, DaysUntilExpiry: pol.DaysUntilExpiry(now)})
	}
	return out, nil
}

// List returns the user's SwissAxa policies with days until expiry, plus uploaded external policies.
func (p *PolicyController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	internal, err := p.policyViews(userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to load policies")
		return
	}
	var external []models.ExternalPolicy
	if err := p.db.Where("user_id = ?", userID).Order("uploaded_at DESC").Find(&external).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to load policies")
		return
	}
	utils.Success(ctx, gin.H{"swissaxa_policies": internal, "external_policies": external})
}

// ListInternal returns only SwissAxa policies; used by the mobile API.
func (p *PolicyController) ListInternal(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	internal, err := p.policyViews(userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to load policies")
		return
	}
	utils.Success(ctx, internal)
}

// UploadExternal stores a policy document from another insurer.
func (p *PolicyController) UploadExternal(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil || fh.Filename == "" {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file provided")
		return
	}

	var expiration *time.Time
	if s := strings.TrimSpace(ctx.PostForm("expiration_date")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40031, "expiration_date must be YYYY-MM-DD")
			return
		}
		expiration = &t
	}

	stored, err := p.store.Save(fh, storage.CategoryPolicies, userID)
	if err != nil {
		respondStorageError(ctx, err)
		return
	}

	company := utils.SanitizeText(ctx.PostForm("insurance_company"), 100)
	if company == "" {
		company = "Unknown"
	}
	policy := models.ExternalPolicy{
		UserID:           userID,
		InsuranceCompany: company,
		PolicyNumber:     utils.SanitizeText(ctx.PostForm("policy_number"), 50),
		PolicyType:       utils.SanitizeText(ctx.PostForm("policy_type"), 100),
		ExpirationDate:   expiration,
		FilePath:         stored.Path,
	}
	if err := p.db.Create(&policy).Error; err != nil {
		_ = p.store.Remove(stored.Path)
		utils.Logger.Error("save external policy failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save external policy")
		return
	}
	utils.Created(ctx, "External policy uploaded successfully", policy)
}

// Compare asks the advisor for SwissAxa products similar to an external policy.
// The policy is either sent inline or referenced by external_policy_id.
func (p *PolicyController) Compare(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		ExternalPolicyID *uint `json:"external_policy_id"`
		ExternalPolicy   struct {
			PolicyType       string `json:"policy_type"`
			Coverage         string `json:"coverage"`
			Premium          string `json:"premium"`
			InsuranceCompany string `json:"insurance_company"`
		} `json:"external_policy"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid request payload")
		return
	}

	in := ai.PolicyInput{
		PolicyType:       utils.SanitizeText(req.ExternalPolicy.PolicyType, 100),
		Coverage:         utils.SanitizeText(req.ExternalPolicy.Coverage, 200),
		Premium:          utils.SanitizeText(req.ExternalPolicy.Premium, 50),
		InsuranceCompany: utils.SanitizeText(req.ExternalPolicy.InsuranceCompany, 100),
	}
	if req.ExternalPolicyID != nil {
		var ext models.ExternalPolicy
		err := p.db.Where("id = ? AND user_id = ?", *req.ExternalPolicyID, userID).First(&ext).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "external policy not found")
			return
		}
		if err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to load external policy")
			return
		}
		in.PolicyType = ext.PolicyType
		in.InsuranceCompany = ext.InsuranceCompany
	}

	utils.Success(ctx, p.advisor.ComparePolicies(userContext(ctx, userID), in))
}

// Recommendations suggests products based on the customer's portfolio and claims.
func (p *PolicyController) Recommendations(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var user models.User
	if err := p.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	var types []string
	if err := p.db.Model(&models.Policy{}).Where("user_id = ?", userID).Pluck("policy_type", &types).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to load policies")
		return
	}
	var claims int64
	if err := p.db.Model(&models.Claim{}).Where("user_id = ?", userID).Count(&claims).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to count claims")
		return
	}
	location := user.Address
	if location == "" {
		location = "Unknown"
	}

	recs := p.advisor.RecommendPolicies(userContext(ctx, userID), ai.CustomerProfile{
		Policies:    types,
		ClaimsCount: int(claims),
		Location:    location,
		Age:         "Unknown",
	})
	utils.Success(ctx, gin.H{"recommendations": recs.Items, "used_fallback": recs.UsedFallback})
}

var changeRequestTypes = map[string]bool{"upgrade": true, "change": true, "cancel": true}

// ListChangeRequests returns the user's policy change requests, newest first.
func (p *PolicyController) ListChangeRequests(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var items []models.PolicyChangeRequest
	if err := p.db.Where("user_id = ?", userID).Order("submitted_at DESC").Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to load change requests")
		return
	}
	utils.Success(ctx, items)
}

// CreateChangeRequest files an upgrade, change or cancellation request.
func (p *PolicyController) CreateChangeRequest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		PolicyID    *uint  `json:"policy_id"`
		RequestType string `json:"request_type" binding:"required"`
		Description string `json:"description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid request payload")
		return
	}
	reqType := strings.ToLower(strings.TrimSpace(req.RequestType))
	if !changeRequestTypes[reqType] {
		utils.Error(ctx, http.StatusBadRequest, 40034, "request_type must be upgrade, change or cancel")
		return
	}
	if req.PolicyID != nil {
		var n int64
		p.db.Model(&models.Policy{}).Where("id = ? AND user_id = ?", *req.PolicyID, userID).Count(&n)
		if n == 0 {
			utils.Error(ctx, http.StatusNotFound, 40431, "policy not found")
			return
		}
	}

	cr := models.PolicyChangeRequest{
		UserID:      userID,
		PolicyID:    req.PolicyID,
		RequestType: reqType,
		Description: utils.SanitizeText(req.Description, 2000),
		Status:      "pending",
	}
	if err := p.db.Create(&cr).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50035, "failed to submit change request")
		return
	}
	utils.Created(ctx, "Policy change request submitted successfully", cr)
}

// respondStorageError maps evidence store failures to API errors.
func respondStorageError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file exceeds upload size limit")
	case errors.Is(err, storage.ErrEmptyFilename):
		utils.Error(ctx, http.StatusBadRequest, 40035, "file name is not usable")
	default:
		utils.Logger.Error("store upload failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50036, "failed to store file")
	}
}
