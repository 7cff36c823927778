package controllers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminController serves portal analytics and claim review.
type AdminController struct {
	db        *gorm.DB
	analytics *services.Analytics
	intake    *services.ClaimIntake
}

func NewAdminController(db *gorm.DB, analytics *services.Analytics, intake *services.ClaimIntake) *AdminController {
	return &AdminController{db: db, analytics: analytics, intake: intake}
}

// Analytics returns the usage summary, AI cost figures and portal totals for ?days (default 30).
// ?refresh=true bypasses the cached summary.
func (a *AdminController) Analytics(ctx *gin.Context) {
	days := parseDays(ctx.Query("days"))
	rctx := ctx.Request.Context()
	if refresh, _ := strconv.ParseBool(ctx.Query("refresh")); refresh {
		a.analytics.RefreshSummaries()
	}

	summary, err := a.analytics.Summary(rctx, days)
	if err != nil {
		utils.Logger.Error("analytics summary failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50095, "failed to build analytics summary")
		return
	}
	stats, err := a.analytics.AIStats(rctx, days)
	if err != nil {
		utils.Logger.Error("ai stats failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50096, "failed to build ai statistics")
		return
	}

	utils.Success(ctx, gin.H{
		"summary":  summary,
		"ai_stats": stats,
		"totals":   a.totals(),
	})
}

// totals counts portal records; a failed count reads as 0 instead of failing the endpoint.
func (a *AdminController) totals() gin.H {
	count := func(model interface{}, where ...interface{}) int64 {
		var n int64
		q := a.db.Model(model)
		if len(where) > 0 {
			q = q.Where(where[0], where[1:]...)
		}
		if err := q.Count(&n).Error; err != nil {
			return 0
		}
		return n
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return gin.H{
		"user_count":        count(&models.User{}),
		"claim_count":       count(&models.Claim{}),
		"open_claim_count":  count(&models.Claim{}, "status IN ?", []string{models.ClaimStatusSubmitted, models.ClaimStatusInReview}),
		"document_count":    count(&models.Document{}),
		"daily_page_views":  count(&models.AnalyticsEvent{}, "event_type = ? AND created_at >= ?", services.EventPageView, today),
		"appointment_count": count(&models.Appointment{}),
	}
}

// Export returns the analytics workbook as an attachment.
func (a *AdminController) Export(ctx *gin.Context) {
	days := parseDays(ctx.Query("days"))
	var buf bytes.Buffer
	if err := a.analytics.ExportXLSX(ctx.Request.Context(), days, &buf); err != nil {
		utils.Logger.Error("analytics export failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50097, "failed to export analytics")
		return
	}
	filename := fmt.Sprintf("portal-analytics-%s-%dd.xlsx", time.Now().Format("20060102"), days)
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// UpdateClaimStatus moves a claim through review.
func (a *AdminController) UpdateClaimStatus(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40091, "invalid claim id")
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40092, "status is required")
		return
	}
	claim, err := a.intake.UpdateStatus(ctx.Request.Context(), id, req.Status)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40490, "claim not found")
		return
	case errors.Is(err, services.ErrInvalidTransition):
		utils.Error(ctx, http.StatusBadRequest, 40090, err.Error())
		return
	default:
		utils.Logger.Error("update claim status failed", zap.Uint("claim_id", id), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50098, "failed to update claim")
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "Claim status updated", claim)
}
