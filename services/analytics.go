package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/models"
)

// Tracked event types.
const (
	EventPageView         = "page_view"
	EventClaimFiled       = "claim_filed"
	EventDocumentUploaded = "document_uploaded"
)

// costPer1KTokens is the gpt-4o-mini input price in USD.
const costPer1KTokens = 0.00015

const summaryCacheTTL = 5 * time.Minute

// Event is one user action to record.
type Event struct {
	Type      string
	Name      string
	UserID    *uint
	Metadata  map[string]any
	IP        string
	UserAgent string
}

// EventTracker records events. Tracking never fails the caller.
type EventTracker interface {
	Track(ctx context.Context, e Event)
}

// Cache is the read-through cache used for dashboard aggregates. utils.RedisCache implements it.
type Cache interface {
	GetJSON(key string, out any) bool
	SetJSON(key string, v any, ttl time.Duration)
	Invalidate(prefix string)
}

// FeatureUsage aggregates AI calls for one feature.
type FeatureUsage struct {
	Feature string  `json:"feature"`
	Count   int64   `json:"count"`
	Tokens  int64   `json:"tokens"`
	Cost    float64 `json:"cost"`
}

type Summary struct {
	PageViews         int64          `json:"page_views"`
	AIUsage           []FeatureUsage `json:"ai_usage"`
	ClaimsFiled       int64          `json:"claims_filed"`
	DocumentsUploaded int64          `json:"documents_uploaded"`
	PeriodDays        int            `json:"period_days"`
}

type AIStats struct {
	TotalCalls  int64   `json:"total_calls"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	AvgCost     float64 `json:"avg_cost"`
	SuccessRate float64 `json:"success_rate"`
	PeriodDays  int     `json:"period_days"`
}

// Analytics stores events and AI usage in the database and aggregates them for admins.
type Analytics struct {
	db     *gorm.DB
	logger *zap.Logger
	cache  Cache
	now    func() time.Time
}

// NewAnalytics returns an analytics service. cache may be nil.
func NewAnalytics(db *gorm.DB, logger *zap.Logger, cache Cache) *Analytics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analytics{db: db, logger: logger, cache: cache, now: time.Now}
}

var (
	_ EventTracker     = (*Analytics)(nil)
	_ ai.UsageRecorder = (*Analytics)(nil)
)

// CostEstimate converts a token count into an approximate USD cost.
func CostEstimate(tokens int64) float64 {
	return float64(tokens) / 1000 * costPer1KTokens
}

func (a *Analytics) Track(ctx context.Context, e Event) {
	var meta datatypes.JSON
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err == nil {
			meta = datatypes.JSON(b)
		}
	}
	row := models.AnalyticsEvent{
		EventType: e.Type,
		EventName: e.Name,
		UserID:    e.UserID,
		Metadata:  meta,
		IPAddress: e.IP,
		UserAgent: truncate(e.UserAgent, 255),
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		a.logger.Warn("track event failed", zap.String("type", e.Type), zap.Error(err))
	}
}

func (a *Analytics) RecordAIUsage(ctx context.Context, u ai.Usage) {
	row := models.AIUsageLog{
		Feature:      u.Feature,
		UserID:       u.UserID,
		TokensUsed:   u.TokensUsed,
		CostEstimate: CostEstimate(u.TokensUsed),
		Success:      u.Success,
		ErrorMessage: u.Error,
	}
	// The call context may already be past its deadline when the model timed out.
	if err := a.db.WithContext(context.WithoutCancel(ctx)).Create(&row).Error; err != nil {
		a.logger.Warn("record ai usage failed", zap.String("feature", u.Feature), zap.Error(err))
	}
}

func (a *Analytics) since(days int) time.Time {
	return a.now().Add(-time.Duration(days) * 24 * time.Hour)
}

func (a *Analytics) countEvents(ctx context.Context, eventType string, since time.Time) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&models.AnalyticsEvent{}).
		Where("event_type = ? AND created_at >= ?", eventType, since).
		Count(&n).Error
	return n, err
}

const summaryCachePrefix = "analytics:summary:"

// RefreshSummaries drops cached summaries so the next read recomputes them.
func (a *Analytics) RefreshSummaries() {
	if a.cache != nil {
		a.cache.Invalidate(summaryCachePrefix)
	}
}

// Summary aggregates the last days of activity.
func (a *Analytics) Summary(ctx context.Context, days int) (Summary, error) {
	key := summaryCachePrefix + strconv.Itoa(days)
	var cached Summary
	if a.cache != nil && a.cache.GetJSON(key, &cached) {
		return cached, nil
	}

	since := a.since(days)
	out := Summary{PeriodDays: days, AIUsage: []FeatureUsage{}}
	var err error
	if out.PageViews, err = a.countEvents(ctx, EventPageView, since); err != nil {
		return Summary{}, fmt.Errorf("count page views: %w", err)
	}
	if out.ClaimsFiled, err = a.countEvents(ctx, EventClaimFiled, since); err != nil {
		return Summary{}, fmt.Errorf("count claims: %w", err)
	}
	if out.DocumentsUploaded, err = a.countEvents(ctx, EventDocumentUploaded, since); err != nil {
		return Summary{}, fmt.Errorf("count uploads: %w", err)
	}
	err = a.db.WithContext(ctx).Model(&models.AIUsageLog{}).
		Select("feature, COUNT(*) AS count, COALESCE(SUM(tokens_used),0) AS tokens, COALESCE(SUM(cost_estimate),0) AS cost").
		Where("created_at >= ?", since).
		Group("feature").
		Order("feature").
		Scan(&out.AIUsage).Error
	if err != nil {
		return Summary{}, fmt.Errorf("aggregate ai usage: %w", err)
	}

	if a.cache != nil {
		a.cache.SetJSON(key, out, summaryCacheTTL)
	}
	return out, nil
}

// AIStats returns totals over the AI usage log for the last days.
func (a *Analytics) AIStats(ctx context.Context, days int) (AIStats, error) {
	var row struct {
		TotalCalls   int64
		TotalTokens  int64
		TotalCost    float64
		AvgCost      float64
		SuccessCount int64
	}
	err := a.db.WithContext(ctx).Model(&models.AIUsageLog{}).
		Select(`COUNT(*) AS total_calls,
			COALESCE(SUM(tokens_used),0) AS total_tokens,
			COALESCE(SUM(cost_estimate),0) AS total_cost,
			COALESCE(AVG(cost_estimate),0) AS avg_cost,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END),0) AS success_count`).
		Where("created_at >= ?", a.since(days)).
		Scan(&row).Error
	if err != nil {
		return AIStats{}, fmt.Errorf("ai usage stats: %w", err)
	}
	out := AIStats{
		TotalCalls:  row.TotalCalls,
		TotalTokens: row.TotalTokens,
		TotalCost:   row.TotalCost,
		AvgCost:     row.AvgCost,
		PeriodDays:  days,
	}
	if row.TotalCalls > 0 {
		out.SuccessRate = float64(row.SuccessCount) / float64(row.TotalCalls) * 100
	}
	return out, nil
}

// ExportXLSX writes the summary and AI statistics as a two sheet workbook.
func (a *Analytics) ExportXLSX(ctx context.Context, days int, w io.Writer) error {
	summary, err := a.Summary(ctx, days)
	if err != nil {
		return err
	}
	stats, err := a.AIStats(ctx, days)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet, usageSheet = "Summary", "AI Usage"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Period (days)", summary.PeriodDays},
		{"Page views", summary.PageViews},
		{"Claims filed", summary.ClaimsFiled},
		{"Documents uploaded", summary.DocumentsUploaded},
		{"AI calls", stats.TotalCalls},
		{"AI tokens", stats.TotalTokens},
		{"AI cost (USD)", stats.TotalCost},
		{"AI average cost (USD)", stats.AvgCost},
		{"AI success rate (%)", stats.SuccessRate},
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(usageSheet); err != nil {
		return err
	}
	usage := [][]interface{}{{"Feature", "Calls", "Tokens", "Cost (USD)"}}
	for _, u := range summary.AIUsage {
		usage = append(usage, []interface{}{u.Feature, u.Count, u.Tokens, u.Cost})
	}
	if err := writeRows(f, usageSheet, usage); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
