package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/testutil"
)

type mapCache struct{ items map[string]any }

func (m *mapCache) GetJSON(key string, out any) bool {
	v, ok := m.items[key]
	if !ok {
		return false
	}
	*(out.(*Summary)) = v.(Summary)
	return true
}

func (m *mapCache) SetJSON(key string, v any, _ time.Duration) { m.items[key] = v }

func (m *mapCache) Invalidate(prefix string) {
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
}

func seedAnalytics(t *testing.T, a *Analytics) {
	t.Helper()
	ctx := context.Background()
	uid := uint(1)
	a.Track(ctx, Event{Type: EventPageView, Name: "/dashboard", UserID: &uid})
	a.Track(ctx, Event{Type: EventPageView, Name: "/claims"})
	a.Track(ctx, Event{Type: EventClaimFiled, Name: "CLM-1", UserID: &uid, Metadata: map[string]any{"media_count": 2}})
	a.Track(ctx, Event{Type: EventDocumentUploaded, Name: "policy.pdf", UserID: &uid})

	a.RecordAIUsage(ctx, ai.Usage{Feature: ai.OpChat, UserID: &uid, TokensUsed: 1000, Success: true})
	a.RecordAIUsage(ctx, ai.Usage{Feature: ai.OpChat, TokensUsed: 3000, Success: true})
	a.RecordAIUsage(ctx, ai.Usage{Feature: ai.OpTagDocument, Success: false, Error: "timeout"})
}

func TestAnalyticsSummaryAndStats(t *testing.T) {
	db := testutil.NewDB(t)
	a := NewAnalytics(db, zap.NewNop(), nil)
	seedAnalytics(t, a)

	s, err := a.Summary(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.PageViews)
	assert.Equal(t, int64(1), s.ClaimsFiled)
	assert.Equal(t, int64(1), s.DocumentsUploaded)
	assert.Equal(t, 30, s.PeriodDays)
	require.Len(t, s.AIUsage, 2)
	assert.Equal(t, FeatureUsage{Feature: ai.OpChat, Count: 2, Tokens: 4000, Cost: 0.0006}, roundCost(s.AIUsage[0]))
	assert.Equal(t, ai.OpTagDocument, s.AIUsage[1].Feature)

	stats, err := a.AIStats(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(4000), stats.TotalTokens)
	assert.InDelta(t, 0.0006, stats.TotalCost, 1e-9)
	assert.InDelta(t, 0.0002, stats.AvgCost, 1e-9)
	assert.InDelta(t, 66.666, stats.SuccessRate, 0.01)

	var ev models.AnalyticsEvent
	require.NoError(t, db.Where("event_type = ?", EventClaimFiled).First(&ev).Error)
	assert.JSONEq(t, `{"media_count":2}`, string(ev.Metadata))
}

func roundCost(u FeatureUsage) FeatureUsage {
	u.Cost = float64(int64(u.Cost*1e7+0.5)) / 1e7
	return u
}

func TestAnalyticsEmptyPeriod(t *testing.T) {
	a := NewAnalytics(testutil.NewDB(t), nil, nil)
	stats, err := a.AIStats(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCalls)
	assert.Zero(t, stats.SuccessRate)

	s, err := a.Summary(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, s.AIUsage)
	assert.Empty(t, s.AIUsage)
}

func TestAnalyticsSummaryIsCached(t *testing.T) {
	db := testutil.NewDB(t)
	cache := &mapCache{items: map[string]any{}}
	a := NewAnalytics(db, nil, cache)

	first, err := a.Summary(context.Background(), 30)
	require.NoError(t, err)
	a.Track(context.Background(), Event{Type: EventPageView, Name: "/x"})
	second, err := a.Summary(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, first.PageViews, second.PageViews)

	a.RefreshSummaries()
	third, err := a.Summary(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, first.PageViews+1, third.PageViews)
}

func TestCostEstimate(t *testing.T) {
	assert.InDelta(t, 0.00015, CostEstimate(1000), 1e-12)
	assert.Zero(t, CostEstimate(0))
}

func TestExportXLSX(t *testing.T) {
	db := testutil.NewDB(t)
	a := NewAnalytics(db, nil, nil)
	seedAnalytics(t, a)

	var buf bytes.Buffer
	require.NoError(t, a.ExportXLSX(context.Background(), 30, &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "AI Usage"}, f.GetSheetList())

	v, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	rows, err := f.GetRows("AI Usage")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Feature", "Calls", "Tokens", "Cost (USD)"}, rows[0])
	assert.Equal(t, ai.OpChat, rows[1][0])
}
