package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAICall(t *testing.T) {
	before := testutil.ToFloat64(aiCalls.WithLabelValues("tag_document", "error"))
	RecordAICall("tag_document", "error")
	after := testutil.ToFloat64(aiCalls.WithLabelValues("tag_document", "error"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestRecordClaim(t *testing.T) {
	before := testutil.ToFloat64(claimsFiled.WithLabelValues("filed"))
	RecordClaim("filed")
	RecordClaimNumberRetry()
	ObserveAILatency("analyze_claim_damage", 120*time.Millisecond)
	RecordDegraded("mailer")
	if got := testutil.ToFloat64(claimsFiled.WithLabelValues("filed")) - before; got != 1 {
		t.Fatalf("expected 1 filed claim, got %v", got)
	}
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `portal_http_requests_total{method="GET",route="/ping/:id",status="200"}`) {
		t.Fatalf("route template not recorded:\n%s", body)
	}
}
