package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swissaxa/portal/services"
)

// PageViewRecorder records successful GET requests as page_view analytics events.
func PageViewRecorder(tracker services.EventTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		// Ignore infrastructure and polling endpoints to avoid skewing page views.
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" || strings.HasSuffix(path, "/notifications") || strings.HasPrefix(path, "/api/v1/admin") {
			return
		}

		name := c.FullPath()
		if name == "" {
			name = path
		}
		ev := services.Event{
			Type:      services.EventPageView,
			Name:      name,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Metadata:  map[string]any{"path": path},
		}
		if id, ok := c.Get(ContextUserIDKey); ok {
			if uid, ok := id.(uint); ok {
				ev.UserID = &uid
			}
		}
		tracker.Track(c.Request.Context(), ev)
	}
}
