package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/testutil"
	"github.com/swissaxa/portal/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "middleware-test-secret")
	os.Setenv("REDIS_HOST", "127.0.0.1")
	os.Setenv("REDIS_PORT", "1")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func okHandler(c *gin.Context) { utils.Success(c, gin.H{"user": c.GetUint(ContextUserIDKey)}) }

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(), okHandler)

	token, err := utils.GenerateToken(7, "anna@example.com", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}

	utils.BlacklistToken(token, time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40104")
}

func TestAdminRequired(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "admin@swissaxa.com")
	customer := testutil.CreateUser(t, db, "user@example.com")
	require.NoError(t, config.SyncAdmins(db, []string{"Admin@SwissAxa.com"}))

	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		id, _ := strconv.Atoi(c.GetHeader("X-User"))
		c.Set(ContextUserIDKey, uint(id))
		// The email claim is ignored; only the stored flag counts.
		c.Set(ContextEmailKey, "admin@swissaxa.com")
		c.Next()
	}, AdminRequired(db), okHandler)

	for _, tc := range []struct {
		name string
		id   uint
		want int
	}{
		{"admin", admin.ID, http.StatusOK},
		{"customer with admin email claim", customer.ID, http.StatusForbidden},
		{"unknown user", 9999, http.StatusForbidden},
		{"anonymous", 0, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("X-User", strconv.Itoa(int(tc.id)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.name)
	}
}

func TestSyncAdminsRevokesRemovedEmails(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "former@swissaxa.com")
	require.NoError(t, config.SyncAdmins(db, []string{"former@swissaxa.com"}))
	require.NoError(t, config.SyncAdmins(db, nil))

	var got models.User
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.False(t, got.IsAdmin)
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimit(4), okHandler)

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes[w.Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

type recordingTracker struct{ events []services.Event }

func (r *recordingTracker) Track(_ context.Context, e services.Event) { r.events = append(r.events, e) }

func TestPageViewRecorder(t *testing.T) {
	tracker := &recordingTracker{}
	r := gin.New()
	r.Use(PageViewRecorder(tracker))
	r.GET("/api/v1/claims/:id", okHandler)
	r.POST("/api/v1/claims", okHandler)
	r.GET("/health", okHandler)
	r.GET("/api/v1/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/claims/3"},
		{http.MethodPost, "/api/v1/claims"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/v1/missing"},
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))
	}
	require.Len(t, tracker.events, 1)
	assert.Equal(t, services.EventPageView, tracker.events[0].Type)
	assert.Equal(t, "/api/v1/claims/:id", tracker.events[0].Name)
}

func TestLocalePrefersStoredLanguage(t *testing.T) {
	tr, err := services.NewTranslator("en")
	require.NoError(t, err)
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "lena@example.com")
	require.NoError(t, db.Model(&u).Update("language", "de").Error)

	r := gin.New()
	r.GET("/lang", func(c *gin.Context) {
		if c.GetHeader("X-User") != "" {
			c.Set(ContextUserIDKey, u.ID)
		}
		c.Next()
	}, Locale(tr, db), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextLanguageKey)) })

	get := func(user bool, accept string) string {
		req := httptest.NewRequest(http.MethodGet, "/lang", nil)
		if user {
			req.Header.Set("X-User", "1")
		}
		req.Header.Set("Accept-Language", accept)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Body.String()
	}
	assert.Equal(t, "de", get(true, "en-US"))
	assert.Equal(t, "en", get(false, "en-US"))
	assert.Equal(t, "de", get(false, "de-DE"))
	assert.Equal(t, "en", get(false, ""))
}
