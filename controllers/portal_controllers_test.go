package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/testutil"
)

type mailerSpy struct {
	enabled bool
	sent    []services.Message
}

func (m *mailerSpy) Enabled() bool { return m.enabled }

func (m *mailerSpy) Send(_ context.Context, msg services.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestCreateAppointmentConfirms(t *testing.T) {
	e := newEnv(t)
	notifications := services.NewMemoryNotificationStore()
	mailer := &mailerSpy{enabled: true}
	a := NewAppointmentController(e.db, disabledAdvisor(), notifications, mailer, nil)
	e.router.POST("/appointments", a.Create)
	e.router.GET("/appointments", a.List)
	e.router.GET("/agents", a.Agents)

	user := testutil.CreateUser(t, e.db, "anna@example.com")
	agent := models.Agent{Name: "Max Müller", Email: "max@swissaxa.de"}
	require.NoError(t, e.db.Create(&agent).Error)

	w := e.doJSON(t, http.MethodPost, "/appointments", user.ID, map[string]any{"date_time": "tomorrow at noon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40051, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/appointments", user.ID, map[string]any{"date_time": "2030-05-06T10:30", "agent_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40450, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/appointments", user.ID, map[string]any{
		"date_time": "2030-05-06T10:30", "agent_id": agent.ID, "appointment_type": "agent", "purpose": "Review home policy",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	list, err := notifications.List(context.Background(), user.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Appointment Confirmed", list[0].Title)
	assert.Contains(t, list[0].Message, "with Max Müller")

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, user.Email, mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, "2030-05-06 10:30")

	w = e.do(t, http.MethodGet, "/appointments", user.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var appts []models.Appointment
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &appts))
	require.Len(t, appts, 1)
	require.NotNil(t, appts[0].Agent)
	assert.Equal(t, "Max Müller", appts[0].Agent.Name)
}

func TestContactWithoutMailer(t *testing.T) {
	e := newEnv(t)
	c := NewContactController(e.db, config.AppConfig{}, services.NoopMailer{})
	e.router.POST("/contact", c.Send)
	user := testutil.CreateUser(t, e.db, "ben@example.com")

	w := e.doJSON(t, http.MethodPost, "/contact", user.ID, map[string]string{"subject": "Hello", "message": "Call me"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Contains(t, resp.Message, "not configured")
	assert.JSONEq(t, `{"sent":false}`, string(resp.Data))

	w = e.doJSON(t, http.MethodPost, "/contact", user.ID, map[string]string{"subject": "", "message": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContactRoutesToAgent(t *testing.T) {
	e := newEnv(t)
	mailer := &mailerSpy{enabled: true}
	c := NewContactController(e.db, config.AppConfig{SMTPFrom: "desk@swissaxa.de"}, mailer)
	e.router.POST("/contact", c.Send)
	user := testutil.CreateUser(t, e.db, "clara@example.com")
	agent := models.Agent{Name: "Eva Schmidt", Email: "eva@swissaxa.de"}
	require.NoError(t, e.db.Create(&agent).Error)

	w := e.doJSON(t, http.MethodPost, "/contact", user.ID, map[string]any{"agent_id": agent.ID, "subject": "Policy", "message": "Question"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "eva@swissaxa.de", mailer.sent[0].To)
	assert.Equal(t, user.Email, mailer.sent[0].ReplyTo)

	w = e.doJSON(t, http.MethodPost, "/contact", user.ID, map[string]any{"subject": "Policy", "message": "Question"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "desk@swissaxa.de", mailer.sent[1].To)
}

func TestChatKeepsHistory(t *testing.T) {
	e := newEnv(t)
	history := services.NewChatHistory(nil)
	c := NewChatController(disabledAdvisor(), history)
	e.router.POST("/chat", c.Send)
	e.router.POST("/chat/clear", c.Clear)

	w := e.doJSON(t, http.MethodPost, "/chat", 3, map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40080, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/chat", 3, map[string]string{"message": "How do I file a claim?"})
	require.Equal(t, http.StatusOK, w.Code)
	var reply struct {
		Response     string `json:"response"`
		UsedFallback bool   `json:"used_fallback"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &reply))
	assert.Equal(t, ai.ChatUnavailableReply, reply.Response)
	assert.True(t, reply.UsedFallback)

	msgs, err := history.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)
	assert.Equal(t, ai.RoleAssistant, msgs[1].Role)

	w = e.do(t, http.MethodPost, "/chat/clear", 3, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	msgs, _ = history.Recent(context.Background(), 3)
	assert.Empty(t, msgs)
}

func TestNotificationEndpoints(t *testing.T) {
	e := newEnv(t)
	store := services.NewMemoryNotificationStore()
	n := NewNotificationController(store)
	e.router.GET("/notifications", n.List)
	e.router.POST("/notifications/:id/read", n.MarkRead)
	e.router.POST("/notifications/read-all", n.MarkAllRead)

	ctx := context.Background()
	first, err := store.Add(ctx, 5, services.ClaimUpdatedNotification("CLM-1", "in_review"))
	require.NoError(t, err)
	_, err = store.Add(ctx, 5, services.ClaimUpdatedNotification("CLM-2", "resolved"))
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/notifications/"+first.ID+"/read", 5, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/notifications/missing/read", 5, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40480, decode(t, w).Code)

	w = e.do(t, http.MethodGet, "/notifications?unread=true", 5, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Items       []services.Notification `json:"items"`
		UnreadCount int                     `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Claim CLM-2 Updated", data.Items[0].Title)
	assert.Equal(t, 1, data.UnreadCount)

	w = e.do(t, http.MethodPost, "/notifications/read-all", 5, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"marked":1}`, string(decode(t, w).Data))
}

func TestAdminClaimStatus(t *testing.T) {
	e := newEnv(t)
	notifications := services.NewMemoryNotificationStore()
	intake := services.NewClaimIntake(e.db, disabledAdvisor(), e.store, nil).WithNotifications(notifications, nil, nil)
	analytics := services.NewAnalytics(e.db, nil, nil)
	a := NewAdminController(e.db, analytics, intake)
	e.router.PATCH("/admin/claims/:id/status", a.UpdateClaimStatus)
	e.router.GET("/admin/analytics", a.Analytics)
	e.router.GET("/admin/analytics/export", a.Export)

	user := testutil.CreateUser(t, e.db, "dora@example.com")
	claim := models.Claim{UserID: user.ID, ClaimNumber: "CLM-20240101120000-AAAAAA", Status: models.ClaimStatusSubmitted}
	require.NoError(t, e.db.Create(&claim).Error)
	path := fmt.Sprintf("/admin/claims/%d/status", claim.ID)

	w := e.doJSON(t, http.MethodPatch, path, 1, map[string]string{"status": models.ClaimStatusResolved})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40090, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPatch, path, 1, map[string]string{"status": models.ClaimStatusInReview})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list, _ := notifications.List(context.Background(), user.ID, false)
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Message, models.ClaimStatusInReview)

	w = e.doJSON(t, http.MethodPatch, "/admin/claims/9999/status", 1, map[string]string{"status": models.ClaimStatusInReview})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40490, decode(t, w).Code)

	w = e.do(t, http.MethodGet, "/admin/analytics?days=7", 1, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Summary services.Summary `json:"summary"`
		Totals  map[string]int64 `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, 7, data.Summary.PeriodDays)
	assert.EqualValues(t, 1, data.Totals["claim_count"])
	assert.EqualValues(t, 1, data.Totals["open_claim_count"])

	w = e.do(t, http.MethodGet, "/admin/analytics/export", 1, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "PK", string(w.Body.Bytes()[:2]))
}

func TestMobileDashboard(t *testing.T) {
	e := newEnv(t)
	m := NewMobileController(e.db)
	e.router.GET("/dashboard", m.Dashboard)

	user := testutil.CreateUser(t, e.db, "emil@example.com")
	now := time.Now()
	require.NoError(t, e.db.Create(&models.Policy{UserID: user.ID, PolicyNumber: "POL-A", ExpirationDate: now.AddDate(1, 0, 0)}).Error)
	require.NoError(t, e.db.Create(&models.Claim{UserID: user.ID, ClaimNumber: "CLM-A", Status: models.ClaimStatusSubmitted}).Error)
	require.NoError(t, e.db.Create(&models.Claim{UserID: user.ID, ClaimNumber: "CLM-B", Status: models.ClaimStatusResolved}).Error)
	require.NoError(t, e.db.Create(&models.Appointment{UserID: user.ID, DateTime: now.Add(48 * time.Hour), Status: models.AppointmentStatusScheduled}).Error)
	require.NoError(t, e.db.Create(&models.Appointment{UserID: user.ID, DateTime: now.Add(-48 * time.Hour), Status: models.AppointmentStatusScheduled}).Error)

	w := e.do(t, http.MethodGet, "/dashboard", user.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_policies":1,"active_claims":1,"total_documents":0,"upcoming_appointments":1}`, string(decode(t, w).Data))
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	a := NewAuthController(e.db, config.AppConfig{DefaultLanguage: "en"})
	e.router.POST("/register", a.Register)
	e.router.POST("/login", a.Login)

	payload := map[string]string{"email": "Fritz@Example.com", "password": "secret12", "first_name": "Fritz"}
	w := e.doJSON(t, http.MethodPost, "/register", 0, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "fritz@example.com", data.User["email"])

	w = e.doJSON(t, http.MethodPost, "/register", 0, payload)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/register", 0, map[string]string{"email": "weak@example.com", "password": "short"})
	assert.Equal(t, 40002, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/login", 0, map[string]string{"email": "fritz@example.com", "password": "wrong123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40106, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/login", 0, map[string]string{"email": "fritz@example.com", "password": "secret12"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInformationUpdateIgnoresIdentityFields(t *testing.T) {
	e := newEnv(t)
	tr, err := services.NewTranslator("en")
	require.NoError(t, err)
	c := NewInformationController(e.db, config.AppConfig{DefaultLanguage: "en"}, disabledAdvisor(), tr)
	e.router.PUT("/information", c.Update)

	u := testutil.CreateUser(t, e.db, "clara@example.com")
	w := e.doJSON(t, http.MethodPut, "/information", u.ID, map[string]any{
		"phone":    "+41 44 000 00 00",
		"email":    "admin@swissaxa.de",
		"is_admin": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.User
	require.NoError(t, e.db.First(&got, u.ID).Error)
	assert.Equal(t, "+41 44 000 00 00", got.Phone)
	assert.Equal(t, "clara@example.com", got.Email)
	assert.False(t, got.IsAdmin)
}
