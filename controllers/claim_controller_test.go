package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/storage"
	"github.com/swissaxa/portal/testutil"
)

func claimEnv(t *testing.T, advisor ai.Advisor) *env {
	t.Helper()
	e := newEnv(t)
	intake := services.NewClaimIntake(e.db, advisor, e.store, nil)
	c := NewClaimController(intake, advisor)
	e.router.GET("/claims", c.List)
	e.router.POST("/claims", c.Create)
	e.router.GET("/claims/:id", c.Get)
	e.router.POST("/claims/analyze", c.Analyze)
	return e
}

func TestCreateClaimWaterDamage(t *testing.T) {
	advisor := ai.NewClientWithCompleter(stubCompleter{
		text: `{"damage_type": "Water Damage", "severity": "high", "priority": "urgent", "suggested_description": "Pipe burst"}`,
	})
	e := claimEnv(t, advisor)
	user := testutil.CreateUser(t, e.db, "anna@example.com")

	body, ctype := testutil.MultipartBody(t, map[string]string{"address": "Berlin", "latitude": "52.52", "longitude": "13.40"},
		testutil.File{Field: "media", Name: "kitchen.jpg", Content: []byte("jpeg bytes")})
	w := e.do(t, http.MethodPost, "/claims", user.ID, body, ctype)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "Claim filed successfully. AI Analysis: Water Damage detected (Priority: urgent)", resp.Message)

	var data struct {
		Claim      models.Claim `json:"claim"`
		AIEnriched bool         `json:"ai_enriched"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.AIEnriched)
	assert.Equal(t, "Water Damage", data.Claim.DamageType)
	assert.Equal(t, "Pipe burst", data.Claim.Description)
	require.Len(t, data.Claim.Media, 1)
	assert.Equal(t, models.MediaTypePhoto, data.Claim.Media[0].MediaType)
	require.NotNil(t, data.Claim.Latitude)
	assert.InDelta(t, 52.52, *data.Claim.Latitude, 1e-9)
}

func TestCreateClaimWithoutAdvisor(t *testing.T) {
	e := claimEnv(t, disabledAdvisor())
	user := testutil.CreateUser(t, e.db, "ben@example.com")

	body, ctype := testutil.MultipartBody(t, map[string]string{"address": "Berlin"},
		testutil.File{Field: "media", Name: "kitchen.jpg", Content: []byte("jpeg bytes")})
	w := e.do(t, http.MethodPost, "/claims", user.ID, body, ctype)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Claim filed successfully", decode(t, w).Message)

	var claim models.Claim
	require.NoError(t, e.db.Preload("Media").First(&claim).Error)
	assert.Empty(t, claim.DamageType)
	assert.Empty(t, claim.Description)
	assert.Len(t, claim.Media, 1)
}

func TestCreateClaimRejectsMissingEvidence(t *testing.T) {
	e := claimEnv(t, disabledAdvisor())
	user := testutil.CreateUser(t, e.db, "carl@example.com")

	body, ctype := testutil.MultipartBody(t, map[string]string{"description": "Hail on the roof"})
	w := e.do(t, http.MethodPost, "/claims", user.ID, body, ctype)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40020, decode(t, w).Code)

	var n int64
	require.NoError(t, e.db.Model(&models.Claim{}).Count(&n).Error)
	assert.Zero(t, n)
	_, err := os.Stat(filepath.Join(e.root, storage.CategoryClaims))
	if err == nil {
		entries, _ := os.ReadDir(filepath.Join(e.root, storage.CategoryClaims))
		assert.Empty(t, entries)
	}
}

func TestCreateClaimValidatesForm(t *testing.T) {
	e := claimEnv(t, disabledAdvisor())
	owner := testutil.CreateUser(t, e.db, "dora@example.com")
	other := testutil.CreateUser(t, e.db, "emil@example.com")
	policy := models.Policy{UserID: other.ID, PolicyNumber: "POL-1", PolicyType: "Home", ExpirationDate: time.Now().AddDate(1, 0, 0)}
	require.NoError(t, e.db.Create(&policy).Error)

	cases := []struct {
		name   string
		fields map[string]string
		status int
		code   int
	}{
		{"bad policy id", map[string]string{"policy_id": "abc"}, http.StatusBadRequest, 40021},
		{"latitude out of range", map[string]string{"latitude": "91"}, http.StatusBadRequest, 40022},
		{"longitude not a number", map[string]string{"longitude": "east"}, http.StatusBadRequest, 40023},
		{"foreign policy", map[string]string{"policy_id": fmt.Sprint(policy.ID)}, http.StatusNotFound, 40421},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ctype := testutil.MultipartBody(t, tc.fields,
				testutil.File{Field: "media", Name: "a.jpg", Content: []byte("x")})
			w := e.do(t, http.MethodPost, "/claims", owner.ID, body, ctype)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode(t, w).Code)
		})
	}
}

func TestGetClaimHidesOtherUsersClaims(t *testing.T) {
	e := claimEnv(t, disabledAdvisor())
	owner := testutil.CreateUser(t, e.db, "fritz@example.com")
	other := testutil.CreateUser(t, e.db, "greta@example.com")

	claim := models.Claim{UserID: owner.ID, ClaimNumber: "CLM-20240101120000-ABCDEF", Status: models.ClaimStatusSubmitted}
	require.NoError(t, e.db.Create(&claim).Error)
	path := fmt.Sprintf("/claims/%d", claim.ID)

	w := e.do(t, http.MethodGet, path, owner.ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, path, other.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40420, decode(t, w).Code)

	w = e.do(t, http.MethodGet, "/claims", other.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(decode(t, w).Data))
}

func TestAnalyzeClaimFallsBackWithoutAdvisor(t *testing.T) {
	e := claimEnv(t, disabledAdvisor())
	w := e.doJSON(t, http.MethodPost, "/claims/analyze", 1, map[string]string{"description": "Storm broke a window"})
	require.Equal(t, http.StatusOK, w.Code)

	var got ai.DamageAnalysis
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.True(t, got.UsedFallback)
	assert.Equal(t, "General Damage", got.DamageType)
}
