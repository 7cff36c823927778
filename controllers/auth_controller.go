package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/middleware"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/utils"
)

// AuthController handles registration, login, logout and Google sign-in.
type AuthController struct {
	db  *gorm.DB
	cfg config.AppConfig
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB, cfg config.AppConfig) *AuthController {
	return &AuthController{db: db, cfg: cfg}
}

// Register creates a local account and returns a session token.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	// Admin accounts come from provisioning or verified sign-in, never self-registration.
	if a.cfg.IsAdminEmail(email) {
		utils.Error(ctx, http.StatusForbidden, 40302, "this email address cannot be registered")
		return
	}
	if !utils.ValidPassword(req.Password) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "password must be 6-72 characters and contain a letter and a digit")
		return
	}

	var count int64
	if err := a.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to check email")
		return
	}
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to hash password")
		return
	}
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    utils.SanitizeText(req.FirstName, 100),
		LastName:     utils.SanitizeText(req.LastName, 100),
		Language:     a.cfg.DefaultLanguage,
	}
	if err := a.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
			return
		}
		utils.Logger.Error("create user failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to create user")
		return
	}

	a.issueToken(ctx, http.StatusCreated, user)
}

// Login verifies email and password and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}

	a.issueToken(ctx, http.StatusOK, user)
}

func (a *AuthController) issueToken(ctx *gin.Context, status int, user models.User) {
	token, err := utils.GenerateToken(user.ID, user.Email, utils.TokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	utils.Respond(ctx, status, 0, "success", gin.H{
		"token": token,
		"user":  a.userResponse(user),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(utils.TokenTTL)
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.Preload("Agent").First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	utils.Success(ctx, a.userResponse(user))
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	cfg, err := a.oauthConfig(ctx.Param("provider"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}
	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	token, err := cfg.Exchange(ctx.Request.Context(), code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}

	info, err := fetchGoogleUser(ctx, cfg, token)
	if err != nil {
		utils.Logger.Warn("oauth userinfo failed", zap.String("provider", provider), zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50005, "failed to fetch user profile")
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		utils.Logger.Error("persist oauth user failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	a.issueToken(ctx, http.StatusOK, *user)
}

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	switch strings.ToLower(provider) {
	case "google":
		if a.cfg.GoogleClientID == "" || a.cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     a.cfg.GoogleClientID,
			ClientSecret: a.cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", a.cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

func fetchGoogleUser(ctx *gin.Context, cfg *oauth2.Config, token *oauth2.Token) (*oauthUser, error) {
	client := cfg.Client(ctx.Request.Context(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.ID == "" || payload.Email == "" {
		return nil, errors.New("google profile without id or email")
	}
	return &oauthUser{
		ID:        payload.ID,
		Email:     payload.Email,
		FirstName: payload.GivenName,
		LastName:  payload.FamilyName,
	}, nil
}

// findOrCreateOAuthUser matches by provider id first, then links an existing account with the same email.
func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(data.Email))
	err = a.db.Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"provider": provider, "provider_id": data.ID}
		if a.cfg.IsAdminEmail(email) {
			updates["is_admin"] = true
		}
		if err := a.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	user = models.User{
		Email:      email,
		FirstName:  utils.SanitizeText(data.FirstName, 100),
		LastName:   utils.SanitizeText(data.LastName, 100),
		Provider:   provider,
		ProviderID: data.ID,
		Language:   a.cfg.DefaultLanguage,
		IsAdmin:    a.cfg.IsAdminEmail(email),
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *AuthController) userResponse(user models.User) gin.H {
	return gin.H{
		"id":                     user.ID,
		"email":                  user.Email,
		"first_name":             user.FirstName,
		"last_name":              user.LastName,
		"phone":                  user.Phone,
		"address":                user.Address,
		"correspondence_address": user.CorrespondenceAddress,
		"bank_account":           user.BankAccount,
		"language":               user.Language,
		"provider":               user.Provider,
		"agent":                  user.Agent,
		"is_admin":               user.IsAdmin,
		"created_at":             user.CreatedAt,
	}
}
