package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextEmailKey stores the authenticated email inside Gin context.
	ContextEmailKey = "email"
	// ContextTokenKey stores the raw bearer token so logout can revoke it.
	ContextTokenKey = "token"
)

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		if utils.IsTokenBlacklisted(tokenString) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Set(ContextTokenKey, tokenString)
		ctx.Next()
	}
}

// OptionalAuth identifies the caller when a valid bearer token is present and never rejects.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		parts := strings.SplitN(ctx.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token := strings.TrimSpace(parts[1])
			if token != "" && !utils.IsTokenBlacklisted(token) {
				if claims, err := utils.ParseToken(token); err == nil {
					ctx.Set(ContextUserIDKey, claims.UserID)
					ctx.Set(ContextEmailKey, claims.Email)
				}
			}
		}
		ctx.Next()
	}
}

// AdminRequired lets through users whose stored account carries the admin flag.
// It must run after AuthRequired.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := ctx.GetUint(ContextUserIDKey)
		if userID == 0 {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin access required")
			ctx.Abort()
			return
		}

		var user models.User
		err := db.WithContext(ctx.Request.Context()).Select("id", "is_admin").First(&user, userID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Logger.Error("admin lookup failed", zap.Uint("user_id", userID), zap.Error(err))
			utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to check permissions")
			ctx.Abort()
			return
		}
		if err != nil || !user.IsAdmin {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin access required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
