package middleware

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
)

// ContextLanguageKey stores the negotiated portal language.
const ContextLanguageKey = "language"

// Locale negotiates the response language: the signed-in user's stored preference,
// then Accept-Language, then the configured default.
func Locale(tr *services.Translator, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		stored := ""
		if id, ok := c.Get(ContextUserIDKey); ok {
			if uid, ok := id.(uint); ok && uid > 0 {
				var u models.User
				if err := db.WithContext(c.Request.Context()).Select("id", "language").First(&u, uid).Error; err == nil {
					stored = u.Language
				}
			}
		}
		c.Set(ContextLanguageKey, tr.Negotiate(stored, c.GetHeader("Accept-Language")))
		c.Next()
	}
}
