package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/controllers"
	"github.com/swissaxa/portal/metrics"
	"github.com/swissaxa/portal/middleware"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/storage"
	"github.com/swissaxa/portal/utils"
)

// Deps carries everything the handlers need. Optional collaborators are already
// resolved to their no-op or in-memory variants by the caller.
type Deps struct {
	Config        config.AppConfig
	DB            *gorm.DB
	Advisor       ai.Advisor
	Store         storage.EvidenceStore
	Intake        *services.ClaimIntake
	Analytics     *services.Analytics
	Cache         services.Cache
	Notifications services.NotificationStore
	ChatHistory   services.ChatHistory
	Mailer        services.Mailer
	Bank          services.BankGateway
	Translator    *services.Translator
	// AccessLog receives gin access and panic logs; nil writes them to utils.Logger.
	AccessLog *zap.Logger
}

// Setup wires middlewares, controllers and routes.
func Setup(d Deps) *gin.Engine {
	cfg := d.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	accessLog := d.AccessLog
	if accessLog == nil {
		accessLog = utils.Logger
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(metrics.GinMiddleware())
	var tracker services.EventTracker
	if d.Analytics != nil {
		tracker = d.Analytics
		r.Use(middleware.PageViewRecorder(tracker))
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{
			"status":       "ok",
			"ai_available": d.Advisor.Available(),
			"mail_enabled": d.Mailer != nil && d.Mailer.Enabled(),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authController := controllers.NewAuthController(d.DB, cfg)
	infoController := controllers.NewInformationController(d.DB, cfg, d.Advisor, d.Translator)
	policyController := controllers.NewPolicyController(d.DB, d.Advisor, d.Store)
	documentController := controllers.NewDocumentController(d.DB, d.Advisor, d.Store, tracker)
	claimController := controllers.NewClaimController(d.Intake, d.Advisor)
	appointmentController := controllers.NewAppointmentController(d.DB, d.Advisor, d.Notifications, d.Mailer, d.Cache)
	contactController := controllers.NewContactController(d.DB, cfg, d.Mailer)
	bankController := controllers.NewBankController(d.DB, d.Bank, d.Advisor)
	chatController := controllers.NewChatController(d.Advisor, d.ChatHistory)
	notificationController := controllers.NewNotificationController(d.Notifications)
	adminController := controllers.NewAdminController(d.DB, d.Analytics, d.Intake)
	mobileController := controllers.NewMobileController(d.DB)

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 60
	}

	api := r.Group("/api/v1")
	api.GET("/i18n", middleware.OptionalAuth(), middleware.Locale(d.Translator, d.DB), infoController.Labels)

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(limit))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())

	protected.GET("/information", infoController.Get)
	protected.PUT("/information", infoController.Update)
	protected.POST("/language/:code", infoController.SetLanguage)

	protected.GET("/policies", policyController.List)
	protected.POST("/policies/external", policyController.UploadExternal)
	protected.POST("/policies/compare", policyController.Compare)
	protected.GET("/policies/recommendations", policyController.Recommendations)
	protected.GET("/policies/change-requests", policyController.ListChangeRequests)
	protected.POST("/policies/change-requests", policyController.CreateChangeRequest)

	protected.GET("/documents", documentController.List)
	protected.POST("/documents", documentController.Upload)
	protected.GET("/documents/:id/download", documentController.Download)
	protected.POST("/documents/tag", documentController.Tag)

	protected.GET("/claims", claimController.List)
	protected.POST("/claims", middleware.RateLimit(limit), claimController.Create)
	protected.GET("/claims/:id", claimController.Get)
	protected.POST("/claims/analyze", claimController.Analyze)

	protected.GET("/agents", appointmentController.Agents)
	protected.GET("/appointments", appointmentController.List)
	protected.POST("/appointments", appointmentController.Create)
	protected.POST("/appointments/suggestions", appointmentController.Suggestions)

	protected.POST("/contact", contactController.Send)

	protected.GET("/bank/accounts", bankController.Accounts)
	protected.POST("/bank/connect", bankController.Connect)
	protected.POST("/bank/transactions", bankController.Transaction)
	protected.POST("/bank/transactions/:reference/verify", bankController.Verify)
	protected.GET("/bank/accounts/:id/balance", bankController.Balance)

	chatLimit := middleware.RateLimit(limit)
	protected.POST("/chat", chatLimit, chatController.Send)
	protected.POST("/chat/clear", chatController.Clear)

	protected.GET("/notifications", notificationController.List)
	protected.POST("/notifications/:id/read", notificationController.MarkRead)
	protected.POST("/notifications/read-all", notificationController.MarkAllRead)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminRequired(d.DB))
	admin.GET("/analytics", adminController.Analytics)
	admin.GET("/analytics/export", adminController.Export)
	admin.PATCH("/claims/:id/status", adminController.UpdateClaimStatus)

	mobile := r.Group("/api/mobile/v1")
	mobile.Use(middleware.AuthRequired())
	mobile.GET("/dashboard", mobileController.Dashboard)
	mobile.GET("/claims", claimController.List)
	mobile.GET("/claims/:id", claimController.Get)
	mobile.GET("/policies", policyController.ListInternal)
	mobile.GET("/documents", documentController.List)
	mobile.GET("/notifications", notificationController.List)
	mobile.POST("/chat", chatLimit, chatController.Send)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
