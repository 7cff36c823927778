package main

import (
	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/routes"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/storage"
	"github.com/swissaxa/portal/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase()
	if err := config.SyncAdmins(db, cfg.AdminEmails); err != nil {
		utils.Sugar.Fatalf("sync admin accounts: %v", err)
	}
	if cfg.SeedSampleData {
		if err := config.SeedSampleData(db); err != nil {
			utils.Sugar.Warnf("seeding sample data failed: %v", err)
		}
	}

	store, err := storage.NewLocalStore(cfg.UploadDir, int64(cfg.MaxUploadMB)<<20)
	if err != nil {
		utils.Sugar.Fatalf("evidence store: %v", err)
	}

	// Redis is optional; every store below has an in-memory fallback.
	rc := utils.GetRedis()
	var cache services.Cache
	if rc != nil {
		cache = utils.RedisCache{}
	}

	analytics := services.NewAnalytics(db, utils.Logger, cache)
	advisor := ai.NewClient(cfg, analytics, utils.Logger)
	if !advisor.Available() {
		utils.Sugar.Warn("OPENAI_API_KEY not set, AI features use fallbacks")
	}

	notifications := services.NewNotificationStore(rc)
	mailer := services.NewMailer(cfg, utils.Logger)
	intake := services.NewClaimIntake(db, advisor, store, utils.Logger).
		WithNotifications(notifications, mailer, analytics)

	translator, err := services.NewTranslator(cfg.DefaultLanguage)
	if err != nil {
		utils.Sugar.Fatalf("translations: %v", err)
	}

	accessLog, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		utils.Sugar.Warnf("gin access log falls back to the app logger: %v", err)
		accessLog = nil
	}

	r := routes.Setup(routes.Deps{
		Config:        cfg,
		DB:            db,
		Advisor:       advisor,
		Store:         store,
		Intake:        intake,
		Analytics:     analytics,
		Cache:         cache,
		Notifications: notifications,
		ChatHistory:   services.NewChatHistory(rc),
		Mailer:        mailer,
		Bank:          services.NewStubBankGateway(cfg.BankAPIKeys),
		Translator:    translator,
		AccessLog:     accessLog,
	})

	sweeper, err := utils.StartEvidenceSweeper(db, store.Dir(storage.CategoryClaims), cfg.SweepSchedule)
	if err != nil {
		utils.Sugar.Fatalf("evidence sweeper: %v", err)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, func() { <-sweeper.Stop().Done() }); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
