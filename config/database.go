package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/swissaxa/portal/models"
)

var db *gorm.DB

// Models lists every table the portal owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Agent{},
		&models.User{},
		&models.Policy{},
		&models.ExternalPolicy{},
		&models.PolicyChangeRequest{},
		&models.Document{},
		&models.Claim{},
		&models.ClaimMedia{},
		&models.Appointment{},
		&models.BankAccount{},
		&models.BankTransaction{},
		&models.AnalyticsEvent{},
		&models.AIUsageLog{},
	}
}

// InitDatabase opens the configured database (MySQL or SQLite) and migrates the portal schema.
func InitDatabase() *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()

	// GORM logger level follows the app LogLevel; slow-sql threshold kept high to reduce noise
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}

	dialector, err := openDialector(cfg)
	if err != nil {
		log.Fatalf("failed to configure database: %v", err)
	}

	db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	if cfg.DBDriver == "mysql" {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		// recycle idle connections before the server's wait_timeout does
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	// Surface network/auth problems at boot instead of on the first query
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	return db
}

func openDialector(cfg AppConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.DBDriver) {
	case "mysql":
		dsn := cfg.DatabaseURI
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
				cfg.DBUser,
				cfg.DBPassword,
				cfg.DBHost,
				cfg.DBPort,
				cfg.DBName,
			)
		}
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		path := cfg.DatabaseURI
		if path == "" {
			path = cfg.SQLitePath
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." && path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
			}
		}
		return gormsqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// SyncAdmins grants the admin flag to accounts whose email is configured and revokes it from all others.
// Admin status is read from this flag, never from token claims.
func SyncAdmins(conn *gorm.DB, emails []string) error {
	list := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			list = append(list, e)
		}
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		revoke := tx.Model(&models.User{}).Where("is_admin = ?", true)
		if len(list) > 0 {
			revoke = revoke.Where("email NOT IN ?", list)
		}
		if err := revoke.Update("is_admin", false).Error; err != nil {
			return fmt.Errorf("revoke admins: %w", err)
		}
		if len(list) == 0 {
			return nil
		}
		if err := tx.Model(&models.User{}).Where("email IN ?", list).Update("is_admin", true).Error; err != nil {
			return fmt.Errorf("grant admins: %w", err)
		}
		return nil
	})
}

// Migrate creates missing tables and adds missing columns on existing ones.
// Existing columns and indexes are never altered or dropped.
func Migrate(conn *gorm.DB) error {
	for _, model := range Models() {
		if !conn.Migrator().HasTable(model) {
			if err := conn.AutoMigrate(model); err != nil {
				return fmt.Errorf("auto migrate %T: %w", model, err)
			}
			continue
		}
		if err := addMissingColumns(conn, model); err != nil {
			return err
		}
	}
	return nil
}

func addMissingColumns(conn *gorm.DB, model interface{}) error {
	stmt := &gorm.Statement{DB: conn}
	if err := stmt.Parse(model); err != nil {
		return fmt.Errorf("parse %T: %w", model, err)
	}
	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" {
			continue
		}
		if conn.Migrator().HasColumn(model, field.DBName) {
			continue
		}
		if err := conn.Migrator().AddColumn(model, field.Name); err != nil {
			log.Printf("failed to add %s.%s column: %v", stmt.Schema.Table, field.DBName, err)
			continue
		}
		log.Printf("added column %s.%s", stmt.Schema.Table, field.DBName)
	}
	return nil
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

