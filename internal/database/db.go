package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dcpinventory-desktop/internal/config"
	"dcpinventory-desktop/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLitePath = "./dcpinventory.db"

// Init opens the local database, configures the pool and runs auto-migration
func Init(opts config.DatabaseOptions, logLevel string, log *zap.SugaredLogger) (*gorm.DB, error) {
	dialector, err := dialectorFor(opts.URL, log)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.Default.LogMode(logger.Warn)
	if strings.EqualFold(logLevel, "debug") {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	log.Infof("Database connection pool configured: max_open=%d, max_idle=%d, max_lifetime=%v",
		opts.MaxOpenConns, opts.MaxIdleConns, opts.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	return db, nil
}

// dialectorFor picks the GORM driver from the URL scheme
func dialectorFor(databaseURL string, log *zap.SugaredLogger) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")

		// The default database lives in the user config directory
		if dbPath == defaultSQLitePath {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user config directory: %w", err)
			}

			appDir := filepath.Join(configDir, "dcpinventory")
			if err := os.MkdirAll(appDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create app directory: %w", err)
			}

			dbPath = filepath.Join(appDir, "dcpinventory.db")
			log.Infof("Using database at: %s", dbPath)
		}
		return sqlite.Open(dbPath), nil

	case strings.HasPrefix(databaseURL, "postgresql://"), strings.HasPrefix(databaseURL, "postgres://"):
		return postgres.Open(databaseURL), nil

	default:
		return nil, fmt.Errorf("unsupported database URL format: %s", databaseURL)
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SessionEntry{},
		&models.TaskProgress{},
		&models.ScheduledJob{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
