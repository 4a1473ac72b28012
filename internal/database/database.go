// Package database bootstraps the GORM entity store behind the ingestion
// core: dual sqlite/postgres support, pooled connections tuned per driver,
// and the AutoMigrate schema for every entity in the domain model.
package database

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mantonx/mediavault/internal/config"
	"github.com/mantonx/mediavault/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the process-wide connection, set by Open. Components take a
// *gorm.DB through their constructor instead; no package in this
// repository reads DB.
var DB *gorm.DB

// Open connects to the database named by cfg.Database.Type, applies the
// connection-pool settings from cfg, and runs AutoMigrate across every
// entity. It is safe to call once at process startup.
func Open(cfg *config.Config, log logger.Logger) (*gorm.DB, error) {
	log = logger.OrNop(log)

	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Database.Type {
	case "postgres":
		db, err = connectPostgres(cfg)
	case "sqlite":
		db, err = connectSQLite(cfg)
	default:
		return nil, fmt.Errorf("database: unsupported type %q", cfg.Database.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if err := configureConnectionPool(db, cfg); err != nil {
		log.Warn("database.pool_config_failed", logger.F("error", err.Error()))
	}

	if err := db.AutoMigrate(
		&Media{},
		&MediaItem{},
		&PhotoMetadata{},
		&VideoMetadata{},
		&Exif{},
		&MediaPlayback{},
		&PickerSession{},
		&PickerSelection{},
		&TaskRecord{},
	); err != nil {
		return nil, fmt.Errorf("database: automigrate: %w", err)
	}

	log.Event("database.opened", logger.F("type", cfg.Database.Type))
	DB = db
	return db, nil
}

func configureConnectionPool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}

	maxOpen := cfg.Database.MaxOpenConns
	maxIdle := cfg.Database.MaxIdleConns
	lifetime := cfg.Database.ConnMaxLifetime
	idleTime := cfg.Database.ConnMaxIdleTime

	if cfg.Database.Type == "sqlite" {
		// SQLite serializes writes regardless of pool size; keep the pool
		// small so we don't pile up goroutines waiting on SQLITE_BUSY.
		if maxOpen == 0 || maxOpen > 25 {
			maxOpen = 25
		}
		if maxIdle == 0 || maxIdle > 5 {
			maxIdle = 5
		}
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)
	return nil
}

func connectPostgres(cfg *config.Config) (*gorm.DB, error) {
	d := cfg.Database
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		d.Host, d.Username, d.Password, d.Database, d.Port)

	return gorm.Open(postgres.Open(dsn), gormConfig(cfg, 1000))
}

func connectSQLite(cfg *config.Config) (*gorm.DB, error) {
	path := cfg.Database.DatabasePath
	if path == "" {
		path = filepath.Join(cfg.Database.DataDir, "mediavault.db")
	}

	dsn := path + "?" +
		"cache=shared&" +
		"mode=rwc&" +
		"_journal_mode=WAL&" +
		"_synchronous=NORMAL&" +
		"_busy_timeout=30000&" +
		"_foreign_keys=ON"

	return gorm.Open(sqlite.Open(dsn), gormConfig(cfg, 500))
}

func gormConfig(cfg *config.Config, createBatchSize int) *gorm.Config {
	logLevel := gormlogger.Silent
	if cfg.Database.LogQueries {
		logLevel = gormlogger.Info
	}

	return &gorm.Config{
		Logger:          gormlogger.Default.LogMode(logLevel),
		CreateBatchSize: createBatchSize,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
}

// ConnectionStats returns the pool's current sql.DBStats. No package in
// this repository calls it; internal/api's health check pings instead.
func ConnectionStats(db *gorm.DB) (*sql.DBStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return &stats, nil
}

// HealthCheck pings the database through the pool's underlying sql.DB.
func HealthCheck(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database: not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
