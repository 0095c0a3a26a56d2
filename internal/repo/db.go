// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for MySQL
// (production) and SQLite (pure Go driver, local runs and tests), plus schema
// migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// PoolConfig tunes the underlying database/sql pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 10
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = p.MaxOpenConns
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = 5 * time.Minute
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 30 * time.Minute
	}
	return p
}

// Options selects and configures the database.
type Options struct {
	Driver  string // mysql | sqlite
	DSN     string // MySQL DSN
	Path    string // SQLite file path
	Pool    PoolConfig
	Tracing bool // install the GORM OpenTelemetry plugin
}

// Open connects using the configured driver and applies pool settings.
func Open(opts Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "mysql":
		db, err = OpenMySQL(opts.DSN, opts.Pool)
	case "sqlite", "":
		db, err = OpenSQLite(opts.Path)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing plugin: %w", err)
		}
	}
	return db, nil
}

// OpenMySQL opens a MySQL connection. parseTime is forced on so DATETIME
// columns scan into time.Time, and loc=UTC keeps comparisons consistent with
// the UTC timestamps written by the service layer.
func OpenMySQL(dsn string, pool PoolConfig) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DB_DSN must not be empty for mysql")
	}
	dsn = withDSNParam(dsn, "parseTime", "true")
	dsn = withDSNParam(dsn, "loc", "UTC")

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	applyPool(db, pool)
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	applyPool(db, PoolConfig{})
	return db, nil
}

func applyPool(db *gorm.DB, p PoolConfig) {
	p = p.withDefaults()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(p.MaxOpenConns)
		sqlDB.SetMaxIdleConns(p.MaxIdleConns)
		sqlDB.SetConnMaxIdleTime(p.ConnMaxIdleTime)
		sqlDB.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
}

// withDSNParam sets key=value in a go-sql-driver DSN unless key is present.
func withDSNParam(dsn, key, value string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + value
}

// AutoMigrate creates or updates every table owned by the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Call{},
		&domain.CallEvent{},
		&domain.Notification{},
		&domain.CallArchive{},
		&domain.WebhookLog{},
		&domain.Idempotency{},
	)
}
