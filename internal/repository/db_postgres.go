// Package repository contains the repository layer for the Bhavcopy API
package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/nsvirk/bhavcopyapi/internal/config"
	"github.com/nsvirk/bhavcopyapi/internal/models"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectPostgres connects to Postgres, creates the configured schema and migrates the tables
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	zaplogger.Info(config.SingleLine)
	zaplogger.Info("Initializing Postgres")
	zaplogger.Info(config.SingleLine)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.PostgresLogLevel)),
	}

	// tables stay unqualified, the schema is picked up from search_path
	dsn := withSearchPath(cfg.PostgresDsn, cfg.PostgresSchema)
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %v", err)
	}

	zaplogger.Info("  * connected")

	if cfg.PostgresSchema != "" {
		createSchemaSql := "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(cfg.PostgresSchema)
		if err := db.Exec(createSchemaSql).Error; err != nil {
			return nil, fmt.Errorf("failed to create schema: %v", err)
		}
		zaplogger.Info("  * migrating scheme: \"" + cfg.PostgresSchema + "\"")
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %v", err)
	}

	return db, nil
}

// AutoMigrate creates or updates the bhavcopy tables
func AutoMigrate(db *gorm.DB) error {
	tables := []struct {
		name  string
		model interface{}
	}{
		{models.BhavCopyTableName, &models.BhavRecord{}},
		{models.BhavMcxTableName, &models.BhavMcxRecord{}},
		{models.ReloadLogTableName, &models.ReloadLog{}},
	}

	zaplogger.Info("  * migrating tables")
	for _, table := range tables {
		if err := db.AutoMigrate(table.model); err != nil {
			return fmt.Errorf("failed to auto migrate table: %s, err:%v", table.name, err)
		}
		zaplogger.Info("    - \"" + table.name + "\"")
	}

	return nil
}

// withSearchPath adds search_path to a keyword/value or URL DSN unless it already sets one
func withSearchPath(dsn, schema string) string {
	if schema == "" || strings.Contains(dsn, "search_path") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema + ",public"
	}
	return dsn + " search_path=" + schema + ",public"
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
