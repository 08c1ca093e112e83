// Package repository contains the repository layer for the Bhavcopy API
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nsvirk/bhavcopyapi/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReloadLogRepository is the database repository for reload runs
type ReloadLogRepository struct {
	DB *gorm.DB
}

// NewReloadLogRepository creates a new reload log repository
func NewReloadLogRepository(db *gorm.DB) *ReloadLogRepository {
	return &ReloadLogRepository{DB: db}
}

// Insert stores one reload run
func (r *ReloadLogRepository) Insert(ctx context.Context, entry *models.ReloadLog) error {
	if err := r.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert into %s: %w", models.ReloadLogTableName, err)
	}
	return nil
}

// Recent returns the latest runs, newest first, optionally for a single date
func (r *ReloadLogRepository) Recent(ctx context.Context, date *time.Time, limit int) ([]models.ReloadLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.DB.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if date != nil {
		query = query.Where("date = ?", datatypes.Date(*date))
	}

	var entries []models.ReloadLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", models.ReloadLogTableName, err)
	}
	return entries, nil
}
