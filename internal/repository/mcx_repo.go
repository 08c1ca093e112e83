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

// Segment and source under which commodity rows are reported
const (
	McxSegment = "COM"
	McxSource  = "MCX"
)

// McxRepository is the database repository for commodity bhavcopy rows
type McxRepository struct {
	DB *gorm.DB
}

// NewMcxRepository creates a new MCX repository
func NewMcxRepository(db *gorm.DB) *McxRepository {
	return &McxRepository{DB: db}
}

// CountByDay returns row counts per date in [from, to], reported as segment COM, source MCX
func (r *McxRepository) CountByDay(ctx context.Context, from, to time.Time) ([]models.DayCount, error) {
	var rows []dayCountRow
	err := r.DB.WithContext(ctx).
		Model(&models.BhavMcxRecord{}).
		Select("date AS day, COUNT(*) AS count").
		Where("date BETWEEN ? AND ?", datatypes.Date(from), datatypes.Date(to)).
		Group("date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count %s rows: %w", models.BhavMcxTableName, err)
	}

	counts := make([]models.DayCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, models.DayCount{
			Date:    row.Day.UTC().Format("2006-01-02"),
			Segment: McxSegment,
			Source:  McxSource,
			Count:   row.Count,
		})
	}
	return counts, nil
}

// Exists reports whether any commodity row is stored for date
func (r *McxRepository) Exists(ctx context.Context, date time.Time) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&models.BhavMcxRecord{}).
		Where("date = ?", datatypes.Date(date)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check %s rows: %w", models.BhavMcxTableName, err)
	}
	return count > 0, nil
}

// Find returns the commodity rows stored for date, optionally narrowed to a symbol
func (r *McxRepository) Find(ctx context.Context, date time.Time, symbol string) ([]models.BhavMcxRecord, error) {
	query := r.DB.WithContext(ctx).Where("date = ?", datatypes.Date(date))
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var records []models.BhavMcxRecord
	if err := query.Order("symbol, expiry_date, instrument_name, strike_price, option_type").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", models.BhavMcxTableName, err)
	}
	return records, nil
}
