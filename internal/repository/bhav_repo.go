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

// BhavRepository is the database repository for national exchange bhavcopy rows
type BhavRepository struct {
	DB *gorm.DB
}

// NewBhavRepository creates a new bhav repository
func NewBhavRepository(db *gorm.DB) *BhavRepository {
	return &BhavRepository{DB: db}
}

type dayCountRow struct {
	Day     time.Time
	Segment string
	Source  string
	Count   int64
}

// CountByDay returns row counts grouped by trade date, segment and source for dates in [from, to]
func (r *BhavRepository) CountByDay(ctx context.Context, from, to time.Time) ([]models.DayCount, error) {
	var rows []dayCountRow
	err := r.DB.WithContext(ctx).
		Model(&models.BhavRecord{}).
		Select("trad_dt AS day, sgmt AS segment, src AS source, COUNT(*) AS count").
		Where("trad_dt BETWEEN ? AND ?", datatypes.Date(from), datatypes.Date(to)).
		Group("trad_dt, sgmt, src").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count %s rows: %w", models.BhavCopyTableName, err)
	}

	counts := make([]models.DayCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, models.DayCount{
			Date:    row.Day.UTC().Format("2006-01-02"),
			Segment: row.Segment,
			Source:  row.Source,
			Count:   row.Count,
		})
	}
	return counts, nil
}

// Exists reports whether any row is stored for the date, segment and source
func (r *BhavRepository) Exists(ctx context.Context, date time.Time, segment, source string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&models.BhavRecord{}).
		Where("trad_dt = ? AND sgmt = ? AND src = ?", datatypes.Date(date), segment, source).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check %s rows: %w", models.BhavCopyTableName, err)
	}
	return count > 0, nil
}

// Find returns the rows stored for a date, optionally narrowed to a segment, source and symbol
func (r *BhavRepository) Find(ctx context.Context, date time.Time, segment, source, symbol string) ([]models.BhavRecord, error) {
	query := r.DB.WithContext(ctx).Where("trad_dt = ?", datatypes.Date(date))
	if segment != "" {
		query = query.Where("sgmt = ?", segment)
	}
	if source != "" {
		query = query.Where("src = ?", source)
	}
	if symbol != "" {
		query = query.Where("tckr_symb = ?", symbol)
	}

	var records []models.BhavRecord
	if err := query.Order("sgmt, src, fin_instrm_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", models.BhavCopyTableName, err)
	}
	return records, nil
}
