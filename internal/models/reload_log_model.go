// Package models contains the models for the Bhavcopy API
package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReloadLogTableName is the name of the table for reload runs
var ReloadLogTableName = "reload_logs"

// ReloadLog records the outcome of one reload invocation
type ReloadLog struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID        string         `gorm:"size:36;uniqueIndex" json:"run_id"`
	Date         datatypes.Date `gorm:"index:idx_reload_key,priority:1" json:"date"`
	Segment      string         `gorm:"size:10;index:idx_reload_key,priority:2" json:"segment"`
	Source       string         `gorm:"size:10;index:idx_reload_key,priority:3" json:"source"`
	Forced       bool           `json:"forced"`
	Success      bool           `json:"success"`
	ErrorKind    string         `gorm:"size:32" json:"error_kind,omitempty"`
	Message      string         `gorm:"type:text" json:"message"`
	Inserted     int64          `json:"inserted"`
	Updated      int64          `json:"updated"`
	Skipped      int64          `json:"skipped"`
	NulledFields int64          `json:"nulled_fields"`
	RowErrors    datatypes.JSON `json:"row_errors,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// TableName specifies the table name for the ReloadLog model
func (ReloadLog) TableName() string {
	return ReloadLogTableName
}
