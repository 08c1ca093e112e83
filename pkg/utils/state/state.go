// Package state persists small key/value markers such as the last reloaded date
package state

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateTableName is the name of the table for state entries
var StateTableName = "state"

// Entry is a single key/value marker
type Entry struct {
	Key       string `gorm:"primaryKey;column:state_key"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for Entry
func (Entry) TableName() string {
	return StateTableName
}

// State reads and writes entries
type State struct {
	db *gorm.DB
}

// NewState migrates the state table and returns a State
func NewState(db *gorm.DB) (*State, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &State{db: db}, nil
}

// Get returns the value for key, or "" when unset
func (s *State) Get(key string) (string, error) {
	var entry Entry
	err := s.db.Where("state_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return entry.Value, nil
}

// Set creates or replaces the value for key
func (s *State) Set(key, value string) error {
	now := time.Now()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Entry{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}).Error
}
