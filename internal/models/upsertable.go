// Package models contains the models for the Bhavcopy API
package models

import "time"

// Upsertable is a row the upsert engine can insert or refresh by natural key
type Upsertable interface {
	TableName() string
	NaturalKey() map[string]interface{}
	RefreshColumns() map[string]interface{}
	Stamp(now time.Time)
}

var (
	_ Upsertable = (*BhavRecord)(nil)
	_ Upsertable = (*BhavMcxRecord)(nil)
)
