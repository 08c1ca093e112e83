// Package models contains the models for the Bhavcopy API
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BhavMcxTableName is the name of the table for commodity exchange bhavcopy rows
var BhavMcxTableName = "bhav_mcx"

// BhavMcxRecord is one row of the MCX date-wise bhavcopy
type BhavMcxRecord struct {
	ID                uint64           `gorm:"primaryKey;autoIncrement" json:"-"`
	Date              datatypes.Date   `gorm:"not null;uniqueIndex:uidx_mcx_key,priority:1" json:"date"`
	Symbol            string           `gorm:"size:64;not null;uniqueIndex:uidx_mcx_key,priority:2" json:"symbol"`
	ExpiryDate        datatypes.Date   `gorm:"not null;uniqueIndex:uidx_mcx_key,priority:3" json:"expiry_date"`
	OpenPrice         *decimal.Decimal `gorm:"type:numeric(20,4)" json:"open_price"`
	HighPrice         *decimal.Decimal `gorm:"type:numeric(20,4)" json:"high_price"`
	LowPrice          *decimal.Decimal `gorm:"type:numeric(20,4)" json:"low_price"`
	ClosePrice        *decimal.Decimal `gorm:"type:numeric(20,4)" json:"close_price"`
	PreviousClose     *decimal.Decimal `gorm:"type:numeric(20,4)" json:"previous_close"`
	Volume            *int64           `json:"volume"`
	VolumeInThousands string           `gorm:"size:32" json:"volume_in_thousands"`
	Value             *decimal.Decimal `gorm:"type:numeric(24,4)" json:"value"`
	OpenInterest      *int64           `json:"open_interest"`
	DateDisplay       string           `gorm:"size:32" json:"date_display"`
	InstrumentName    string           `gorm:"size:32;not null;uniqueIndex:uidx_mcx_key,priority:4" json:"instrument_name"`
	StrikePrice       decimal.Decimal  `gorm:"type:numeric(20,4);not null;default:0;uniqueIndex:uidx_mcx_key,priority:5" json:"strike_price"`
	OptionType        string           `gorm:"size:8;not null;default:'';uniqueIndex:uidx_mcx_key,priority:6" json:"option_type"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the BhavMcxRecord model
func (BhavMcxRecord) TableName() string {
	return BhavMcxTableName
}

// NaturalKey returns the columns identifying the row across reloads
func (r *BhavMcxRecord) NaturalKey() map[string]interface{} {
	return map[string]interface{}{
		"date":            r.Date,
		"symbol":          r.Symbol,
		"expiry_date":     r.ExpiryDate,
		"instrument_name": r.InstrumentName,
		"strike_price":    r.StrikePrice,
		"option_type":     r.OptionType,
	}
}

// RefreshColumns returns the columns a reload is allowed to overwrite
func (r *BhavMcxRecord) RefreshColumns() map[string]interface{} {
	return map[string]interface{}{
		"open_price":     r.OpenPrice,
		"high_price":     r.HighPrice,
		"low_price":      r.LowPrice,
		"close_price":    r.ClosePrice,
		"previous_close": r.PreviousClose,
		"volume":         r.Volume,
		"value":          r.Value,
		"open_interest":  r.OpenInterest,
		"updated_at":     r.UpdatedAt,
	}
}

// Stamp sets both timestamps ahead of an upsert
func (r *BhavMcxRecord) Stamp(now time.Time) {
	r.CreatedAt = now
	r.UpdatedAt = now
}
