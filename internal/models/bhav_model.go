// Package models contains the models for the Bhavcopy API
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BhavCopyTableName is the name of the table for national exchange bhavcopy rows
var BhavCopyTableName = "bhav_copy"

// BhavRecord is one row of an NSE/BSE UDiFF bhavcopy
type BhavRecord struct {
	ID                  uint64           `gorm:"primaryKey;autoIncrement" json:"-"`
	TradDt              datatypes.Date   `gorm:"not null;uniqueIndex:uidx_bhav_key,priority:1" json:"TradDt"`
	BizDt               datatypes.Date   `gorm:"not null" json:"BizDt"`
	Sgmt                string           `gorm:"size:10;not null;uniqueIndex:uidx_bhav_key,priority:2" json:"Sgmt"`
	Src                 string           `gorm:"size:10;not null;uniqueIndex:uidx_bhav_key,priority:3" json:"Src"`
	FinInstrmTp         string           `gorm:"size:10" json:"FinInstrmTp"`
	FinInstrmId         int64            `gorm:"not null;check:chk_bhav_fin_instrm_id,fin_instrm_id > 0;uniqueIndex:uidx_bhav_key,priority:4" json:"FinInstrmId"`
	ISIN                string           `gorm:"column:isin;size:12" json:"ISIN"`
	TckrSymb            string           `gorm:"size:64;not null;index" json:"TckrSymb"`
	SctySrs             string           `gorm:"size:5" json:"SctySrs"`
	XpryDt              *datatypes.Date  `json:"XpryDt"`
	FininstrmActlXpryDt *datatypes.Date  `json:"FininstrmActlXpryDt"`
	StrkPric            *decimal.Decimal `gorm:"type:numeric(20,4)" json:"StrkPric"`
	OptnTp              string           `gorm:"size:5" json:"OptnTp"`
	FinInstrmNm         string           `gorm:"size:255" json:"FinInstrmNm"`
	OpnPric             *decimal.Decimal `gorm:"type:numeric(20,4)" json:"OpnPric"`
	HghPric             *decimal.Decimal `gorm:"type:numeric(20,4)" json:"HghPric"`
	LwPric              *decimal.Decimal `gorm:"type:numeric(20,4)" json:"LwPric"`
	ClsPric             *decimal.Decimal `gorm:"type:numeric(20,4)" json:"ClsPric"`
	LastPric            *decimal.Decimal `gorm:"type:numeric(20,4)" json:"LastPric"`
	PrvsClsgPric        *decimal.Decimal `gorm:"type:numeric(20,4)" json:"PrvsClsgPric"`
	UndrlygPric         *decimal.Decimal `gorm:"type:numeric(20,4)" json:"UndrlygPric"`
	SttlmPric           *decimal.Decimal `gorm:"type:numeric(20,4)" json:"SttlmPric"`
	OpnIntrst           *int64           `json:"OpnIntrst"`
	ChngInOpnIntrst     *int64           `json:"ChngInOpnIntrst"`
	TtlTradgVol         *int64           `json:"TtlTradgVol"`
	TtlTrfVal           *decimal.Decimal `gorm:"type:numeric(24,4)" json:"TtlTrfVal"`
	TtlNbOfTxsExctd     *int64           `json:"TtlNbOfTxsExctd"`
	SsnId               string           `gorm:"size:5" json:"SsnId"`
	NewBrdLotQty        *int64           `json:"NewBrdLotQty"`
	Rmks                string           `gorm:"size:255" json:"Rmks"`
	Rsvd1               string           `gorm:"type:text" json:"Rsvd1"`
	Rsvd2               string           `gorm:"type:text" json:"Rsvd2"`
	Rsvd3               string           `gorm:"type:text" json:"Rsvd3"`
	Rsvd4               string           `gorm:"type:text" json:"Rsvd4"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the BhavRecord model
func (BhavRecord) TableName() string {
	return BhavCopyTableName
}

// NaturalKey returns the columns identifying the row across reloads
func (r *BhavRecord) NaturalKey() map[string]interface{} {
	return map[string]interface{}{
		"trad_dt":       r.TradDt,
		"sgmt":          r.Sgmt,
		"src":           r.Src,
		"fin_instrm_id": r.FinInstrmId,
	}
}

// RefreshColumns returns the columns a reload is allowed to overwrite
func (r *BhavRecord) RefreshColumns() map[string]interface{} {
	return map[string]interface{}{
		"opn_pric":            r.OpnPric,
		"hgh_pric":            r.HghPric,
		"lw_pric":             r.LwPric,
		"cls_pric":            r.ClsPric,
		"last_pric":           r.LastPric,
		"prvs_clsg_pric":      r.PrvsClsgPric,
		"undrlyg_pric":        r.UndrlygPric,
		"sttlm_pric":          r.SttlmPric,
		"opn_intrst":          r.OpnIntrst,
		"chng_in_opn_intrst":  r.ChngInOpnIntrst,
		"ttl_tradg_vol":       r.TtlTradgVol,
		"ttl_trf_val":         r.TtlTrfVal,
		"ttl_nb_of_txs_exctd": r.TtlNbOfTxsExctd,
		"updated_at":          r.UpdatedAt,
	}
}

// Stamp sets both timestamps ahead of an upsert
func (r *BhavRecord) Stamp(now time.Time) {
	r.CreatedAt = now
	r.UpdatedAt = now
}
