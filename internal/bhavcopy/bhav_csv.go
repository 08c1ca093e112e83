package bhavcopy

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nsvirk/bhavcopyapi/internal/models"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"gorm.io/datatypes"
)

// UDiFF column names in published order
var udiffColumns = []string{
	"TradDt", "BizDt", "Sgmt", "Src", "FinInstrmTp", "FinInstrmId", "ISIN", "TckrSymb",
	"SctySrs", "XpryDt", "FininstrmActlXpryDt", "StrkPric", "OptnTp", "FinInstrmNm",
	"OpnPric", "HghPric", "LwPric", "ClsPric", "LastPric", "PrvsClsgPric", "UndrlygPric",
	"SttlmPric", "OpnIntrst", "ChngInOpnIntrst", "TtlTradgVol", "TtlTrfVal",
	"TtlNbOfTxsExctd", "SsnId", "NewBrdLotQty", "Rmks", "Rsvd1", "Rsvd2", "Rsvd3", "Rsvd4",
}

var udiffRequired = []string{"TradDt", "BizDt", "Sgmt", "Src", "FinInstrmId", "TckrSymb"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BhavStream reads a UDiFF CSV file one record at a time
type BhavStream struct {
	streamStats

	file    *os.File
	reader  *csv.Reader
	index   map[string]int
	minCols int
	done    bool
}

// OpenBhavCSV opens a UDiFF bhavcopy and validates its header
func OpenBhavCSV(path string) (*BhavStream, error) {
	const op = "normalize"

	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError(KindFileNotFound, op, err, "cannot open %s", path)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, newError(KindSchemaMismatch, op, "%s is empty", path)
		}
		return nil, wrapError(KindSchemaMismatch, op, err, "cannot read header of %s", path)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = string(bytes.TrimPrefix([]byte(name), utf8BOM))
		}
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	minCols := 0
	for _, col := range udiffRequired {
		i, ok := index[strings.ToLower(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		if i+1 > minCols {
			minCols = i + 1
		}
	}
	if len(missing) > 0 {
		f.Close()
		return nil, newError(KindSchemaMismatch, op, "%s is missing required columns %s", path, strings.Join(missing, ", "))
	}

	var absent []string
	for _, col := range udiffColumns {
		if _, ok := index[strings.ToLower(col)]; !ok {
			absent = append(absent, col)
		}
	}
	if len(absent) > 0 {
		zaplogger.Debug("Optional columns absent", zaplogger.Fields{"path": path, "columns": absent})
	}

	return &BhavStream{file: f, reader: r, index: index, minCols: minCols}, nil
}

// Next returns the next valid record, skipping and recording malformed rows
func (s *BhavStream) Next() (*models.BhavRecord, bool) {
	for !s.done {
		row, err := s.reader.Read()
		if err != nil {
			var perr *csv.ParseError
			switch {
			case errors.Is(err, io.EOF):
				s.done = true
			case errors.As(err, &perr):
				s.skip(perr.Line, "malformed row: %v", perr.Err)
				continue
			default:
				s.err = wrapError(KindUnexpected, "normalize", err, "read failed")
				s.done = true
			}
			return nil, false
		}

		line, _ := s.reader.FieldPos(0)
		if isBlank(row) {
			continue
		}
		if len(row) < s.minCols {
			s.skip(line, "expected at least %d fields, got %d", s.minCols, len(row))
			continue
		}

		rec, reason, nulled := s.convert(row)
		if rec == nil {
			s.skip(line, "%s", reason)
			continue
		}
		s.nulled += nulled
		return rec, true
	}
	return nil, false
}

func (s *BhavStream) convert(row []string) (*models.BhavRecord, string, int) {
	get := func(col string) string {
		i, ok := s.index[strings.ToLower(col)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	tradDt, err := ParseDate(get("TradDt"))
	if err != nil {
		return nil, "invalid TradDt: " + err.Error(), 0
	}
	bizDt, err := ParseDate(get("BizDt"))
	if err != nil {
		return nil, "invalid BizDt: " + err.Error(), 0
	}
	id, err := strconv.ParseInt(get("FinInstrmId"), 10, 64)
	if err != nil || id <= 0 {
		return nil, "invalid FinInstrmId " + strconv.Quote(get("FinInstrmId")), 0
	}
	sgmt, src, symbol := get("Sgmt"), get("Src"), get("TckrSymb")
	if sgmt == "" || src == "" || symbol == "" {
		return nil, "empty Sgmt, Src or TckrSymb", 0
	}

	var c coercer
	rec := &models.BhavRecord{
		TradDt:              datatypes.Date(tradDt),
		BizDt:               datatypes.Date(bizDt),
		Sgmt:                strings.ToUpper(sgmt),
		Src:                 strings.ToUpper(src),
		FinInstrmTp:         get("FinInstrmTp"),
		FinInstrmId:         id,
		ISIN:                get("ISIN"),
		TckrSymb:            symbol,
		SctySrs:             get("SctySrs"),
		XpryDt:              c.date(get("XpryDt")),
		FininstrmActlXpryDt: c.date(get("FininstrmActlXpryDt")),
		StrkPric:            c.decimal(get("StrkPric")),
		OptnTp:              get("OptnTp"),
		FinInstrmNm:         get("FinInstrmNm"),
		OpnPric:             c.decimal(get("OpnPric")),
		HghPric:             c.decimal(get("HghPric")),
		LwPric:              c.decimal(get("LwPric")),
		ClsPric:             c.decimal(get("ClsPric")),
		LastPric:            c.decimal(get("LastPric")),
		PrvsClsgPric:        c.decimal(get("PrvsClsgPric")),
		UndrlygPric:         c.decimal(get("UndrlygPric")),
		SttlmPric:           c.decimal(get("SttlmPric")),
		OpnIntrst:           c.int64(get("OpnIntrst")),
		ChngInOpnIntrst:     c.int64(get("ChngInOpnIntrst")),
		TtlTradgVol:         c.int64(get("TtlTradgVol")),
		TtlTrfVal:           c.decimal(get("TtlTrfVal")),
		TtlNbOfTxsExctd:     c.int64(get("TtlNbOfTxsExctd")),
		SsnId:               get("SsnId"),
		NewBrdLotQty:        c.int64(get("NewBrdLotQty")),
		Rmks:                get("Rmks"),
		Rsvd1:               get("Rsvd1"),
		Rsvd2:               get("Rsvd2"),
		Rsvd3:               get("Rsvd3"),
		Rsvd4:               get("Rsvd4"),
	}
	return rec, "", c.nulled
}

// Close releases the underlying file
func (s *BhavStream) Close() error {
	s.done = true
	return s.file.Close()
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
