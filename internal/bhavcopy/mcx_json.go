package bhavcopy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nsvirk/bhavcopyapi/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var mcxRequired = []string{"Date", "Symbol", "ExpiryDate", "InstrumentName"}

// flexValue accepts a JSON string, number or null as text
type flexValue string

func (v *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = flexValue(s)
		return nil
	}
	*v = flexValue(b)
	return nil
}

func (v flexValue) String() string {
	return strings.TrimSpace(string(v))
}

type mcxRow struct {
	Date              flexValue `json:"Date"`
	Symbol            flexValue `json:"Symbol"`
	ExpiryDate        flexValue `json:"ExpiryDate"`
	Open              flexValue `json:"Open"`
	High              flexValue `json:"High"`
	Low               flexValue `json:"Low"`
	Close             flexValue `json:"Close"`
	PreviousClose     flexValue `json:"PreviousClose"`
	Volume            flexValue `json:"Volume"`
	VolumeInThousands flexValue `json:"VolumeInThousands"`
	Value             flexValue `json:"Value"`
	OpenInterest      flexValue `json:"OpenInterest"`
	DateDisplay       flexValue `json:"DateDisplay"`
	InstrumentName    flexValue `json:"InstrumentName"`
	StrikePrice       flexValue `json:"StrikePrice"`
	OptionType        flexValue `json:"OptionType"`
}

// McxStream reads the Data array of an MCX bhavcopy response one record at a time
type McxStream struct {
	streamStats

	file    *os.File
	dec     *json.Decoder
	pending json.RawMessage
	n       int
	done    bool
}

// OpenMcxJSON opens an MCX response saved at path and positions the stream on its first row.
// The payload is {"d": {"Data": [...]}} where d may also arrive as an encoded JSON string.
func OpenMcxJSON(path string) (*McxStream, error) {
	const op = "normalize"

	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError(KindFileNotFound, op, err, "cannot open %s", path)
	}
	fail := func(err error, format string, args ...interface{}) (*McxStream, error) {
		f.Close()
		if err == nil {
			return nil, newError(KindSchemaMismatch, op, format, args...)
		}
		return nil, wrapError(KindSchemaMismatch, op, err, format, args...)
	}

	dec := json.NewDecoder(f)
	if err := enterKey(dec, "d"); err != nil {
		return fail(err, "%s has no d object", path)
	}

	// d is sometimes double encoded
	tok, err := dec.Token()
	if err != nil {
		return fail(err, "cannot read d in %s", path)
	}
	switch t := tok.(type) {
	case string:
		dec = json.NewDecoder(strings.NewReader(t))
		if err := expectDelim(dec, '{'); err != nil {
			return fail(err, "d in %s is not an object", path)
		}
	case json.Delim:
		if t != '{' {
			return fail(nil, "d in %s is not an object", path)
		}
	default:
		return fail(nil, "d in %s is not an object", path)
	}

	if err := findKey(dec, "Data"); err != nil {
		return fail(err, "%s has no Data array", path)
	}
	if err := expectDelim(dec, '['); err != nil {
		return fail(err, "Data in %s is not an array", path)
	}

	s := &McxStream{file: f, dec: dec}
	if !dec.More() {
		s.done = true
		return s, nil
	}

	var first json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return fail(err, "cannot read first row of %s", path)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(first, &keys); err != nil {
		return fail(err, "first row of %s is not an object", path)
	}
	var missing []string
	for _, k := range mcxRequired {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fail(nil, "%s is missing required keys %s", path, strings.Join(missing, ", "))
	}

	s.pending = first
	return s, nil
}

// Next returns the next valid record, skipping and recording malformed rows
func (s *McxStream) Next() (*models.BhavMcxRecord, bool) {
	for !s.done {
		raw := s.pending
		s.pending = nil
		if raw == nil {
			if !s.dec.More() {
				s.done = true
				break
			}
			if err := s.dec.Decode(&raw); err != nil {
				s.err = wrapError(KindSchemaMismatch, "normalize", err, "malformed Data array after row %d", s.n)
				s.done = true
				break
			}
		}
		s.n++

		var row mcxRow
		if err := json.Unmarshal(raw, &row); err != nil {
			s.skip(s.n, "malformed row: %v", err)
			continue
		}
		rec, reason, nulled := convertMcx(row)
		if rec == nil {
			s.skip(s.n, "%s", reason)
			continue
		}
		s.nulled += nulled
		return rec, true
	}
	return nil, false
}

func convertMcx(row mcxRow) (*models.BhavMcxRecord, string, int) {
	date, err := ParseDate(row.Date.String())
	if err != nil {
		return nil, "invalid Date: " + err.Error(), 0
	}
	expiry, err := ParseDate(row.ExpiryDate.String())
	if err != nil {
		return nil, "invalid ExpiryDate: " + err.Error(), 0
	}
	symbol, instrument := row.Symbol.String(), row.InstrumentName.String()
	if symbol == "" || instrument == "" {
		return nil, "empty Symbol or InstrumentName", 0
	}

	var c coercer
	strike := decimal.Zero
	if d := c.decimal(row.StrikePrice.String()); d != nil {
		strike = *d
	}

	rec := &models.BhavMcxRecord{
		Date:              datatypes.Date(date),
		Symbol:            symbol,
		ExpiryDate:        datatypes.Date(expiry),
		OpenPrice:         c.decimal(row.Open.String()),
		HighPrice:         c.decimal(row.High.String()),
		LowPrice:          c.decimal(row.Low.String()),
		ClosePrice:        c.decimal(row.Close.String()),
		PreviousClose:     c.decimal(row.PreviousClose.String()),
		Volume:            c.int64(row.Volume.String()),
		VolumeInThousands: row.VolumeInThousands.String(),
		Value:             c.decimal(row.Value.String()),
		OpenInterest:      c.int64(row.OpenInterest.String()),
		DateDisplay:       row.DateDisplay.String(),
		InstrumentName:    instrument,
		StrikePrice:       strike,
		OptionType:        row.OptionType.String(),
	}
	return rec, "", c.nulled
}

// Close releases the underlying file
func (s *McxStream) Close() error {
	s.done = true
	return s.file.Close()
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.New("unexpected token " + strconv.Quote(tokenString(tok)))
	}
	return nil
}

// enterKey consumes the opening brace of an object and advances to the value of key
func enterKey(dec *json.Decoder, key string) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	return findKey(dec, key)
}

// findKey advances an object already entered to the value of key, skipping other members
func findKey(dec *json.Decoder, key string) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return errors.New("unexpected token " + strconv.Quote(tokenString(tok)))
		}
		if name == key {
			return nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return errors.New("key " + strconv.Quote(key) + " not found")
}

func tokenString(tok json.Token) string {
	switch t := tok.(type) {
	case json.Delim:
		return t.String()
	case string:
		return t
	case nil:
		return "null"
	}
	b, _ := json.Marshal(tok)
	return string(b)
}
