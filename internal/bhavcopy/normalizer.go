package bhavcopy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// maxRowErrors bounds the row errors kept in memory; Skipped keeps counting past it
const maxRowErrors = 1000

// RowError describes a source row that was skipped
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// StreamStats reports what a stream dropped or coerced while reading
type StreamStats interface {
	Err() error
	RowErrors() []RowError
	Skipped() int
	NulledFields() int
}

// streamStats holds the bookkeeping shared by every stream
type streamStats struct {
	err       error
	rowErrors []RowError
	skipped   int
	nulled    int
}

func (s *streamStats) skip(line int, format string, args ...interface{}) {
	s.skipped++
	if len(s.rowErrors) < maxRowErrors {
		s.rowErrors = append(s.rowErrors, RowError{Line: line, Reason: fmt.Sprintf(format, args...)})
	}
}

func (s *streamStats) Err() error             { return s.err }
func (s *streamStats) RowErrors() []RowError { return s.rowErrors }
func (s *streamStats) Skipped() int          { return s.skipped }
func (s *streamStats) NulledFields() int     { return s.nulled }

// coercer converts text fields, counting non-empty values it had to null out
type coercer struct {
	nulled int
}

func (c *coercer) decimal(s string) *decimal.Decimal {
	s = cleanNumber(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		c.nulled++
		return nil
	}
	return &d
}

func (c *coercer) int64(s string) *int64 {
	s = cleanNumber(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	// some files render integers as 1234.00 or 1.2E+4
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		c.nulled++
		return nil
	}
	n := d.IntPart()
	return &n
}

func (c *coercer) date(s string) *datatypes.Date {
	if cleanNumber(s) == "" {
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		c.nulled++
		return nil
	}
	d := datatypes.Date(t)
	return &d
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "-", "NA", "N/A", "nan", "NaN", "null":
		return ""
	}
	return strings.ReplaceAll(s, ",", "")
}

var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"02-01-2006",
	"20060102",
	"02 Jan 2006",
	"02Jan2006",
	"01/02/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var errBadDate = errors.New("unrecognized date")

// ParseDate parses the date formats exchanges publish and returns UTC midnight.
// Month names match case-insensitively, so 28FEB2025 parses.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errBadDate, s)
}

// Day truncates t to its calendar date at UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
