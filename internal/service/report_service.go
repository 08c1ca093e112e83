// Package service contains the service layer for the Bhavcopy API
package service

import (
	"context"
	"strings"
	"time"

	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/models"
	"github.com/nsvirk/bhavcopyapi/internal/repository"
	"gorm.io/gorm"
)

// Report defaults
const (
	DefaultReportDays = 30
	DefaultPerPage    = 10
	MaxPerPage        = 1000
	maxReportDays     = 3660
)

var (
	defaultSegments = []string{string(bhavcopy.SegmentCM), string(bhavcopy.SegmentFO), string(bhavcopy.SegmentCD)}
	defaultSources  = []string{string(bhavcopy.SourceNSE), string(bhavcopy.SourceBSE)}
)

// ReportQuery selects the (date, segment, source) triples to report on.
// Zero values fall back to the last 30 days, segments CM, FO, CD and sources NSE, BSE.
type ReportQuery struct {
	From      time.Time
	To        time.Time
	Segments  []string
	Sources   []string
	Status    string
	Ascending bool
}

// ReportService reports per-day completeness of the stored bhavcopies
type ReportService struct {
	bhavRepo *repository.BhavRepository
	mcxRepo  *repository.McxRepository
	now      func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{
		bhavRepo: repository.NewBhavRepository(db),
		mcxRepo:  repository.NewMcxRepository(db),
		now:      time.Now,
	}
}

// Report returns one DayStatus for every date, segment and source of q that passes its status filter.
// Dates run newest first unless q.Ascending; segments and sources keep the requested order.
func (s *ReportService) Report(ctx context.Context, q ReportQuery) ([]models.DayStatus, error) {
	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}

	counts, err := s.counts(ctx, q)
	if err != nil {
		return nil, err
	}

	days := int(q.To.Sub(q.From).Hours()/24) + 1
	statuses := make([]models.DayStatus, 0, days*len(q.Segments)*len(q.Sources))
	for i := 0; i < days; i++ {
		date := q.To.AddDate(0, 0, -i)
		if q.Ascending {
			date = q.From.AddDate(0, 0, i)
		}
		day := date.Format("2006-01-02")

		for _, segment := range q.Segments {
			for _, source := range q.Sources {
				count := counts[countKey(day, segment, source)]
				status := models.StatusNotPresent
				if count > 0 {
					status = models.StatusSuccess
				}
				if q.Status != "" && q.Status != status {
					continue
				}
				statuses = append(statuses, models.DayStatus{
					Date:        day,
					Segment:     segment,
					Source:      source,
					RecordCount: count,
					Status:      status,
					Weekday:     date.Weekday().String(),
				})
			}
		}
	}
	return statuses, nil
}

// Query returns page of the Report results, perPage at a time. Pages start at 1.
func (s *ReportService) Query(ctx context.Context, q ReportQuery, page, perPage int) (models.StatusPage, error) {
	statuses, err := s.Report(ctx, q)
	if err != nil {
		return models.StatusPage{}, err
	}
	return paginate(statuses, page, perPage), nil
}

// Rows returns the stored national exchange rows for a date
func (s *ReportService) Rows(ctx context.Context, date time.Time, segment, source, symbol string) ([]models.BhavRecord, error) {
	rows, err := s.bhavRepo.Find(ctx, bhavcopy.Day(date), segment, source, symbol)
	if err != nil {
		return nil, bhavcopy.NewError(bhavcopy.KindUnexpected, "query", err, "cannot read rows")
	}
	return rows, nil
}

// McxRows returns the stored commodity rows for a date
func (s *ReportService) McxRows(ctx context.Context, date time.Time, symbol string) ([]models.BhavMcxRecord, error) {
	rows, err := s.mcxRepo.Find(ctx, bhavcopy.Day(date), symbol)
	if err != nil {
		return nil, bhavcopy.NewError(bhavcopy.KindUnexpected, "query", err, "cannot read rows")
	}
	return rows, nil
}

func (s *ReportService) normalize(q ReportQuery) (ReportQuery, error) {
	const op = "report"

	today := bhavcopy.Day(s.now())
	if q.To.IsZero() {
		q.To = today
	}
	q.To = bhavcopy.Day(q.To)
	if q.From.IsZero() {
		q.From = q.To.AddDate(0, 0, -(DefaultReportDays - 1))
	}
	q.From = bhavcopy.Day(q.From)
	if q.From.After(q.To) {
		return q, bhavcopy.NewError(bhavcopy.KindInvalidInput, op, nil, "from %s is after to %s", q.From.Format("2006-01-02"), q.To.Format("2006-01-02"))
	}
	if q.To.Sub(q.From) > maxReportDays*24*time.Hour {
		return q, bhavcopy.NewError(bhavcopy.KindInvalidInput, op, nil, "range exceeds %d days", maxReportDays)
	}

	var err error
	if q.Segments, err = normalizeCodes(q.Segments, defaultSegments, func(v string) (string, error) {
		sgmt, err := bhavcopy.ParseSegment(v)
		return string(sgmt), err
	}); err != nil {
		return q, err
	}
	if q.Sources, err = normalizeCodes(q.Sources, defaultSources, func(v string) (string, error) {
		src, err := bhavcopy.ParseSource(v)
		return string(src), err
	}); err != nil {
		return q, err
	}

	if q.Status, err = ParseStatus(q.Status); err != nil {
		return q, err
	}
	return q, nil
}

// ParseStatus maps a user supplied status filter to a DayStatus status, "" meaning any
func ParseStatus(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "all":
		return "", nil
	case "success":
		return models.StatusSuccess, nil
	case "failed", "not present", "failed/not present":
		return models.StatusNotPresent, nil
	}
	return "", bhavcopy.NewError(bhavcopy.KindInvalidInput, "report", nil, "unknown status %q", v)
}

func normalizeCodes(values, defaults []string, parse func(string) (string, error)) ([]string, error) {
	if len(values) == 0 {
		return append([]string(nil), defaults...), nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		code, err := parse(v)
		if err != nil {
			return nil, err
		}
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out, nil
}

func (s *ReportService) counts(ctx context.Context, q ReportQuery) (map[string]int64, error) {
	counts := make(map[string]int64)

	national, err := s.bhavRepo.CountByDay(ctx, q.From, q.To)
	if err != nil {
		return nil, bhavcopy.NewError(bhavcopy.KindUnexpected, "report", err, "cannot count rows")
	}
	for _, c := range national {
		counts[countKey(c.Date, c.Segment, c.Source)] += c.Count
	}

	if contains(q.Segments, repository.McxSegment) && contains(q.Sources, repository.McxSource) {
		commodity, err := s.mcxRepo.CountByDay(ctx, q.From, q.To)
		if err != nil {
			return nil, bhavcopy.NewError(bhavcopy.KindUnexpected, "report", err, "cannot count commodity rows")
		}
		for _, c := range commodity {
			counts[countKey(c.Date, c.Segment, c.Source)] += c.Count
		}
	}
	return counts, nil
}

func countKey(date, segment, source string) string {
	return date + "|" + segment + "|" + source
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func paginate(statuses []models.DayStatus, page, perPage int) models.StatusPage {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page < 1 {
		page = 1
	}

	total := len(statuses)
	totalPages := (total + perPage - 1) / perPage

	// pages past the end are empty; checking first keeps the offsets in range
	start, end := total, total
	if page <= totalPages {
		start = (page - 1) * perPage
		end = min(start+perPage, total)
	}

	return models.StatusPage{
		Results:      statuses[start:end],
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalResults: total,
		HasPrevious:  page > 1,
		HasNext:      page < totalPages,
	}
}
