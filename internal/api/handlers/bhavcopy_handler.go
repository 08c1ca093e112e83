// Package handlers contains the handlers for the API
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/repository"
	"github.com/nsvirk/bhavcopyapi/internal/service"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/response"
)

// BhavcopyHandler is the handler for bhavcopy reloads and queries
type BhavcopyHandler struct {
	ReloadService *service.ReloadService
	ReportService *service.ReportService
}

// NewBhavcopyHandler creates a new BhavcopyHandler
func NewBhavcopyHandler(reloadService *service.ReloadService, reportService *service.ReportService) *BhavcopyHandler {
	return &BhavcopyHandler{
		ReloadService: reloadService,
		ReportService: reportService,
	}
}

// GetData returns the paginated completeness report of the national exchange bhavcopies
func (h *BhavcopyHandler) GetData(c echo.Context) error {
	q, err := reportQuery(c)
	if err != nil {
		return failure(c, err, nil)
	}
	q.Segments = splitList(c.QueryParam("segment"))
	q.Sources = splitList(c.QueryParam("source"))
	return h.query(c, q)
}

// GetMcxData returns the paginated completeness report of the commodity bhavcopy
func (h *BhavcopyHandler) GetMcxData(c echo.Context) error {
	q, err := reportQuery(c)
	if err != nil {
		return failure(c, err, nil)
	}
	q.Segments = []string{repository.McxSegment}
	q.Sources = []string{repository.McxSource}
	return h.query(c, q)
}

func (h *BhavcopyHandler) query(c echo.Context, q service.ReportQuery) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))

	result, err := h.ReportService.Query(c.Request().Context(), q, page, perPage)
	if err != nil {
		return failure(c, err, nil)
	}
	return response.SuccessResponse(c, result)
}

// GetRows returns the stored national exchange rows of a date
func (h *BhavcopyHandler) GetRows(c echo.Context) error {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		return failure(c, err, nil)
	}
	rows, err := h.ReportService.Rows(c.Request().Context(), date,
		strings.ToUpper(c.QueryParam("segment")),
		strings.ToUpper(c.QueryParam("source")),
		c.QueryParam("symbol"))
	if err != nil {
		return failure(c, err, nil)
	}
	return response.SuccessResponse(c, rows)
}

// GetMcxRows returns the stored commodity rows of a date
func (h *BhavcopyHandler) GetMcxRows(c echo.Context) error {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		return failure(c, err, nil)
	}
	rows, err := h.ReportService.McxRows(c.Request().Context(), date, c.QueryParam("symbol"))
	if err != nil {
		return failure(c, err, nil)
	}
	return response.SuccessResponse(c, rows)
}

// Reload loads the national exchange bhavcopy of a date, segment and source
func (h *BhavcopyHandler) Reload(c echo.Context) error {
	segment := c.QueryParam("segment")
	if segment == "" {
		segment = string(bhavcopy.SegmentCM)
	}
	source := c.QueryParam("source")
	if source == "" {
		source = string(bhavcopy.SourceNSE)
	}

	sgmt, err := bhavcopy.ParseSegment(segment)
	if err != nil {
		return failure(c, err, nil)
	}
	src, err := bhavcopy.ParseSource(source)
	if err != nil {
		return failure(c, err, nil)
	}
	return h.reload(c, sgmt, src)
}

// ReloadMcx loads the commodity bhavcopy of a date
func (h *BhavcopyHandler) ReloadMcx(c echo.Context) error {
	return h.reload(c, bhavcopy.SegmentCOM, bhavcopy.SourceMCX)
}

func (h *BhavcopyHandler) reload(c echo.Context, sgmt bhavcopy.Segment, src bhavcopy.Source) error {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		return failure(c, err, nil)
	}
	force, _ := strconv.ParseBool(c.QueryParam("force"))

	result, err := h.ReloadService.Reload(c.Request().Context(), service.ReloadRequest{
		Date:    date,
		Segment: sgmt,
		Source:  src,
		Force:   force,
	})
	if err != nil {
		return failure(c, err, result)
	}
	return response.SuccessResponse(c, result)
}

// GetReloads returns recent reload runs, optionally for one date
func (h *BhavcopyHandler) GetReloads(c echo.Context) error {
	var date *time.Time
	if v := c.QueryParam("date"); v != "" {
		d, err := parseDateParam(v)
		if err != nil {
			return failure(c, err, nil)
		}
		date = &d
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := h.ReloadService.ReloadLogs(c.Request().Context(), date, limit)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, string(bhavcopy.KindUnexpected), err.Error())
	}
	return response.SuccessResponse(c, entries)
}

// GetProfiles returns the configured exchanges and their source profiles
func (h *BhavcopyHandler) GetProfiles(c echo.Context) error {
	return response.SuccessResponse(c, map[string]interface{}{
		"sources":  h.ReloadService.Sources(),
		"profiles": h.ReloadService.Profiles(),
	})
}

func reportQuery(c echo.Context) (service.ReportQuery, error) {
	var q service.ReportQuery

	if v := c.QueryParam("date"); v != "" {
		d, err := parseDateParam(v)
		if err != nil {
			return q, err
		}
		q.From, q.To = d, d
	}
	if v := c.QueryParam("from"); v != "" {
		d, err := parseDateParam(v)
		if err != nil {
			return q, err
		}
		q.From = d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := parseDateParam(v)
		if err != nil {
			return q, err
		}
		q.To = d
	}

	q.Status = c.QueryParam("status")
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "desc":
	case "asc":
		q.Ascending = true
	default:
		return q, bhavcopy.NewError(bhavcopy.KindInvalidInput, "query", nil, "order must be asc or desc")
	}
	return q, nil
}

func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, bhavcopy.NewError(bhavcopy.KindInvalidInput, "parse date", nil, "no `date` provided")
	}
	d, err := bhavcopy.ParseDate(v)
	if err != nil {
		return time.Time{}, bhavcopy.NewError(bhavcopy.KindInvalidInput, "parse date", err, "invalid date %q", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// failure renders a pipeline error with its kind and whether a retry may help
func failure(c echo.Context, err error, data interface{}) error {
	e := bhavcopy.AsError(err)
	return response.FailureResponse(c, httpStatus(e.Kind), string(e.Kind), e.Error(), e.Retryable(), data)
}

func httpStatus(kind bhavcopy.Kind) int {
	switch kind {
	case bhavcopy.KindInvalidInput:
		return http.StatusBadRequest
	case bhavcopy.KindNotFound:
		return http.StatusNotFound
	case bhavcopy.KindInProgress:
		return http.StatusConflict
	case bhavcopy.KindSessionUnavailable, bhavcopy.KindBlocked, bhavcopy.KindFetchFailed:
		return http.StatusBadGateway
	case bhavcopy.KindCorruptArchive, bhavcopy.KindFileNotFound, bhavcopy.KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
