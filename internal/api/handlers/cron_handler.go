// Package handlers contains the handlers for the API
package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/nsvirk/bhavcopyapi/internal/service"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/response"
)

// CronHandler runs the scheduled jobs on demand
type CronHandler struct {
	CronService *service.CronService
}

// NewCronHandler creates a new CronHandler
func NewCronHandler(cronService *service.CronService) *CronHandler {
	return &CronHandler{
		CronService: cronService,
	}
}

// ReloadDay reloads every profile for the date in the path
func (h *CronHandler) ReloadDay(c echo.Context) error {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		return failure(c, err, nil)
	}
	return response.SuccessResponse(c, h.CronService.ReloadDay(c.Request().Context(), date))
}

// Backfill loads the days missed since the last successful reload of each profile
func (h *CronHandler) Backfill(c echo.Context) error {
	return response.SuccessResponse(c, h.CronService.Backfill(c.Request().Context()))
}
