// Package api contains the API routes for the Bhavcopy API
package api

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/nsvirk/bhavcopyapi/internal/api/handlers"
	"github.com/nsvirk/bhavcopyapi/internal/config"
	"github.com/nsvirk/bhavcopyapi/internal/service"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/response"
)

// SetupRoutes configures the routes for the API
func SetupRoutes(e *echo.Echo, cfg *config.Config, reloadService *service.ReloadService, reportService *service.ReportService, cronService *service.CronService) {

	// Create a group for all API routes
	api := e.Group("/api")

	// Index route
	api.GET("/", indexRoute(cfg))

	// Bhavcopy routes
	bhavcopyHandler := handlers.NewBhavcopyHandler(reloadService, reportService)
	bhavcopyGroup := api.Group("/bhavcopy")
	bhavcopyGroup.GET("/data", bhavcopyHandler.GetData)
	bhavcopyGroup.GET("/rows/:date", bhavcopyHandler.GetRows)
	bhavcopyGroup.GET("/reload/:date", bhavcopyHandler.Reload)
	bhavcopyGroup.GET("/reloads", bhavcopyHandler.GetReloads)
	bhavcopyGroup.GET("/profiles", bhavcopyHandler.GetProfiles)

	// MCX routes
	bhavcopyGroup.GET("/mcx/data", bhavcopyHandler.GetMcxData)
	bhavcopyGroup.GET("/mcx/rows/:date", bhavcopyHandler.GetMcxRows)
	bhavcopyGroup.GET("/reload/mcx/:date", bhavcopyHandler.ReloadMcx)

	// Job routes
	cronHandler := handlers.NewCronHandler(cronService)
	jobGroup := bhavcopyGroup.Group("/jobs")
	jobGroup.POST("/reload/:date", cronHandler.ReloadDay)
	jobGroup.POST("/backfill", cronHandler.Backfill)
}

// indexRoute returns the handler for the API index
func indexRoute(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		message := fmt.Sprintf("%s %s", cfg.APIName, cfg.APIVersion)
		return response.SuccessResponse(c, message)
	}
}
