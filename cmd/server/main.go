// Package main is the entry point for the Bhavcopy API
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/bhavcopyapi/internal/api"
	"github.com/nsvirk/bhavcopyapi/internal/api/middleware"
	"github.com/nsvirk/bhavcopyapi/internal/archive"
	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/config"
	"github.com/nsvirk/bhavcopyapi/internal/repository"
	"github.com/nsvirk/bhavcopyapi/internal/service"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
)

func main() {
	// Load configuration
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Print the configuration
	fmt.Println(cfg.String())

	// Connect to Postgres
	db, err := repository.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	// Connect Redis, optional
	redisClient, err := repository.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Init logger
	if err := zaplogger.InitLogger(db, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zaplogger.Sync()
	zaplogger.SetLogLevel(cfg.ServerLogLevel)

	zaplogger.Info(cfg.APIName + " - " + cfg.APIVersion + " initialized")
	zaplogger.Info("Postgres initialized")
	if redisClient != nil {
		zaplogger.Info("Redis initialized")
	} else {
		zaplogger.Info("Redis not configured, using local reload lock")
	}

	// Pipeline
	profiles, err := bhavcopy.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		zaplogger.Fatal("Failed to load source profiles", zaplogger.Fields{"error": err.Error()})
	}

	sessions := bhavcopy.NewSessionProvider(cfg.HTTPTimeout, cfg.RequestInterval)
	fetcher := bhavcopy.NewFetcher(sessions, bhavcopy.FetcherConfig{
		MaxAttempts: cfg.FetchMaxAttempts,
		BackoffBase: cfg.FetchBackoffBase,
		MaxBytes:    cfg.FetchMaxBytes,
	})

	var archiver archive.Archiver = archive.Nop{}
	if cfg.ArchiveBucket != "" {
		s3Archiver, err := archive.NewS3(context.Background(), cfg.ArchiveBucket, cfg.ArchiveRegion, cfg.ArchivePrefix)
		if err != nil {
			zaplogger.Fatal("Failed to initialize S3 archive", zaplogger.Fields{"error": err.Error()})
		}
		archiver = s3Archiver
		zaplogger.Info("S3 archive initialized", zaplogger.Fields{"bucket": cfg.ArchiveBucket})
	}

	reloadService, err := service.NewReloadService(db, profiles, fetcher,
		service.NewReloadLock(redisClient, cfg.ReloadLockTTL),
		archiver,
		service.ReloadOptions{
			DataDir:         cfg.DataDir,
			UpsertBatchSize: cfg.UpsertBatchSize,
			McxBatchSize:    cfg.McxBatchSize,
			Notifier:        service.NewPublishService(redisClient),
		})
	if err != nil {
		zaplogger.Fatal("Failed to initialize reload service", zaplogger.Fields{"error": err.Error()})
	}
	reportService := service.NewReportService(db)

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Setup middleware
	middleware.SetupLoggerMiddleware(e)

	cronService := service.NewCronService(cfg, reloadService)

	// Setup routes
	api.SetupRoutes(e, cfg, reloadService, reportService, cronService)

	// Start cron jobs
	if cfg.CronEnabled {
		cronService.Start()
	}

	// Start the server
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	startServer(ctx, e, cfg)

	if cfg.CronEnabled {
		cronService.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}
}

// startServer runs the Echo server on the configured port until ctx is done
func startServer(ctx context.Context, e *echo.Echo, cfg *config.Config) {
	port := cfg.ServerPort
	if port == "" {
		port = "3007"
	}

	go func() {
		zaplogger.Info("SERVER STARTED ON PORT " + port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zaplogger.Fatal("Server stopped", zaplogger.Fields{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	zaplogger.Info("SHUTTING DOWN SERVER")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zaplogger.Error("Server shutdown failed", zaplogger.Fields{"error": err.Error()})
	}
}
