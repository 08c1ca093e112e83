// Package service contains the service layer for the Bhavcopy API
package service

import (
	"context"
	"time"

	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/config"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"github.com/robfig/cron/v3"
)

// CronService is the service for the cron jobs
type CronService struct {
	cfg           *config.Config
	c             *cron.Cron
	reloadService *ReloadService
	now           func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(cfg *config.Config, reloadService *ReloadService) *CronService {
	return &CronService{
		cfg:           cfg,
		c:             cron.New(),
		reloadService: reloadService,
		now:           time.Now,
	}
}

// Start starts the cron service
func (cs *CronService) Start() {
	zaplogger.Info("Initializing CronService")

	// ------------------------------------------------------------
	// SCHEDULED jobs
	// ------------------------------------------------------------
	cs.addScheduledJob("Bhavcopy RELOAD Job", cs.dailyReloadJob, cs.cfg.CronSchedule)

	// ------------------------------------------------------------
	// STARTUP jobs
	// ------------------------------------------------------------
	if cs.cfg.BackfillDays > 0 {
		cs.addStartupJob("Bhavcopy BACKFILL Job", cs.backfillJob, 5*time.Second)
	}

	cs.c.Start()
}

// Stop stops the scheduler and waits for running jobs
func (cs *CronService) Stop() {
	<-cs.c.Stop().Done()
}

// addStartupJob adds a startup job to the cron service
func (cs *CronService) addStartupJob(name string, job func(), delay time.Duration) {
	go func() {
		time.Sleep(delay)
		zaplogger.Info("STARTED STARTUP job", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED STARTUP job", zaplogger.Fields{
			"job": name,
		})
	}()
	zaplogger.Info("QUEUED STARTUP job", zaplogger.Fields{
		"job": name,
	})
}

func (cs *CronService) addScheduledJob(name string, job func(), schedule string) {
	_, err := cs.c.AddFunc(schedule, func() {
		zaplogger.Info("STARTED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
	})
	if err != nil {
		zaplogger.Error("FAILED TO QUEUE SCHEDULED JOB", zaplogger.Fields{
			"job":   name,
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info("QUEUED SCHEDULED job", zaplogger.Fields{
		"job":      name,
		"schedule": schedule,
	})
}

// dailyReloadJob loads today's bhavcopy of every profile
func (cs *CronService) dailyReloadJob() {
	cs.ReloadDay(context.Background(), cs.now())
}

// backfillJob loads the days missed since the last successful reload of each profile
func (cs *CronService) backfillJob() {
	cs.Backfill(context.Background())
}

// ReloadDay reloads every profile for date and returns the results in profile order
func (cs *CronService) ReloadDay(ctx context.Context, date time.Time) []ReloadResult {
	profiles := cs.reloadService.Profiles()
	results := make([]ReloadResult, 0, len(profiles))
	for _, p := range profiles {
		results = append(results, cs.reload(ctx, p, date))
	}
	return results
}

// Backfill reloads, per profile, every weekday after its last loaded date,
// looking back at most BackfillDays. Profiles never loaded start BackfillDays ago.
func (cs *CronService) Backfill(ctx context.Context) []ReloadResult {
	today := bhavcopy.Day(cs.now())
	earliest := today.AddDate(0, 0, -(cs.cfg.BackfillDays - 1))

	var results []ReloadResult
	for _, p := range cs.reloadService.Profiles() {
		start := earliest
		if last, ok := cs.reloadService.LastLoaded(p); ok && last.AddDate(0, 0, 1).After(start) {
			start = last.AddDate(0, 0, 1)
		}
		for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
			if ctx.Err() != nil {
				return results
			}
			if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
				continue
			}
			results = append(results, cs.reload(ctx, p, d))
		}
	}
	return results
}

func (cs *CronService) reload(ctx context.Context, p bhavcopy.SourceProfile, date time.Time) ReloadResult {
	jobName := "Bhavcopy RELOAD " + p.Key() + " "

	result, err := cs.reloadService.Reload(ctx, ReloadRequest{
		Date:    date,
		Segment: p.Segment,
		Source:  p.Source,
	})
	if err != nil {
		// holidays have no file
		if bhavcopy.KindOf(err) == bhavcopy.KindNotFound {
			zaplogger.Info(jobName, zaplogger.Fields{"date": result.Date, "message": result.Message})
			return result
		}
		zaplogger.Error(jobName, zaplogger.Fields{
			"date":  result.Date,
			"kind":  string(bhavcopy.KindOf(err)),
			"error": err.Error(),
		})
		return result
	}
	zaplogger.Info(jobName, zaplogger.Fields{
		"date":     result.Date,
		"inserted": result.Summary.Inserted,
		"updated":  result.Summary.Updated,
		"skipped":  result.Summary.Skipped,
	})
	return result
}
