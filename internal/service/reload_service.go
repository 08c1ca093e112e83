// Package service contains the service layer for the Bhavcopy API
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nsvirk/bhavcopyapi/internal/archive"
	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/models"
	"github.com/nsvirk/bhavcopyapi/internal/repository"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/state"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxLoggedRowErrors bounds the row errors kept on a reload log entry
const maxLoggedRowErrors = 50

// lastReloadedKeyPrefix prefixes the state key holding the newest loaded date per profile
const lastReloadedKeyPrefix = "LAST_RELOADED_"

// PayloadFetcher downloads the raw payload of a profile for a date
type PayloadFetcher interface {
	Fetch(ctx context.Context, profile bhavcopy.SourceProfile, date time.Time) ([]byte, error)
}

// ReloadRequest identifies the bhavcopy to load
type ReloadRequest struct {
	Date    time.Time
	Segment bhavcopy.Segment
	Source  bhavcopy.Source
	Force   bool
}

// Key returns YYYYMMDD_SRC_SGMT
func (r ReloadRequest) Key() string {
	return r.Date.Format(bhavcopy.DateLayout) + "_" + string(r.Source) + "_" + string(r.Segment)
}

// ReloadResult is the outcome of one reload
type ReloadResult struct {
	RunID         string                   `json:"run_id"`
	Date          string                   `json:"date"`
	Segment       string                   `json:"segment"`
	Source        string                   `json:"source"`
	Success       bool                     `json:"success"`
	AlreadyExists bool                     `json:"already_exists"`
	Message       string                   `json:"message"`
	Summary       repository.UpsertSummary `json:"summary"`
	RowErrors     []bhavcopy.RowError      `json:"row_errors,omitempty"`
}

// ReloadOptions tunes a ReloadService
type ReloadOptions struct {
	DataDir         string
	UpsertBatchSize int
	McxBatchSize    int
	Notifier        ReloadNotifier
}

// ReloadService runs the fetch, extract, normalize and upsert pipeline for one bhavcopy
type ReloadService struct {
	db       *gorm.DB
	profiles *bhavcopy.Profiles
	fetcher  PayloadFetcher
	lock     ReloadLock
	archiver archive.Archiver
	state    *state.State
	bhavRepo *repository.BhavRepository
	mcxRepo  *repository.McxRepository
	logRepo  *repository.ReloadLogRepository
	opts     ReloadOptions
	now      func() time.Time
}

// NewReloadService creates a new ReloadService
func NewReloadService(db *gorm.DB, profiles *bhavcopy.Profiles, fetcher PayloadFetcher, lock ReloadLock, archiver archive.Archiver, opts ReloadOptions) (*ReloadService, error) {
	stateManager, err := state.NewState(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}
	if lock == nil {
		lock = NewMemoryLock()
	}
	if archiver == nil {
		archiver = archive.Nop{}
	}
	if opts.DataDir == "" {
		opts.DataDir = "./bhavcopy_data"
	}
	return &ReloadService{
		db:       db,
		profiles: profiles,
		fetcher:  fetcher,
		lock:     lock,
		archiver: archiver,
		state:    stateManager,
		bhavRepo: repository.NewBhavRepository(db),
		mcxRepo:  repository.NewMcxRepository(db),
		logRepo:  repository.NewReloadLogRepository(db),
		opts:     opts,
		now:      time.Now,
	}, nil
}

// Profiles returns the configured source profiles
func (s *ReloadService) Profiles() []bhavcopy.SourceProfile {
	return s.profiles.All()
}

// Sources returns the exchanges covered by the configured profiles
func (s *ReloadService) Sources() []bhavcopy.Source {
	return s.profiles.Sources()
}

// Reload loads the bhavcopy of req into the store.
// Unless req.Force is set, a key that already has rows short-circuits with success.
// Failures are returned as *bhavcopy.Error alongside a populated result.
func (s *ReloadService) Reload(ctx context.Context, req ReloadRequest) (ReloadResult, error) {
	req.Date = bhavcopy.Day(req.Date)
	result := ReloadResult{
		RunID:   uuid.NewString(),
		Date:    req.Date.Format("2006-01-02"),
		Segment: string(req.Segment),
		Source:  string(req.Source),
	}

	profile, err := s.validate(req)
	if err != nil {
		return s.failed(result, err)
	}

	release, ok := s.lock.TryLock(ctx, req.Key())
	if !ok {
		return s.failed(result, bhavcopy.NewError(bhavcopy.KindInProgress, "reload", nil, "reload of %s %s %s is already running", req.Source, req.Segment, result.Date))
	}
	defer release()
	defer zaplogger.TimeTrack(time.Now(), "Reload "+req.Key())

	started := s.now()
	result, err = s.run(ctx, req, profile, result)
	s.record(ctx, req, result, err, started)
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(ctx, result, err)
	}
	if err != nil {
		return s.failed(result, err)
	}
	return result, nil
}

func (s *ReloadService) validate(req ReloadRequest) (bhavcopy.SourceProfile, error) {
	const op = "reload"
	if req.Date.IsZero() {
		return bhavcopy.SourceProfile{}, bhavcopy.NewError(bhavcopy.KindInvalidInput, op, nil, "date is required")
	}
	if req.Date.After(bhavcopy.Day(s.now())) {
		return bhavcopy.SourceProfile{}, bhavcopy.NewError(bhavcopy.KindInvalidInput, op, nil, "date %s is in the future", req.Date.Format("2006-01-02"))
	}
	profile, ok := s.profiles.Lookup(req.Source, req.Segment)
	if !ok {
		return bhavcopy.SourceProfile{}, bhavcopy.NewError(bhavcopy.KindInvalidInput, op, nil, "no profile for source %s segment %s", req.Source, req.Segment)
	}
	return profile, nil
}

func (s *ReloadService) run(ctx context.Context, req ReloadRequest, profile bhavcopy.SourceProfile, result ReloadResult) (ReloadResult, error) {
	fields := zaplogger.Fields{
		"run_id":  result.RunID,
		"date":    result.Date,
		"source":  profile.Source,
		"segment": profile.Segment,
	}

	if !req.Force {
		exists, err := s.exists(ctx, profile, req.Date)
		if err != nil {
			return result, err
		}
		if exists {
			result.Success = true
			result.AlreadyExists = true
			result.Message = fmt.Sprintf("Data for %s already exists", result.Date)
			zaplogger.Info("Reload skipped, data exists", fields)
			return result, nil
		}
	}

	zaplogger.Info("Reload started", fields)

	raw, err := s.fetcher.Fetch(ctx, profile, req.Date)
	if err != nil {
		return result, err
	}

	archiveName := filepath.ToSlash(filepath.Join(req.Date.Format(bhavcopy.DateLayout), profile.FlatFileName(req.Date)))
	if err := s.archiver.Archive(ctx, archiveName, raw); err != nil {
		zaplogger.Warn("Raw payload not archived", zaplogger.Fields{"run_id": result.RunID, "error": err.Error()})
	}

	path, err := bhavcopy.Extract(raw, bhavcopy.WorkDir(s.opts.DataDir, profile, req.Date), profile, req.Date)
	if err != nil {
		return result, err
	}

	var (
		summary   repository.UpsertSummary
		rowErrors []bhavcopy.RowError
	)
	switch profile.Schema {
	case bhavcopy.SchemaUDiFF:
		stream, err := bhavcopy.OpenBhavCSV(path)
		if err != nil {
			return result, err
		}
		summary, rowErrors, err = ingest[*models.BhavRecord](ctx, s.db, stream, s.opts.UpsertBatchSize)
		result.Summary, result.RowErrors = summary, rowErrors
		if err != nil {
			return result, err
		}
	case bhavcopy.SchemaMcxJSON:
		stream, err := bhavcopy.OpenMcxJSON(path)
		if err != nil {
			return result, err
		}
		summary, rowErrors, err = ingest[*models.BhavMcxRecord](ctx, s.db, stream, s.opts.McxBatchSize)
		result.Summary, result.RowErrors = summary, rowErrors
		if err != nil {
			return result, err
		}
	default:
		return result, bhavcopy.NewError(bhavcopy.KindSchemaMismatch, "reload", nil, "unknown schema %q", profile.Schema)
	}

	if summary.Inserted+summary.Updated+summary.Skipped == 0 {
		return result, bhavcopy.NewError(bhavcopy.KindNotFound, "reload", nil, "file for %s on %s has no rows", result.Date, profile.Source)
	}

	s.markLoaded(profile, req.Date)

	result.Success = true
	result.Message = fmt.Sprintf("Data for %s loaded: %d inserted, %d updated, %d skipped",
		result.Date, summary.Inserted, summary.Updated, summary.Skipped)

	fields["inserted"] = summary.Inserted
	fields["updated"] = summary.Updated
	fields["skipped"] = summary.Skipped
	fields["nulled_fields"] = summary.NulledFields
	fields["batches"] = summary.Batches
	zaplogger.Info("Reload completed", fields)

	return result, nil
}

func (s *ReloadService) exists(ctx context.Context, profile bhavcopy.SourceProfile, date time.Time) (bool, error) {
	var (
		exists bool
		err    error
	)
	if profile.Schema == bhavcopy.SchemaMcxJSON {
		exists, err = s.mcxRepo.Exists(ctx, date)
	} else {
		exists, err = s.bhavRepo.Exists(ctx, date, string(profile.Segment), string(profile.Source))
	}
	if err != nil {
		return false, bhavcopy.NewError(bhavcopy.KindUnexpected, "reload", err, "cannot check existing rows")
	}
	return exists, nil
}

// markLoaded advances the last loaded date of profile
func (s *ReloadService) markLoaded(profile bhavcopy.SourceProfile, date time.Time) {
	key := lastReloadedKeyPrefix + profile.Key()
	day := date.Format(bhavcopy.DateLayout)

	current, err := s.state.Get(key)
	if err != nil {
		zaplogger.Warn("Cannot read reload state", zaplogger.Fields{"key": key, "error": err.Error()})
		return
	}
	// YYYYMMDD sorts chronologically
	if current >= day {
		return
	}
	if err := s.state.Set(key, day); err != nil {
		zaplogger.Warn("Cannot save reload state", zaplogger.Fields{"key": key, "error": err.Error()})
	}
}

// LastLoaded returns the newest date loaded for profile, or false when nothing was loaded
func (s *ReloadService) LastLoaded(profile bhavcopy.SourceProfile) (time.Time, bool) {
	value, err := s.state.Get(lastReloadedKeyPrefix + profile.Key())
	if err != nil || value == "" {
		return time.Time{}, false
	}
	date, err := time.Parse(bhavcopy.DateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// record writes the reload log entry; failures to write it are only logged
func (s *ReloadService) record(ctx context.Context, req ReloadRequest, result ReloadResult, runErr error, started time.Time) {
	entry := &models.ReloadLog{
		RunID:        result.RunID,
		Date:         datatypes.Date(req.Date),
		Segment:      result.Segment,
		Source:       result.Source,
		Forced:       req.Force,
		Success:      runErr == nil,
		Message:      result.Message,
		Inserted:     result.Summary.Inserted,
		Updated:      result.Summary.Updated,
		Skipped:      result.Summary.Skipped,
		NulledFields: result.Summary.NulledFields,
		StartedAt:    started,
		FinishedAt:   s.now(),
	}
	if runErr != nil {
		e := bhavcopy.AsError(runErr)
		entry.ErrorKind = string(e.Kind)
		entry.Message = e.Error()
	}
	if len(result.RowErrors) > 0 {
		rowErrors := result.RowErrors
		if len(rowErrors) > maxLoggedRowErrors {
			rowErrors = rowErrors[:maxLoggedRowErrors]
		}
		if b, err := json.Marshal(rowErrors); err == nil {
			entry.RowErrors = datatypes.JSON(b)
		}
	}

	// the reload itself may have been cancelled
	ctx = context.WithoutCancel(ctx)
	if err := s.logRepo.Insert(ctx, entry); err != nil {
		zaplogger.Warn("Reload log not written", zaplogger.Fields{"run_id": result.RunID, "error": err.Error()})
	}
}

func (s *ReloadService) failed(result ReloadResult, err error) (ReloadResult, error) {
	e := bhavcopy.AsError(err)
	result.Success = false
	result.Message = e.Error()
	zaplogger.Error("Reload failed", zaplogger.Fields{
		"run_id":    result.RunID,
		"date":      result.Date,
		"source":    result.Source,
		"segment":   result.Segment,
		"kind":      string(e.Kind),
		"retryable": e.Retryable(),
		"error":     e.Error(),
	})
	return result, e
}

// ReloadLogs returns recent reload runs, optionally for one date
func (s *ReloadService) ReloadLogs(ctx context.Context, date *time.Time, limit int) ([]models.ReloadLog, error) {
	return s.logRepo.Recent(ctx, date, limit)
}

type recordStream[T models.Upsertable] interface {
	repository.RecordSource[T]
	bhavcopy.StreamStats
	Close() error
}

// ingest upserts every record of stream and folds the stream's own skips into the summary
func ingest[T models.Upsertable](ctx context.Context, db *gorm.DB, stream recordStream[T], batchSize int) (repository.UpsertSummary, []bhavcopy.RowError, error) {
	defer stream.Close()

	summary, err := repository.Upsert[T](ctx, db, stream, batchSize)
	summary.Skipped += int64(stream.Skipped())
	summary.NulledFields = int64(stream.NulledFields())
	if err == nil {
		err = stream.Err()
	}
	return summary, stream.RowErrors(), err
}
