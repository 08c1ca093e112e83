package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/config"
	"github.com/nsvirk/bhavcopyapi/internal/repository"
	"github.com/nsvirk/bhavcopyapi/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubFetcher map[string][]byte

func (f stubFetcher) Fetch(_ context.Context, profile bhavcopy.SourceProfile, _ time.Time) ([]byte, error) {
	raw, ok := f[profile.Key()]
	if !ok {
		return nil, bhavcopy.NewError(bhavcopy.KindNotFound, "fetch", nil, "no file for %s", profile.Key())
	}
	return raw, nil
}

type apiResponse struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	ErrorType string          `json:"error_type"`
	Message   string          `json:"message"`
	Retryable *bool           `json:"retryable"`
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "bhav.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	fetcher := stubFetcher{
		"BSE_CM": []byte("TradDt,BizDt,Sgmt,Src,FinInstrmTp,FinInstrmId,TckrSymb,ClsPric\n" +
			"2025-02-10,2025-02-10,CM,BSE,STK,500325,RELIANCE,1269.95\n" +
			"2025-02-10,2025-02-10,CM,BSE,STK,500180,HDFCBANK,1701.10\n"),
	}
	reloadService, err := service.NewReloadService(db, bhavcopy.DefaultProfiles(), fetcher, service.NewMemoryLock(), nil, service.ReloadOptions{DataDir: t.TempDir()})
	require.NoError(t, err)

	cfg := &config.Config{APIName: "Bhavcopy API", APIVersion: "v1", BackfillDays: 1}
	e := echo.New()
	SetupRoutes(e, cfg, reloadService, service.NewReportService(db), service.NewCronService(cfg, reloadService))
	return e
}

func get(t *testing.T, e *echo.Echo, target string) (int, apiResponse) {
	t.Helper()
	return do(t, e, http.MethodGet, target)
}

func do(t *testing.T, e *echo.Echo, method, target string) (int, apiResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestIndexRoute(t *testing.T) {
	code, body := get(t, newTestServer(t), "/api/")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"Bhavcopy API v1"`, string(body.Data))
}

func TestReloadRoute(t *testing.T) {
	e := newTestServer(t)

	code, body := get(t, e, "/api/bhavcopy/reload/2025-02-10?source=bse&segment=cm")
	require.Equal(t, http.StatusOK, code, body.Message)
	var result service.ReloadResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.Summary.Inserted)

	code, body = get(t, e, "/api/bhavcopy/reload/10-02-2025?source=BSE&segment=CM")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.True(t, result.AlreadyExists)

	code, body = get(t, e, "/api/bhavcopy/reload/2025-02-10?source=BSE&segment=CM&force=true")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, int64(2), result.Summary.Updated)
}

func TestReloadRouteErrors(t *testing.T) {
	e := newTestServer(t)

	code, body := get(t, e, "/api/bhavcopy/reload/not-a-date")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(bhavcopy.KindInvalidInput), body.ErrorType)

	code, _ = get(t, e, "/api/bhavcopy/reload/2025-02-10?segment=XX")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = get(t, e, "/api/bhavcopy/reload/mcx/2025-02-10")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, string(bhavcopy.KindNotFound), body.ErrorType)
	require.NotNil(t, body.Retryable)
	assert.False(t, *body.Retryable)

	var result service.ReloadResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, "MCX", result.Source)
	assert.False(t, result.Success)
}

func TestDataAndRowsRoutes(t *testing.T) {
	e := newTestServer(t)
	code, _ := get(t, e, "/api/bhavcopy/reload/2025-02-10?source=BSE&segment=CM")
	require.Equal(t, http.StatusOK, code)

	code, body := get(t, e, "/api/bhavcopy/data?from=2025-02-10&to=2025-02-11&segment=CM&source=BSE,NSE&per_page=3")
	require.Equal(t, http.StatusOK, code, body.Message)
	var page struct {
		Results []struct {
			Date        string `json:"date"`
			Source      string `json:"source"`
			RecordCount int64  `json:"record_count"`
			Status      string `json:"status"`
		} `json:"results"`
		TotalResults int  `json:"total_results"`
		HasNext      bool `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.Equal(t, 4, page.TotalResults)
	assert.True(t, page.HasNext)
	require.Len(t, page.Results, 3)
	assert.Equal(t, "2025-02-11", page.Results[0].Date)
	assert.Equal(t, "2025-02-10", page.Results[2].Date)
	assert.Equal(t, "BSE", page.Results[2].Source)
	assert.Equal(t, int64(2), page.Results[2].RecordCount)
	assert.Equal(t, "Success", page.Results[2].Status)

	code, _ = get(t, e, "/api/bhavcopy/data?status=maybe")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = get(t, e, "/api/bhavcopy/rows/2025-02-10?source=bse&symbol=RELIANCE")
	require.Equal(t, http.StatusOK, code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "RELIANCE", rows[0]["TckrSymb"])

	code, body = get(t, e, "/api/bhavcopy/reloads?date=2025-02-10")
	require.Equal(t, http.StatusOK, code)
	var logs []map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Data, &logs))
	assert.Len(t, logs, 1)

	code, body = get(t, e, "/api/bhavcopy/mcx/data?date=2025-02-10")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "MCX", page.Results[0].Source)
	assert.Equal(t, "Failed/Not Present", page.Results[0].Status)
}

func TestProfilesRoute(t *testing.T) {
	code, body := get(t, newTestServer(t), "/api/bhavcopy/profiles")
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Sources  []bhavcopy.Source        `json:"sources"`
		Profiles []bhavcopy.SourceProfile `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, []bhavcopy.Source{bhavcopy.SourceNSE, bhavcopy.SourceBSE, bhavcopy.SourceMCX}, data.Sources)
	assert.Len(t, data.Profiles, 7)
}

func TestJobReloadRoute(t *testing.T) {
	e := newTestServer(t)

	code, body := do(t, e, http.MethodPost, "/api/bhavcopy/jobs/reload/2025-02-10")
	require.Equal(t, http.StatusOK, code)
	var results []service.ReloadResult
	require.NoError(t, json.Unmarshal(body.Data, &results))
	require.Len(t, results, 7)

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
			assert.Equal(t, "BSE", r.Source)
		}
	}
	assert.Equal(t, 1, succeeded)

	code, _ = do(t, e, http.MethodPost, "/api/bhavcopy/jobs/reload/someday")
	assert.Equal(t, http.StatusBadRequest, code)
}
