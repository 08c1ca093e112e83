package bhavcopy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
)

// SessionAcquirer opens exchange sessions and paces requests
type SessionAcquirer interface {
	Acquire(ctx context.Context, profile SourceProfile) (*Session, error)
	Wait(ctx context.Context, src Source) error
}

// FetcherConfig tunes the retry policy of a Fetcher
type FetcherConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	MaxBytes    int64
}

// Fetcher downloads dated bhavcopy payloads
type Fetcher struct {
	sessions    SessionAcquirer
	maxAttempts int
	backoffBase time.Duration
	maxBytes    int64
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher acquiring sessions from sessions
func NewFetcher(sessions SessionAcquirer, cfg FetcherConfig) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 256 << 20
	}
	return &Fetcher{
		sessions:    sessions,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		maxBytes:    cfg.MaxBytes,
		sleep:       sleepContext,
	}
}

// Fetch downloads the payload of profile for date.
// It retries network failures with exponential backoff and renews the session after a 403.
func (f *Fetcher) Fetch(ctx context.Context, profile SourceProfile, date time.Time) ([]byte, error) {
	const op = "fetch"
	day := date.Format(DateLayout)
	bo := f.newBackOff()

	var (
		sess       *Session
		lastStatus int
		lastErr    error
	)

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if sess == nil {
			s, err := f.sessions.Acquire(ctx, profile)
			if err != nil {
				return nil, err
			}
			sess = s
		}

		if err := f.sessions.Wait(ctx, profile.Source); err != nil {
			return nil, wrapError(KindFetchFailed, op, err, "pacing interrupted for %s", day)
		}

		status, body, err := f.do(ctx, sess, profile, date)
		if err != nil {
			if ctx.Err() != nil {
				return nil, wrapError(KindFetchFailed, op, ctx.Err(), "download of %s %s cancelled", profile.Key(), day)
			}
			lastStatus, lastErr = 0, err
			zaplogger.Warn("Download failed", zaplogger.Fields{
				"profile": profile.Key(),
				"date":    day,
				"attempt": attempt,
				"error":   err.Error(),
			})
			if attempt < f.maxAttempts {
				if err := f.sleep(ctx, bo.NextBackOff()); err != nil {
					return nil, wrapError(KindFetchFailed, op, err, "backoff interrupted for %s", day)
				}
			}
			continue
		}

		switch {
		case status >= 200 && status <= 299:
			if marker := blockMarker(body, profile.Session.BlockMarkers); marker != "" {
				e := newError(KindBlocked, op, "%s blocked access for %s (%q in response)", profile.Source, day, marker)
				e.StatusCode = status
				return nil, e
			}
			zaplogger.Info("File downloaded", zaplogger.Fields{
				"profile": profile.Key(),
				"date":    day,
				"bytes":   len(body),
				"attempt": attempt,
			})
			return body, nil

		case status == http.StatusNotFound:
			e := newError(KindNotFound, op, "file for %s not found on %s server", day, profile.Source)
			e.StatusCode = status
			return nil, e

		case status == http.StatusForbidden:
			zaplogger.Warn("Forbidden, renewing session", zaplogger.Fields{
				"profile": profile.Key(),
				"date":    day,
				"attempt": attempt,
			})
			sess = nil
			lastStatus, lastErr = status, nil

		default:
			zaplogger.Warn("Unexpected status", zaplogger.Fields{
				"profile": profile.Key(),
				"date":    day,
				"attempt": attempt,
				"status":  status,
			})
			lastStatus, lastErr = status, nil
			if (status >= 500 || status == http.StatusTooManyRequests) && attempt < f.maxAttempts {
				if err := f.sleep(ctx, bo.NextBackOff()); err != nil {
					return nil, wrapError(KindFetchFailed, op, err, "backoff interrupted for %s", day)
				}
			}
		}
	}

	if lastStatus == http.StatusForbidden {
		e := newError(KindBlocked, op, "%s kept refusing %s after %d attempts", profile.Source, day, f.maxAttempts)
		e.StatusCode = lastStatus
		return nil, e
	}
	if lastErr != nil {
		return nil, wrapError(KindFetchFailed, op, lastErr, "download of %s %s failed after %d attempts", profile.Key(), day, f.maxAttempts)
	}
	e := newError(KindFetchFailed, op, "download of %s %s failed with status %d", profile.Key(), day, lastStatus)
	e.StatusCode = lastStatus
	return nil, e
}

func (f *Fetcher) do(ctx context.Context, sess *Session, profile SourceProfile, date time.Time) (int, []byte, error) {
	var body io.Reader
	if b := profile.Body(date); b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, profile.Method, profile.URL(date), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header = profile.RequestHeaders()

	resp, err := sess.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return 0, nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return 0, nil, &Error{Kind: KindFetchFailed, Op: "fetch", Message: "response exceeds size limit"}
	}
	return resp.StatusCode, data, nil
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.backoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 64 * f.backoffBase
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// blockMarker returns the first marker found in a non-archive body
func blockMarker(body []byte, markers []string) string {
	if isZip(body) {
		return ""
	}
	for _, m := range markers {
		if m != "" && bytes.Contains(body, []byte(m)) {
			return m
		}
	}
	return ""
}
