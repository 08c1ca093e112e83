package bhavcopy

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"golang.org/x/time/rate"
)

// Session is a cookie-carrying HTTP client warmed up against one exchange.
// Headers are the warm-up headers; data requests add the profile's overrides.
type Session struct {
	Client  *http.Client
	Headers http.Header
	Source  Source
}

// SessionProvider opens sessions and paces requests per exchange
type SessionProvider struct {
	timeout  time.Duration
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	limiters map[Source]*rate.Limiter
}

// NewSessionProvider creates a provider whose requests time out after timeout
// and are spaced at least interval apart per exchange. A zero interval disables pacing.
func NewSessionProvider(timeout, interval time.Duration) *SessionProvider {
	return &SessionProvider{
		timeout:  timeout,
		interval: interval,
		sleep:    sleepContext,
		limiters: make(map[Source]*rate.Limiter),
	}
}

// Acquire opens a session for the profile's exchange by visiting its warm-up pages
func (p *SessionProvider) Acquire(ctx context.Context, profile SourceProfile) (*Session, error) {
	const op = "acquire session"

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, wrapError(KindSessionUnavailable, op, err, "cannot create cookie jar")
	}

	sess := &Session{
		Client:  &http.Client{Jar: jar, Timeout: p.timeout},
		Headers: profile.SessionHeaders(),
		Source:  profile.Source,
	}

	for _, warmupURL := range profile.Session.WarmupURLs {
		if err := p.Wait(ctx, profile.Source); err != nil {
			return nil, wrapError(KindSessionUnavailable, op, err, "pacing interrupted")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, warmupURL, nil)
		if err != nil {
			return nil, wrapError(KindSessionUnavailable, op, err, "invalid warm-up url %s", warmupURL)
		}
		req.Header = sess.Headers.Clone()

		resp, err := sess.Client.Do(req)
		if err != nil {
			return nil, wrapError(KindSessionUnavailable, op, err, "warm-up request to %s failed", warmupURL)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			e := newError(KindSessionUnavailable, op, "warm-up %s returned %d", warmupURL, resp.StatusCode)
			e.StatusCode = resp.StatusCode
			return nil, e
		}
	}

	if profile.Session.WarmupDelay > 0 {
		if err := p.sleep(ctx, profile.Session.WarmupDelay); err != nil {
			return nil, wrapError(KindSessionUnavailable, op, err, "warm-up delay interrupted")
		}
	}

	zaplogger.Debug("Session acquired", zaplogger.Fields{
		"source":  profile.Source,
		"cookies": len(cookieNames(sess, profile)),
	})

	return sess, nil
}

// Wait blocks until the next request to src is allowed
func (p *SessionProvider) Wait(ctx context.Context, src Source) error {
	if p.interval <= 0 {
		return nil
	}
	return p.limiter(src).Wait(ctx)
}

func (p *SessionProvider) limiter(src Source) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[src]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[src] = l
	}
	return l
}

func cookieNames(sess *Session, profile SourceProfile) []string {
	var names []string
	for _, raw := range profile.Session.WarmupURLs {
		req, err := http.NewRequest(http.MethodGet, raw, nil)
		if err != nil {
			continue
		}
		for _, c := range sess.Client.Jar.Cookies(req.URL) {
			names = append(names, c.Name)
		}
	}
	return names
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
