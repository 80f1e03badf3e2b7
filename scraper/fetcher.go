package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/go-scrape-members/config"
)

// Fetcher issues polite HTTP GETs with bounded retries and exponential
// backoff. It holds no mutable state beyond counters, so a single instance
// is shared by all workers.
type Fetcher struct {
	client  *resty.Client
	cfg     *config.Config
	metrics *Metrics

	requestCount int64
	retryCount   int64
}

// NewFetcher builds a fetcher with a shared connection pool and browser-like
// headers.
func NewFetcher(cfg *config.Config, metrics *Metrics) *Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeaders(map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"Connection":      "keep-alive",
		})
	client.SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		client:  client,
		cfg:     cfg,
		metrics: metrics,
	}
}

// HTTPClient exposes the underlying client so tests can install a mock
// transport.
func (f *Fetcher) HTTPClient() *http.Client {
	return f.client.GetClient()
}

// Requests returns the total attempts issued so far.
func (f *Fetcher) Requests() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// Retries returns the total retry attempts issued so far.
func (f *Fetcher) Retries() int {
	return int(atomic.LoadInt64(&f.retryCount))
}

// Fetch GETs a URL, retrying transport errors and non-2xx statuses up to the
// configured attempt count. Exhaustion returns the last classified error;
// nothing is raised past the caller.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&f.retryCount, 1)
			f.metrics.IncRetries()
			if err := sleepContext(ctx, f.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		if err := sleepContext(ctx, f.cfg.Delay); err != nil {
			return nil, err
		}

		atomic.AddInt64(&f.requestCount, 1)
		start := time.Now()
		resp, err := f.client.R().SetContext(ctx).Get(rawURL)
		f.metrics.ObserveDuration(time.Since(start))

		if err != nil {
			lastErr = classifyError(err, 0)
		} else if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			lastErr = classifyError(nil, resp.StatusCode())
		} else {
			return resp.Body(), nil
		}

		slog.Warn("request failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", f.cfg.MaxRetries),
			slog.Any("error", lastErr),
		)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	slog.Error("exhausted retries",
		slog.String("url", rawURL),
		slog.Int("attempts", f.cfg.MaxRetries),
		slog.Any("error", lastErr),
	)
	return nil, lastErr
}

// backoff doubles the initial wait per retry, capped at the configured max.
func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		return ErrHTTPStatus{Code: statusCode}
	}

	if err == nil {
		return nil
	}
	return err
}
