// Package stooq fetches daily bars from stooq.com.
//
// The endpoint answers GET {BaseURL}?s=<symbol>&i=d with a CSV whose header is
// Date,Open,High,Low,Close,Volume. Unknown symbols still return 200 with a
// "No data" body, so the header is checked on every attempt.
package stooq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"equities-daily/internal/errors"
	"equities-daily/internal/metrics"
	"equities-daily/internal/schema"
)

const (
	// Source is the tag stored on records fetched from Stooq.
	Source = "stooq"

	DefaultBaseURL     = "https://stooq.com/q/d/l/"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 4
	DefaultBackoffBase = 1500 * time.Millisecond
	DefaultUserAgent   = "Mozilla/5.0 (compatible; equities-daily/1.0)"

	// maxErrorBody caps how much of a failed response ends up in errors.
	maxErrorBody = 200
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Client. Zero fields take the defaults above.
type Options struct {
	BaseURL     string
	Timeout     time.Duration // per attempt
	MaxRetries  int           // total attempts, >= 1
	BackoffBase time.Duration // sleep after failed attempt n is BackoffBase*n
	UserAgent   string
	Sleep       SleepFunc
	Logger      *slog.Logger
}

// Client fetches Stooq daily CSV with linear-backoff retries.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	http    *resty.Client
	baseURL string
	retries int
	backoff time.Duration
	timeout time.Duration
	sleep   SleepFunc
	logger  *slog.Logger
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffBase < 0 {
		opts.BackoffBase = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		http:    newRestyClient(opts.Timeout, opts.UserAgent),
		baseURL: opts.BaseURL,
		retries: opts.MaxRetries,
		backoff: opts.BackoffBase,
		timeout: opts.Timeout,
		sleep:   opts.Sleep,
		logger:  opts.Logger.With("component", "stooq"),
	}
}

// GetName returns provider name
func (c *Client) GetName() string { return "Stooq" }

// Source returns the record source tag.
func (c *Client) Source() string { return Source }

// Close closes connections
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// FetchDaily returns the raw CSV of symbol. Each failed attempt is followed
// by a sleep of BackoffBase*attempt, including the last one. When every
// attempt fails it returns *errors.FetchExhaustedError wrapping the last
// cause. A done ctx stops the loop between attempts.
func (c *Client) FetchDaily(ctx context.Context, symbol string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("fetch %s: %w", symbol, err)
		}

		body, err := c.fetchOnce(ctx, symbol)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("fetch recovered", "symbol", symbol, "attempt", attempt)
			}
			return body, nil
		}
		lastErr = err

		wait := c.backoff * time.Duration(attempt)
		c.logger.Warn("fetch attempt failed", "symbol", symbol, "attempt", attempt, "of", c.retries, "wait", wait, "error", err)
		if err := c.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("fetch %s: %w", symbol, err)
		}
	}
	return "", &errors.FetchExhaustedError{Symbol: symbol, Attempts: c.retries, Err: lastErr}
}

// fetchOnce runs one GET bounded by the per-attempt timeout.
func (c *Client) fetchOnce(ctx context.Context, symbol string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(actx).
		SetQueryParams(map[string]string{"s": symbol, "i": "d"}).
		Get(c.baseURL)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		err = checkResponse(resp)
	}
	if err != nil {
		metrics.FetchAttempts.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.FetchAttempts.WithLabelValues("ok").Inc()
	return resp.String(), nil
}

func checkResponse(resp *resty.Response) error {
	body := resp.String()
	if !resp.IsSuccess() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), snippet(body))
	}
	if err := schema.CheckHeader(body, schema.StooqColumns); err != nil {
		return fmt.Errorf("unexpected body %q: %v", snippet(body), err)
	}
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
