package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/logger"
)

// Fetch errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrEmptyResponse        = errors.New("empty response body")
)

// FetchError describes a URL that could not be fetched after all attempts.
type FetchError struct {
	Err    error
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}

	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Getter fetches the body of a URL.
type Getter interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Fetcher is a polite HTTP client with config-driven retry logic.
type Fetcher struct {
	client       *http.Client
	retryPolicy  *config.RetryPolicy
	limiter      *rate.Limiter
	attempts     *AttemptLog
	log          *logger.Logger
	userAgent    string
	maxBodyBytes int64
}

// NewFetcher creates a fetcher from the retry and collector settings.
func NewFetcher(retryPolicy *config.RetryPolicy, collector *config.CollectorConfig, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if d := collector.Delay(); d > 0 {
		limit = rate.Every(d)
	}

	maxBody := int64(collector.MaxBodySizeKb) * 1024
	if maxBody <= 0 {
		maxBody = 16 << 20
	}

	return &Fetcher{
		client:       &http.Client{Timeout: retryPolicy.GetTimeout()},
		retryPolicy:  retryPolicy,
		limiter:      rate.NewLimiter(limit, 1),
		attempts:     NewAttemptLog(),
		log:          log,
		userAgent:    collector.UserAgent,
		maxBodyBytes: maxBody,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (f *Fetcher) WithHTTPClient(client *http.Client) *Fetcher {
	f.client = client

	return f
}

// Attempts returns the log of every request made by this fetcher.
func (f *Fetcher) Attempts() *AttemptLog {
	return f.attempts
}

// Fetch returns the body of url, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, _, _, err := f.FetchWithMetrics(ctx, url)

	return body, err
}

// FetchWithMetrics returns (body, statusCode, duration, error).
func (f *Fetcher) FetchWithMetrics(ctx context.Context, url string) ([]byte, int, time.Duration, error) {
	var lastErr error

	var lastStatusCode int

	totalDuration := time.Duration(0)

	for attempt := 1; attempt <= f.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.retryPolicy.GetRetryDelay(attempt) + f.jitter()
			f.log.Warn("retrying fetch", "url", url, "attempt", attempt, "delay", delay, "error", lastErr)

			if err := SleepContext(ctx, delay); err != nil {
				return nil, lastStatusCode, totalDuration, err
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, lastStatusCode, totalDuration, fmt.Errorf("rate limiter: %w", err)
		}

		startTime := time.Now()
		body, status, err := f.do(ctx, url)
		duration := time.Since(startTime)
		totalDuration += duration
		lastStatusCode = status

		f.attempts.RecordAttempt(url, err == nil, err, status, duration)

		if err == nil {
			return body, status, totalDuration, nil
		}

		if ctx.Err() != nil {
			return nil, status, totalDuration, ctx.Err()
		}

		lastErr = err

		if status != 0 && !isRetryableStatus(status) {
			break
		}

		if errors.Is(err, ErrEmptyResponse) {
			break
		}
	}

	return nil, lastStatusCode, totalDuration, &FetchError{URL: url, Status: lastStatusCode, Err: lastErr}
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(body) == 0 {
		return nil, resp.StatusCode, ErrEmptyResponse
	}

	return body, resp.StatusCode, nil
}

func (f *Fetcher) jitter() time.Duration {
	if f.retryPolicy.JitterMs <= 0 {
		return 0
	}

	return time.Duration(rand.IntN(f.retryPolicy.JitterMs)) * time.Millisecond
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}

	return false
}
