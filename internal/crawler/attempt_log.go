package crawler

import (
	"fmt"
	"sync"
	"time"

	"bekendmakingen/internal/logger"
)

// Attempt records the result of one fetch attempt.
type Attempt struct {
	Timestamp  time.Time
	URL        string
	Error      string
	Attempt    int
	Duration   time.Duration
	StatusCode int
	Success    bool
}

// AttemptLog keeps every fetch attempt per URL in first-seen order.
type AttemptLog struct {
	byURL map[string][]Attempt
	order []string
	mu    sync.Mutex
}

// NewAttemptLog creates an empty attempt log.
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{byURL: make(map[string][]Attempt)}
}

// RecordAttempt records the result of a fetch attempt.
func (a *AttemptLog) RecordAttempt(url string, success bool, err error, statusCode int, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byURL[url]; !ok {
		a.order = append(a.order, url)
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	a.byURL[url] = append(a.byURL[url], Attempt{
		URL:        url,
		Attempt:    len(a.byURL[url]) + 1,
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now(),
		Duration:   duration,
		StatusCode: statusCode,
	})
}

// Attempts returns the attempts made for url.
func (a *AttemptLog) Attempts(url string) []Attempt {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Attempt, len(a.byURL[url]))
	copy(out, a.byURL[url])

	return out
}

// FailedURLs returns URLs whose attempts never succeeded, in first-seen order.
func (a *AttemptLog) FailedURLs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var failed []string

	for _, url := range a.order {
		if !succeeded(a.byURL[url]) {
			failed = append(failed, url)
		}
	}

	return failed
}

// Stats returns statistics about fetch attempts.
func (a *AttemptLog) Stats() AttemptStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AttemptStats{TotalURLs: len(a.byURL)}

	for _, results := range a.byURL {
		stats.TotalAttempts += len(results)

		for _, result := range results {
			if result.Success {
				stats.SuccessfulAttempts++
			} else {
				stats.FailedAttempts++
			}
		}

		if succeeded(results) {
			stats.SuccessfulURLs++
		} else {
			stats.FailedURLs++
		}
	}

	return stats
}

// Reset clears the log.
func (a *AttemptLog) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byURL = make(map[string][]Attempt)
	a.order = nil
}

func succeeded(results []Attempt) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}

	return false
}

// AttemptStats contains statistics about fetch attempts.
type AttemptStats struct {
	TotalURLs          int
	SuccessfulURLs     int
	FailedURLs         int
	TotalAttempts      int
	SuccessfulAttempts int
	FailedAttempts     int
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"URLs: %d total, %d success, %d failed | Attempts: %d total, %d success, %d failed",
		s.TotalURLs,
		s.SuccessfulURLs,
		s.FailedURLs,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
	)
}

// LogSummary logs the overall stats and the last error of up to limit failed
// URLs. At debug level every failed URL is listed.
func (a *AttemptLog) LogSummary(l *logger.Logger, limit int) {
	failed := a.FailedURLs()

	if l.Enabled("debug") {
		limit = 0
	}

	l.Info("fetch attempt summary", "stats", a.Stats().String())

	for i, url := range failed {
		if limit > 0 && i >= limit {
			l.Info("more failed urls omitted", "count", len(failed)-limit)

			break
		}

		results := a.Attempts(url)
		last := results[len(results)-1]
		l.Warn("fetch failed", "url", url, "attempts", len(results), "status", last.StatusCode, "error", last.Error)
	}
}
