package sru

import (
	"context"
	"errors"
	"fmt"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/models"
	"bekendmakingen/internal/state"
)

// Sink stores harvested records. Write must have stored the batch when it
// returns; a Write error stops the run before the cursor moves past the
// batch. Checkpoint is called once the cursor covering the written records
// has been saved, so work done there (such as a hub push) can fail without
// the next run writing the same records again.
type Sink interface {
	Write(ctx context.Context, records []models.Record) error
	Checkpoint(ctx context.Context) error
}

// SinkFunc adapts a function to a Sink without a checkpoint step.
type SinkFunc func(ctx context.Context, records []models.Record) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, records []models.Record) error {
	return f(ctx, records)
}

// Checkpoint does nothing.
func (f SinkFunc) Checkpoint(context.Context) error {
	return nil
}

// HarvestSummary reports the outcome of a harvest run.
type HarvestSummary struct {
	Pages       int
	Fetched     int
	Emitted     int
	Skipped     int
	Failed      int
	StartRecord int
	NextRecord  int
}

// Harvester pages through searchRetrieve results and tracks its cursor in a state file.
type Harvester struct {
	client    *Client
	cfg       config.SRUConfig
	retry     *config.RetryPolicy
	log       *logger.Logger
	statePath string
}

// NewHarvester creates a harvester saving its cursor to statePath.
func NewHarvester(client *Client, cfg *config.Config, statePath string, log *logger.Logger) *Harvester {
	if log == nil {
		log = logger.NewNop()
	}

	return &Harvester{
		client:    client,
		cfg:       cfg.SRU,
		retry:     &cfg.Retry,
		log:       log,
		statePath: statePath,
	}
}

// Run harvests pages from st.StartRecord until the result set or the
// max_records budget is exhausted. The state is saved after every page.
// When the budget ends inside a page, the cursor stops after the last
// record that was taken.
func (h *Harvester) Run(ctx context.Context, st *state.HarvestState, sink Sink) (HarvestSummary, error) {
	summary := HarvestSummary{StartRecord: st.StartRecord}

	for {
		if h.cfg.MaxRecords > 0 && summary.Emitted >= h.cfg.MaxRecords {
			h.log.Info("record budget reached", "emitted", summary.Emitted)

			break
		}

		resp, err := h.fetchPage(ctx, st.StartRecord)
		if err != nil {
			summary.NextRecord = st.StartRecord

			return summary, err
		}

		if len(resp.Records) == 0 {
			h.log.Info("no more records", "start_record", st.StartRecord)

			break
		}

		summary.Pages++
		summary.Fetched += len(resp.Records)

		batch := make([]models.Record, 0, len(resp.Records))
		onPage := make(map[string]struct{}, len(resp.Records))
		consumed := len(resp.Records)
		remaining := h.cfg.MaxRecords - summary.Emitted

		for i, rec := range resp.Records {
			if h.cfg.MaxRecords > 0 && len(batch) >= remaining {
				consumed = i

				break
			}

			_, dup := onPage[rec.URL]
			if rec.URL == "" || rec.Content == "" || dup || st.HasSeen(rec.URL) {
				summary.Skipped++

				continue
			}

			onPage[rec.URL] = struct{}{}
			batch = append(batch, models.Record{URL: rec.URL, Content: rec.Content, Source: h.cfg.Label})
		}

		if len(batch) > 0 {
			if err := sink.Write(ctx, batch); err != nil {
				summary.NextRecord = st.StartRecord

				return summary, fmt.Errorf("sink failed at startRecord=%d: %w", st.StartRecord, err)
			}
		}

		for _, rec := range batch {
			st.MarkSeen(rec.URL)
		}

		summary.Emitted += len(batch)
		st.Total += len(batch)

		next := st.StartRecord + consumed
		if consumed == len(resp.Records) && resp.NextRecordPosition > st.StartRecord {
			next = resp.NextRecordPosition
		}

		st.StartRecord = next

		if err := h.saveState(st); err != nil {
			return summary, err
		}

		if err := sink.Checkpoint(ctx); err != nil {
			summary.NextRecord = st.StartRecord

			return summary, fmt.Errorf("checkpoint failed at startRecord=%d: %w", st.StartRecord, err)
		}

		h.log.Info("harvested page",
			"records", len(resp.Records),
			"new", len(batch),
			"total", st.Total,
			"next_record", st.StartRecord,
			"of", resp.NumberOfRecords,
		)

		if resp.NextRecordPosition == 0 && consumed == len(resp.Records) {
			break
		}
	}

	summary.NextRecord = st.StartRecord

	return summary, nil
}

// fetchPage retries malformed responses; transport retries happen in the fetcher.
func (h *Harvester) fetchPage(ctx context.Context, start int) (*Response, error) {
	var lastErr error

	attempts := max(h.retry.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := crawler.SleepContext(ctx, h.retry.GetRetryDelay(attempt)); err != nil {
				return nil, err
			}
		}

		resp, err := h.client.SearchRetrieve(ctx, h.cfg.Query, start, h.cfg.BatchSize)
		if err == nil {
			return resp, nil
		}

		if !errors.Is(err, ErrMalformedResponse) {
			return nil, err
		}

		lastErr = err
		h.log.Warn("malformed page", "start_record", start, "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("failed to fetch page at startRecord=%d after %d attempts: %w", start, attempts, lastErr)
}

func (h *Harvester) saveState(st *state.HarvestState) error {
	if h.statePath == "" {
		return nil
	}

	if err := st.Save(h.statePath); err != nil {
		return fmt.Errorf("failed to save harvest state: %w", err)
	}

	return nil
}
