package sru

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"bekendmakingen/internal/models"
	"bekendmakingen/internal/normalizer"
	"bekendmakingen/internal/state"
)

// eventFlushEvery is the number of event records handed to the sink at once.
const eventFlushEvery = 50

// EventURL returns the daily event feed URL for day.
func EventURL(base string, day time.Time) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return base + day.Format(time.DateOnly) + ".xml"
}

// ParseEventIdentifiers returns the unique identifiers listed in an event feed, in order.
func ParseEventIdentifiers(body []byte) ([]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	seen := make(map[string]struct{})

	var ids []string

	for _, n := range xmlquery.Find(doc, "//*[local-name()='identifier']") {
		id := strings.TrimSpace(n.InnerText())
		if id == "" {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

// RunEvents harvests the publications announced in the event feed of day.
// Each identifier is looked up in SRU, its xml manifestation downloaded and
// cleaned. Identifiers that fail are logged and skipped.
func (h *Harvester) RunEvents(ctx context.Context, day time.Time, st *state.HarvestState, sink Sink) (HarvestSummary, error) {
	var summary HarvestSummary

	feedURL := EventURL(h.cfg.EventBaseURL, day)

	body, err := h.client.getter.Fetch(ctx, feedURL)
	if err != nil {
		return summary, fmt.Errorf("no event file for %s: %w", day.Format(time.DateOnly), err)
	}

	ids, err := ParseEventIdentifiers(body)
	if err != nil {
		return summary, err
	}

	summary.Pages = 1
	summary.Fetched = len(ids)
	h.log.Info("event feed", "date", day.Format(time.DateOnly), "identifiers", len(ids))

	batch := make([]models.Record, 0, eventFlushEvery)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if err := sink.Write(ctx, batch); err != nil {
			return fmt.Errorf("sink failed: %w", err)
		}

		for _, rec := range batch {
			st.MarkSeen(rec.URL)
		}

		summary.Emitted += len(batch)
		st.Total += len(batch)
		batch = batch[:0]

		if err := h.saveState(st); err != nil {
			return err
		}

		if err := sink.Checkpoint(ctx); err != nil {
			return fmt.Errorf("checkpoint failed: %w", err)
		}

		return nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rec, err := h.eventRecord(ctx, id)
		if err != nil {
			summary.Failed++
			h.log.Warn("could not process identifier", "identifier", id, "error", err)

			continue
		}

		if st.HasSeen(rec.URL) || containsURL(batch, rec.URL) {
			summary.Skipped++

			continue
		}

		batch = append(batch, rec)

		if len(batch) >= eventFlushEvery {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}

	if err := flush(); err != nil {
		return summary, err
	}

	h.log.Info("event harvest finished", "new", summary.Emitted, "failed", summary.Failed)

	return summary, nil
}

func (h *Harvester) eventRecord(ctx context.Context, id string) (models.Record, error) {
	sruRec, err := h.client.LookupIdentifier(ctx, id)
	if err != nil {
		return models.Record{}, err
	}

	itemURL := sruRec.PreferredItemURL("xml")
	if itemURL == "" {
		return models.Record{}, fmt.Errorf("%w: no itemUrl for %s", ErrNotFound, id)
	}

	raw, err := h.client.getter.Fetch(ctx, itemURL)
	if err != nil {
		return models.Record{}, err
	}

	text := normalizer.ExtractText(raw)
	if text == "" {
		return models.Record{}, fmt.Errorf("%w: %s", normalizer.ErrNoContent, itemURL)
	}

	publicURL := itemURL
	if strings.HasPrefix(sruRec.URL, "http") {
		publicURL = sruRec.URL
	}

	return models.Record{URL: publicURL, Content: text, Source: h.cfg.EventLabel}, nil
}

func containsURL(records []models.Record, url string) bool {
	for _, r := range records {
		if r.URL == url {
			return true
		}
	}

	return false
}
