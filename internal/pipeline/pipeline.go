// Package pipeline chains collect, download, clean and upload into one run.
package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/downloader"
	"bekendmakingen/internal/hub"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/normalizer"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/shard"
	"bekendmakingen/internal/state"
)

// Options controls a pipeline run.
type Options struct {
	Flush bool
}

// Summary collects the per-step results of a run.
type Summary struct {
	Collect       crawler.CollectSummary
	Download      downloader.Summary
	Clean         normalizer.CleanSummary
	Upload        *hub.Result
	UploadSkipped bool
}

// Pipeline runs the four batch steps with a shared config and logger.
type Pipeline struct {
	cfg    *config.Config
	getter crawler.Getter
	client hub.Client
	log    *logger.Logger
}

// New creates a pipeline. A nil client skips the upload step.
func New(cfg *config.Config, getter crawler.Getter, client hub.Client, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}

	return &Pipeline{cfg: cfg, getter: getter, client: client, log: log}
}

// Run executes collect → download → clean → upload. Each step reads the
// files written by the previous one. Upload failures are returned.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{}
	paths := p.cfg.Paths

	list, err := state.LoadURLList(paths.URLList)
	if err != nil {
		return summary, fmt.Errorf("failed to load url list: %w", err)
	}

	p.log.Info("step 1/4: collecting urls")

	collector := crawler.NewCollector(p.getter, p.cfg, paths.URLList, p.log.With("step", "collect"))

	summary.Collect, err = collector.Collect(ctx, list)
	if err != nil {
		return summary, fmt.Errorf("collect: %w", err)
	}

	p.log.Info("step 2/4: downloading items")

	dl := downloader.New(p.getter, paths.DataDir, p.log.With("step", "download"))

	summary.Download, err = dl.Run(ctx, list.Items())
	if err != nil {
		return summary, fmt.Errorf("download: %w", err)
	}

	p.log.Info("step 3/4: cleaning documents")

	processor := normalizer.NewProcessor(p.cfg.Labels(), p.log.With("step", "clean"))

	summary.Clean, err = processor.Clean(ctx, paths.DataDir, list.Items(), paths.Cleaned)
	if err != nil {
		return summary, fmt.Errorf("clean: %w", err)
	}

	if p.client == nil {
		summary.UploadSkipped = true
		p.log.Warn("step 4/4: no hub token, skipping upload")

		return summary, nil
	}

	p.log.Info("step 4/4: uploading shards")

	lines, err := shard.ReadLines(paths.Cleaned)
	if err != nil {
		return summary, fmt.Errorf("upload: %w", err)
	}

	uploader := hub.NewUploader(p.client, &p.cfg.Upload, &p.cfg.Retry, p.log.With("step", "upload"))

	summary.Upload, err = uploader.Upload(ctx, lines, hub.Options{
		ProgressPath: paths.UploadProgress,
		ShardSize:    p.cfg.Upload.ShardSize,
		Flush:        opts.Flush,
		WriteCard:    p.cfg.Upload.WriteCard,
	})
	if err != nil {
		return summary, fmt.Errorf("upload: %w", err)
	}

	return summary, nil
}

// Table renders the summary as a markdown table.
func (s *Summary) Table() string {
	rows := [][]string{
		{"collect", itoa(s.Collect.Added), "", itoa(s.Collect.FailedPages), fmt.Sprintf("%d urls", s.Collect.Total)},
		{"download", itoa(s.Download.Downloaded), itoa(s.Download.Skipped), itoa(s.Download.Failed), ""},
		{
			"clean", itoa(s.Clean.Written),
			itoa(s.Clean.Duplicates + s.Clean.Unmapped + s.Clean.Empty),
			itoa(s.Clean.Invalid + s.Clean.Failed),
			fmt.Sprintf("%d files", s.Clean.Files),
		},
	}

	switch {
	case s.UploadSkipped:
		rows = append(rows, []string{"upload", "", "", "", "skipped (no token)"})
	case s.Upload != nil && s.Upload.UpToDate:
		rows = append(rows, []string{"upload", "0", "", "", "up to date"})
	case s.Upload != nil:
		rows = append(rows, []string{
			"upload", itoa(s.Upload.Shards), "", "",
			fmt.Sprintf("records %d-%d of %d", s.Upload.Start, s.Upload.End, s.Upload.Total),
		})
	}

	return report.Table([]string{"step", "done", "skipped", "failed", "notes"}, rows)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
