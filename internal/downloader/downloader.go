// Package downloader fetches every collected item into the local data directory.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/models"
	"bekendmakingen/internal/state"
)

// ErrNoFileName is returned for item URLs without a usable last path segment.
var ErrNoFileName = errors.New("item url has no file name")

// Summary reports the outcome of a download run.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Downloader stores item bodies under dataDir/<source>/<file name>.
type Downloader struct {
	getter  crawler.Getter
	log     *logger.Logger
	dataDir string
}

// New creates a downloader writing into dataDir.
func New(getter crawler.Getter, dataDir string, log *logger.Logger) *Downloader {
	if log == nil {
		log = logger.NewNop()
	}

	return &Downloader{getter: getter, dataDir: dataDir, log: log}
}

// LocalPath returns where item is stored.
func LocalPath(dataDir string, item models.URLItem) (string, error) {
	name := item.FileName()
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrNoFileName, item.URL)
	}

	source := filepath.Base(filepath.Clean("/" + item.Source))
	if source == "/" || source == "." {
		source = "unknown"
	}

	return filepath.Join(dataDir, source, name), nil
}

// Run downloads every item that is not on disk yet. Failed items are
// logged and skipped; only context cancellation stops the run.
func (d *Downloader) Run(ctx context.Context, items []models.URLItem) (Summary, error) {
	var summary Summary

	d.log.Info("downloading items", "count", len(items), "dir", d.dataDir)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		path, err := LocalPath(d.dataDir, item)
		if err != nil {
			summary.Failed++
			d.log.Warn("skipping item", "url", item.URL, "error", err)

			continue
		}

		if _, err := os.Stat(path); err == nil {
			summary.Skipped++

			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			summary.Failed++
			d.log.Warn("cannot stat target", "path", path, "error", err)

			continue
		}

		d.log.Debug("downloading", "n", i+1, "of", len(items), "url", item.URL)

		body, err := d.getter.Fetch(ctx, item.URL)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}

			summary.Failed++
			d.log.Warn("download failed", "url", item.URL, "error", err)

			continue
		}

		if err := state.WriteFileAtomic(path, body); err != nil {
			summary.Failed++
			d.log.Error("failed to write file", "path", path, "error", err)

			continue
		}

		summary.Downloaded++
	}

	d.log.Info("download finished",
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}
