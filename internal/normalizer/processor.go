// Package normalizer turns downloaded publications into clean text records.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/models"
	"bekendmakingen/internal/shard"
)

// ErrNoDataDir is returned when the download directory does not exist.
var ErrNoDataDir = errors.New("data directory not found")

// CleanSummary reports the outcome of a cleaning run.
type CleanSummary struct {
	Files      int
	Written    int
	Duplicates int
	Unmapped   int
	Empty      int
	Invalid    int
	Failed     int
}

// Processor handles data processing and transformation.
type Processor struct {
	validator   *Validator
	transformer *Transformer
	log         *logger.Logger
}

// NewProcessor creates a processor accepting records with the given source labels.
func NewProcessor(labels map[string]bool, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}

	return &Processor{
		validator:   NewValidator(labels),
		transformer: NewTransformer(),
		log:         log,
	}
}

// Process reads the file at path and turns it into a validated record for item.
func (p *Processor) Process(path string, item models.URLItem) (models.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Record{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rec, err := p.transformer.Transform(raw, item)
	if err != nil {
		return models.Record{}, fmt.Errorf("transformation failed: %w", err)
	}

	if err := p.validator.Validate(rec, item.Source); err != nil {
		return models.Record{}, fmt.Errorf("validation failed: %w", err)
	}

	return rec, nil
}

// Clean processes every downloaded file under dataDir, maps it back to its
// item by file name and writes the records to out as JSONL in the order of
// items. The url list only grows at the end, so records that were already
// uploaded keep their line numbers across runs. Records are unique by URL;
// files without a known item are skipped.
func (p *Processor) Clean(ctx context.Context, dataDir string, items []models.URLItem, out string) (CleanSummary, error) {
	var summary CleanSummary

	if _, err := os.Stat(dataDir); err != nil {
		return summary, fmt.Errorf("%w: %s", ErrNoDataDir, dataDir)
	}

	byName := make(map[string]int, len(items))
	for i, item := range items {
		if name := item.FileName(); name != "" {
			if _, ok := byName[name]; !ok {
				byName[name] = i
			}
		}
	}

	files, err := listFiles(dataDir)
	if err != nil {
		return summary, err
	}

	summary.Files = len(files)
	p.log.Info("cleaning files", "count", len(files), "dir", dataDir)

	seen := make(map[string]struct{})
	byItem := make(map[int]models.Record, len(files))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		idx, ok := byName[filepath.Base(path)]
		if !ok {
			summary.Unmapped++
			p.log.Warn("no url for file", "path", path)

			continue
		}

		item := items[idx]

		if _, dup := seen[item.URL]; dup {
			summary.Duplicates++

			continue
		}

		p.log.Debug("processing", "n", i+1, "of", len(files), "path", path)

		rec, err := p.Process(path, item)

		switch {
		case errors.Is(err, ErrNoContent):
			summary.Empty++
			p.log.Warn("no text extracted", "path", path)

			continue
		case errors.Is(err, ErrMissingContent), errors.Is(err, ErrMissingSource),
			errors.Is(err, ErrSourceMismatch), errors.Is(err, ErrUnknownSource), errors.Is(err, ErrMissingURL):
			summary.Invalid++
			p.log.Warn("invalid record", "path", path, "error", err)

			continue
		case err != nil:
			summary.Failed++
			p.log.Error("failed to process file", "path", path, "error", err)

			continue
		}

		seen[item.URL] = struct{}{}
		byItem[idx] = rec
	}

	records := make([]models.Record, 0, len(byItem))
	for i := range items {
		if rec, ok := byItem[i]; ok {
			records = append(records, rec)
		}
	}

	if err := shard.WriteRecords(out, records); err != nil {
		return summary, fmt.Errorf("failed to write %s: %w", out, err)
	}

	summary.Written = len(records)
	p.log.Info("cleaning finished", "written", summary.Written, "output", out)

	return summary, nil
}

// listFiles returns the regular files under dir in lexical order,
// skipping hidden files such as in-flight temp downloads.
func listFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.Type().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	return files, nil
}
