package pipeline

import (
	"context"
	"fmt"

	"bekendmakingen/internal/hub"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/models"
	"bekendmakingen/internal/shard"
	"bekendmakingen/internal/sru"
)

var _ sru.Sink = (*Publisher)(nil)

// Publisher appends harvested records to a JSONL file and pushes the file to
// the hub every `every` records. It implements sru.Sink: pushes happen at
// checkpoints, after the harvest cursor covering the appended records is
// saved. A nil uploader only appends.
type Publisher struct {
	uploader *hub.Uploader
	log      *logger.Logger
	opts     hub.Options
	path     string
	every    int
	pending  int
	pushes   int
}

// NewPublisher creates a publisher writing to path.
func NewPublisher(path string, uploader *hub.Uploader, opts hub.Options, every int, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNop()
	}

	return &Publisher{uploader: uploader, log: log, opts: opts, path: path, every: every}
}

// Write appends records to the harvest file.
func (p *Publisher) Write(_ context.Context, records []models.Record) error {
	if err := shard.AppendRecords(p.path, records); err != nil {
		return err
	}

	p.pending += len(records)

	return nil
}

// Checkpoint pushes once enough records have accumulated.
func (p *Publisher) Checkpoint(ctx context.Context) error {
	if p.uploader != nil && p.every > 0 && p.pending >= p.every {
		return p.Push(ctx)
	}

	return nil
}

// Push uploads whatever the hub does not have yet.
func (p *Publisher) Push(ctx context.Context) error {
	if p.uploader == nil {
		return nil
	}

	lines, err := shard.ReadLines(p.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p.path, err)
	}

	result, err := p.uploader.Upload(ctx, lines, p.opts)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	p.pending = 0
	p.pushes++

	// flush only applies to the first push of a run
	p.opts.Flush = false

	p.log.Info("pushed harvest", "records", result.Total, "shards", result.Shards)

	return nil
}

// Pushes returns how many successful pushes happened.
func (p *Publisher) Pushes() int {
	return p.pushes
}
