package hub

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/shard"
	"bekendmakingen/internal/state"
	"bekendmakingen/pkg/metadata"
)

// CardPath is the dataset card written next to the shards.
const CardPath = "README.md"

// Options controls one upload run.
type Options struct {
	ProgressPath string
	ShardSize    int
	Flush        bool
	WriteCard    bool
}

// Result contains the results of an upload operation.
type Result struct {
	Total    int
	Start    int
	End      int
	Shards   int
	Deleted  int
	UpToDate bool
}

// Uploader pushes JSONL lines to the dataset repo as numbered shards.
type Uploader struct {
	client  Client
	retry   *config.RetryPolicy
	logger  *logger.Logger
	repoID  string
	private bool
}

// NewUploader creates an uploader for the configured repository.
func NewUploader(client Client, cfg *config.UploadConfig, retry *config.RetryPolicy, log *logger.Logger) *Uploader {
	if log == nil {
		log = logger.NewNop()
	}

	return &Uploader{
		client:  client,
		retry:   retry,
		logger:  log,
		repoID:  cfg.RepoID,
		private: cfg.Private,
	}
}

// Upload publishes lines[start:] where start is the resume point. With
// Flush, all remote shards are deleted first and the upload restarts at 0.
// Progress is saved after every committed shard.
func (u *Uploader) Upload(ctx context.Context, lines []string, opts Options) (*Result, error) {
	result := &Result{Total: len(lines)}

	if opts.ShardSize < 1 {
		return nil, config.ErrInvalidShardSize
	}

	if err := u.client.CreateRepo(ctx, u.repoID, u.private); err != nil {
		return nil, fmt.Errorf("failed to create repo: %w", err)
	}

	remote, err := u.client.ListFiles(ctx, u.repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote files: %w", err)
	}

	start, err := u.resumePoint(ctx, remote, opts, result)
	if err != nil {
		return nil, err
	}

	result.Start = start
	result.End = start

	if start >= len(lines) {
		result.UpToDate = true
		u.logger.Info("dataset is up to date", "records", len(lines), "progress", start)

		return result, nil
	}

	shards := shard.Split(lines, start, opts.ShardSize)
	u.logger.Info("uploading shards", "repo", u.repoID, "from", start, "to", len(lines), "shards", len(shards))

	for _, s := range shards {
		commit := Commit{
			Summary:   fmt.Sprintf("Add records %d-%d", s.Start, s.End),
			Additions: []FileAddition{{Path: s.Name(), Content: s.Content()}},
		}

		if err := u.commitWithRetry(ctx, commit); err != nil {
			return result, fmt.Errorf("failed to upload %s: %w", s.Name(), err)
		}

		result.Shards++
		result.End = s.End

		if opts.ProgressPath != "" {
			if err := state.SaveUploadProgress(opts.ProgressPath, s.End); err != nil {
				return result, fmt.Errorf("failed to save upload progress: %w", err)
			}
		}

		u.logger.Info("uploaded shard", "path", s.Name(), "records", len(s.Lines))
	}

	if opts.WriteCard {
		card := metadata.Sign(DatasetCard(u.repoID), result.End, shardCount(remote, opts.Flush)+result.Shards)

		commit := Commit{
			Summary:   "Update dataset card",
			Additions: []FileAddition{{Path: CardPath, Content: []byte(card)}},
		}

		if err := u.commitWithRetry(ctx, commit); err != nil {
			return result, fmt.Errorf("failed to upload dataset card: %w", err)
		}
	}

	return result, nil
}

func (u *Uploader) resumePoint(ctx context.Context, remote []string, opts Options, result *Result) (int, error) {
	if !opts.Flush {
		local := 0
		if opts.ProgressPath != "" {
			local = state.LoadUploadProgress(opts.ProgressPath)
		}

		start := max(local, shard.MaxEnd(remote))
		u.logger.Info("resuming upload", "local_progress", local, "remote_progress", shard.MaxEnd(remote))

		return start, nil
	}

	var deletions []string

	for _, f := range remote {
		if strings.HasPrefix(f, shard.Prefix) {
			deletions = append(deletions, f)
		}
	}

	if len(deletions) > 0 {
		commit := Commit{Summary: "Flush existing shards", Deletions: deletions}
		if err := u.commitWithRetry(ctx, commit); err != nil {
			return 0, fmt.Errorf("failed to flush remote shards: %w", err)
		}

		u.logger.Info("flushed remote shards", "deleted", len(deletions))
	}

	result.Deleted = len(deletions)

	if opts.ProgressPath != "" {
		if err := state.SaveUploadProgress(opts.ProgressPath, 0); err != nil {
			return 0, fmt.Errorf("failed to reset upload progress: %w", err)
		}
	}

	return 0, nil
}

func (u *Uploader) commitWithRetry(ctx context.Context, commit Commit) error {
	var lastErr error

	attempts := max(u.retry.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := u.retry.GetRetryDelay(attempt) + u.jitter()
			u.logger.Warn("retrying commit", "summary", commit.Summary, "attempt", attempt, "delay", delay, "error", lastErr)

			if err := crawler.SleepContext(ctx, delay); err != nil {
				return err
			}
		}

		err := u.client.Commit(ctx, u.repoID, commit)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func (u *Uploader) jitter() time.Duration {
	if u.retry.JitterMs <= 0 {
		return 0
	}

	return time.Duration(rand.IntN(u.retry.JitterMs)) * time.Millisecond
}

func shardCount(remote []string, flushed bool) int {
	if flushed {
		return 0
	}

	n := 0

	for _, f := range remote {
		if shard.IsShard(f) {
			n++
		}
	}

	return n
}

// DatasetCard returns the unsigned README body for the dataset.
func DatasetCard(repoID string) string {
	var b strings.Builder

	b.WriteString("---\nlanguage:\n- nl\nlicense: cc0-1.0\ntask_categories:\n- text-generation\n")
	b.WriteString("configs:\n- config_name: default\n  data_files: \"data/*.jsonl\"\n---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", repoID)
	b.WriteString("Cleaned text of Dutch government announcements (officiële publicaties and lokale bekendmakingen) ")
	b.WriteString("from repository.overheid.nl.\n\n")
	b.WriteString(report.Table([]string{"field", "description"}, [][]string{
		{"url", "address of the source document"},
		{"content", "plain text extracted from the document"},
		{"source", "collection the document belongs to"},
	}))

	return b.String()
}
