// Package main provides the uploader command: step 4, publish the cleaned
// JSONL to the dataset hub as numbered shards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/hub"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/shard"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	input := flag.String("input", "", "Cleaned JSONL path (overrides paths.cleaned)")
	repo := flag.String("repo", "", "Dataset repo id <namespace>/<name> (overrides upload.repo_id)")
	token := flag.String("token", "", "Hub token (default: $HF_TOKEN or the variable named by upload.token_env)")
	shardSize := flag.Int("shard-size", 0, "Records per shard (overrides upload.shard_size)")
	flush := flag.Bool("flush", false, "Delete all remote shards and upload from the first record")
	private := flag.Bool("private", false, "Create the dataset repo as private")
	noCard := flag.Bool("no-card", false, "Do not write the dataset card")
	logLevel := flag.String("log-level", "", "Log level (overrides logging.level)")

	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	cfg, used, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("❌ Failed to load config %s: %v\n", used, err)
		os.Exit(1)
	}

	if *input != "" {
		cfg.Paths.Cleaned = *input
	}

	if *repo != "" {
		cfg.Upload.RepoID = *repo
	}

	if *shardSize > 0 {
		cfg.Upload.ShardSize = *shardSize
	}

	if *private {
		cfg.Upload.Private = true
	}

	if *noCard {
		cfg.Upload.WriteCard = false
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	hubToken := *token
	if hubToken == "" {
		hubToken = cfg.Token()
	}

	if hubToken == "" {
		fmt.Printf("❌ No hub token: pass -token or set %s (environment, .env or .secrets)\n", cfg.Upload.TokenEnv)
		os.Exit(1)
	}

	log, runID := logger.New(cfg.Logging.Level, cfg.Logging.Development).ForRun("uploader")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines, err := shard.ReadLines(cfg.Paths.Cleaned)
	if err != nil {
		fmt.Printf("❌ Failed to read %s: %v\n", cfg.Paths.Cleaned, err)
		os.Exit(1)
	}

	fmt.Printf("🚀 Uploading %d records to %s (run %s)\n", len(lines), cfg.Upload.RepoID, runID)

	if *flush {
		fmt.Println("🗑️  Flush requested: existing remote shards will be deleted")
	}

	client := hub.NewHTTPClient(cfg.Upload.Endpoint, hubToken, cfg.Upload.Revision, log)
	uploader := hub.NewUploader(client, &cfg.Upload, &cfg.Retry, log)

	result, err := uploader.Upload(ctx, lines, hub.Options{
		ProgressPath: cfg.Paths.UploadProgress,
		ShardSize:    cfg.Upload.ShardSize,
		Flush:        *flush,
		WriteCard:    cfg.Upload.WriteCard,
	})
	if err != nil {
		fmt.Printf("❌ Upload failed: %v\n", err)
		os.Exit(1)
	}

	if result.UpToDate {
		fmt.Printf("✅ Dataset is up to date (%d records)\n", result.Total)

		return
	}

	fmt.Println()
	fmt.Print(report.KV(
		"deleted shards", result.Deleted,
		"uploaded shards", result.Shards,
		"first record", result.Start,
		"last record", result.End,
		"total records", result.Total,
	))
	fmt.Println()
	fmt.Printf("✅ Uploaded to https://huggingface.co/datasets/%s\n", cfg.Upload.RepoID)
}
