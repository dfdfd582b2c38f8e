// Package main provides the cleaner command: step 3, extract plain text from
// the downloaded documents into a JSONL file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/normalizer"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/state"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	dataDir := flag.String("data-dir", "", "Download directory (overrides paths.data_dir)")
	output := flag.String("output", "", "Cleaned JSONL path (overrides paths.cleaned)")
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

	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}

	if *output != "" {
		cfg.Paths.Cleaned = *output
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, runID := logger.New(cfg.Logging.Level, cfg.Logging.Development).ForRun("cleaner")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := state.LoadURLList(cfg.Paths.URLList)
	if err != nil {
		fmt.Printf("❌ Failed to load url list: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🧹 Cleaning %s → %s (run %s)\n", cfg.Paths.DataDir, cfg.Paths.Cleaned, runID)

	summary, err := normalizer.NewProcessor(cfg.Labels(), log).Clean(ctx, cfg.Paths.DataDir, list.Items(), cfg.Paths.Cleaned)
	if err != nil {
		fmt.Printf("❌ Cleaning failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Print(report.KV(
		"files", summary.Files,
		"written", summary.Written,
		"duplicate urls", summary.Duplicates,
		"not in url list", summary.Unmapped,
		"no text", summary.Empty,
		"invalid", summary.Invalid,
		"unreadable", summary.Failed,
	))
	fmt.Println()
	fmt.Printf("✅ Wrote %d records to %s\n", summary.Written, cfg.Paths.Cleaned)
}
