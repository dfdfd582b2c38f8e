// Package main provides the downloader command: step 2, fetch every listed
// item into data/<source>/.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/downloader"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/state"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	input := flag.String("input", "", "URL list path (overrides paths.url_list)")
	dataDir := flag.String("data-dir", "", "Download directory (overrides paths.data_dir)")
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
		cfg.Paths.URLList = *input
	}

	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, runID := logger.New(cfg.Logging.Level, cfg.Logging.Development).ForRun("downloader")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := state.LoadURLList(cfg.Paths.URLList)
	if err != nil {
		fmt.Printf("❌ Failed to load url list: %v\n", err)
		os.Exit(1)
	}

	if list.Len() == 0 {
		fmt.Printf("⚠️  %s is empty, run the collector first\n", cfg.Paths.URLList)
		os.Exit(1)
	}

	fmt.Printf("🚀 Downloading %d items into %s (run %s)\n", list.Len(), cfg.Paths.DataDir, runID)

	fetcher := crawler.NewFetcher(&cfg.Retry, &cfg.Collector, log)
	start := time.Now()

	summary, err := downloader.New(fetcher, cfg.Paths.DataDir, log).Run(ctx, list.Items())
	if err != nil {
		fmt.Printf("❌ Download interrupted: %v\n", err)
		os.Exit(1)
	}

	fetcher.Attempts().LogSummary(log, 10)

	fmt.Println()
	fmt.Print(report.KV(
		"downloaded", summary.Downloaded,
		"already on disk", summary.Skipped,
		"failed", summary.Failed,
	))
	fmt.Println()
	fmt.Printf("✅ Done in %v\n", time.Since(start).Round(time.Millisecond))
}
