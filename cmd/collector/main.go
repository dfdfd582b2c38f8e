// Package main provides the collector command: step 1, walk the FRBR
// repository listings and record item URLs in the url list.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/state"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	output := flag.String("output", "", "URL list path (overrides paths.url_list)")
	target := flag.Int("target", 0, "Number of URLs to collect (overrides collector.target_count)")
	logLevel := flag.String("log-level", "", "Log level (overrides logging.level)")

	flag.Parse()

	cfg := loadConfig(*configFile)

	if *output != "" {
		cfg.Paths.URLList = *output
	}

	if *target > 0 {
		cfg.Collector.TargetCount = *target
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, runID := logger.New(cfg.Logging.Level, cfg.Logging.Development).ForRun("collector")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := state.LoadURLList(cfg.Paths.URLList)
	if err != nil {
		fmt.Printf("❌ Failed to load url list: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🚀 Collecting item URLs (run %s)\n", runID)
	fmt.Printf("   Sources: %d enabled, target: %d, already listed: %d\n",
		len(cfg.GetEnabledSources()), cfg.Collector.TargetCount, list.Len())

	fetcher := crawler.NewFetcher(&cfg.Retry, &cfg.Collector, log)
	collector := crawler.NewCollector(fetcher, cfg, cfg.Paths.URLList, log)

	start := time.Now()

	summary, err := collector.Collect(ctx, list)
	if err != nil {
		fmt.Printf("❌ Collection failed: %v\n", err)
		os.Exit(1)
	}

	fetcher.Attempts().LogSummary(log, 10)

	rows := make([][]string, 0, len(summary.Sources))
	for label, n := range summary.Sources {
		rows = append(rows, []string{label, fmt.Sprint(n)})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

	fmt.Println()
	fmt.Print(report.Table([]string{"source", "new urls"}, rows))
	fmt.Println()
	fmt.Printf("📊 %s\n", fetcher.Attempts().Stats())

	if summary.FailedPages > 0 {
		fmt.Printf("⚠️  %d listing pages could not be fetched and were skipped\n", summary.FailedPages)
	}

	fmt.Printf("✅ Added %d URLs, %d total in %s (%v)\n",
		summary.Added, summary.Total, cfg.Paths.URLList, time.Since(start).Round(time.Millisecond))
}

func loadConfig(path string) *config.Config {
	if err := config.LoadEnv(); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	cfg, used, err := config.Load(path)
	if err != nil {
		fmt.Printf("❌ Failed to load config %s: %v\n", used, err)
		os.Exit(1)
	}

	if used != "" {
		fmt.Printf("⚙️  Configuration loaded from %s: %s\n", used, cfg)
	} else {
		fmt.Printf("⚙️  Using built-in defaults: %s\n", cfg)
	}

	return cfg
}
