// Package main provides the worker command that runs collect, download,
// clean and upload in sequence, once or on a cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/hub"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/pipeline"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	schedule := flag.String("schedule", "", "Cron expression, e.g. \"0 3 * * *\" (overrides schedule.cron; empty runs once)")
	flush := flag.Bool("flush", false, "Delete remote shards before the first upload")
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

	if *schedule != "" {
		cfg.Schedule.Cron = *schedule
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	base := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	defer base.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("🚀 Starting bekendmakingen worker pipeline")
	fmt.Printf("   %s\n", cfg)

	if cfg.Schedule.Cron == "" {
		if err := runOnce(ctx, cfg, base, *flush); err != nil {
			fmt.Printf("❌ Pipeline failed: %v\n", err)
			os.Exit(1)
		}

		return
	}

	// overlapping runs would race on the state files
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	firstRun := true

	_, err = c.AddFunc(cfg.Schedule.Cron, func() {
		flushThisRun := *flush && firstRun
		firstRun = false

		if err := runOnce(ctx, cfg, base, flushThisRun); err != nil {
			base.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		fmt.Printf("❌ Invalid schedule %q: %v\n", cfg.Schedule.Cron, err)
		os.Exit(1)
	}

	c.Start()
	fmt.Printf("⏰ Scheduled with %q, next run at %s. Press Ctrl+C to stop.\n",
		cfg.Schedule.Cron, c.Entries()[0].Next.Format(time.RFC3339))

	<-ctx.Done()

	fmt.Println("🛑 Stopping, waiting for a running pipeline to finish...")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, cfg *config.Config, base *logger.Logger, flush bool) error {
	log, runID := base.ForRun("worker")
	start := time.Now()

	fetcher := crawler.NewFetcher(&cfg.Retry, &cfg.Collector, log)

	var client hub.Client
	if token := cfg.Token(); token != "" {
		client = hub.NewHTTPClient(cfg.Upload.Endpoint, token, cfg.Upload.Revision, log)
	}

	log.Info("pipeline started")

	summary, err := pipeline.New(cfg, fetcher, client, log).Run(ctx, pipeline.Options{Flush: flush})
	if err != nil {
		return err
	}

	fetcher.Attempts().LogSummary(log, 10)

	fmt.Println("\n------------------------------------------------")
	fmt.Printf("📊 Summary Report (run %s)\n", runID)
	fmt.Println("------------------------------------------------")
	fmt.Print(summary.Table())
	fmt.Printf("Total Duration: %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("------------------------------------------------")

	return nil
}
