// Package main provides the harvester command. In sru mode it pages through
// searchRetrieve results with a resumable cursor; in events mode it resolves
// the identifiers of one day's event feed. Records are appended to the
// harvest JSONL and pushed to the hub when a token is available.
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
	"bekendmakingen/internal/hub"
	"bekendmakingen/internal/logger"
	"bekendmakingen/internal/pipeline"
	"bekendmakingen/internal/report"
	"bekendmakingen/internal/sru"
	"bekendmakingen/internal/state"
)

const (
	modeSRU    = "sru"
	modeEvents = "events"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	mode := flag.String("mode", modeSRU, "Harvest mode: 'sru' or 'events'")
	date := flag.String("date", os.Getenv("SCRAPE_DATE"), "Event feed day YYYY-MM-DD for events mode (default today)")
	query := flag.String("query", "", "CQL query (overrides sru.query)")
	maxRecords := flag.Int("max-records", -1, "Stop after this many new records, 0 for no limit (overrides sru.max_records)")
	output := flag.String("output", "", "Harvest JSONL path (overrides paths.harvest_output)")
	noPush := flag.Bool("no-push", false, "Never push to the hub, even with a token")
	logLevel := flag.String("log-level", "", "Log level (overrides logging.level)")

	flag.Parse()

	if *mode != modeSRU && *mode != modeEvents {
		fmt.Printf("❌ Unknown mode %q\n", *mode)
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := config.LoadEnv(); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	cfg, used, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("❌ Failed to load config %s: %v\n", used, err)
		os.Exit(1)
	}

	if *query != "" {
		cfg.SRU.Query = *query
	}

	if *maxRecords >= 0 {
		cfg.SRU.MaxRecords = *maxRecords
	}

	if *output != "" {
		cfg.Paths.HarvestOutput = *output
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, runID := logger.New(cfg.Logging.Level, cfg.Logging.Development).ForRun("harvester")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := state.LoadHarvestState(cfg.Paths.HarvestState)
	if err != nil {
		fmt.Printf("❌ Failed to load harvest state: %v\n", err)
		os.Exit(1)
	}

	var uploader *hub.Uploader

	if token := cfg.Token(); token != "" && !*noPush {
		client := hub.NewHTTPClient(cfg.Upload.Endpoint, token, cfg.Upload.Revision, log)
		uploader = hub.NewUploader(client, cfg.Upload.HarvestTarget(), &cfg.Retry, log)
	} else {
		fmt.Println("ℹ️  No hub push: records are only appended locally")
	}

	publisher := pipeline.NewPublisher(cfg.Paths.HarvestOutput, uploader, hub.Options{
		ProgressPath: cfg.Paths.HarvestUpload,
		ShardSize:    cfg.Upload.ShardSize,
		WriteCard:    cfg.Upload.WriteCard,
	}, cfg.Upload.PushEvery, log)

	fetcher := crawler.NewFetcher(&cfg.Retry, &cfg.Collector, log)
	harvester := sru.NewHarvester(sru.NewClient(fetcher, cfg.SRU), cfg, cfg.Paths.HarvestState, log)

	start := time.Now()

	var summary sru.HarvestSummary

	switch *mode {
	case modeEvents:
		day := time.Now()

		if *date != "" {
			day, err = time.Parse(time.DateOnly, *date)
			if err != nil {
				fmt.Printf("❌ Invalid -date %q: %v\n", *date, err)
				os.Exit(1)
			}
		}

		fmt.Printf("🚀 Harvesting event feed for %s (run %s)\n", day.Format(time.DateOnly), runID)
		summary, err = harvester.RunEvents(ctx, day, st, publisher)
	default:
		fmt.Printf("🚀 Harvesting %s from record %d (run %s)\n", cfg.SRU.Query, st.StartRecord, runID)
		summary, err = harvester.Run(ctx, st, publisher)
	}

	if err != nil {
		fmt.Printf("❌ Harvest stopped at record %d: %v\n", summary.NextRecord, err)
		os.Exit(1)
	}

	if err := publisher.Push(ctx); err != nil {
		fmt.Printf("❌ Final push failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Print(report.KV(
		"pages", summary.Pages,
		"fetched", summary.Fetched,
		"new records", summary.Emitted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"next record", summary.NextRecord,
		"total harvested", st.Total,
		"pushes", publisher.Pushes(),
	))
	fmt.Println()
	fmt.Printf("✅ Harvest finished in %v\n", time.Since(start).Round(time.Millisecond))
}
