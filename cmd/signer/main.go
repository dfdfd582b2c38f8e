// Package main provides the signer command-line tool for signing or
// verifying a dataset card against the cleaned JSONL it describes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/hub"
	"bekendmakingen/internal/shard"
	"bekendmakingen/pkg/metadata"
)

func main() {
	inputPath := flag.String("input", hub.CardPath, "Path to the dataset card")
	configFile := flag.String("config", "", "Path to YAML configuration file (default configs/crawler.yaml if present)")
	verify := flag.Bool("verify", false, "Only verify the existing signature")
	create := flag.Bool("new", false, "Start from a fresh card body instead of the file contents")
	flag.Parse()

	if *verify {
		verifyCard(*inputPath)

		return
	}

	cfg, _, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}

	content := hub.DatasetCard(cfg.Upload.RepoID)

	if !*create {
		raw, readErr := os.ReadFile(*inputPath)
		if readErr != nil {
			log.Fatalf("❌ Error reading card: %v (use -new to create one)\n", readErr)
		}

		content = string(raw)
	}

	lines, err := shard.ReadLines(cfg.Paths.Cleaned)
	if err != nil {
		log.Fatalf("❌ Error reading %s: %v\n", cfg.Paths.Cleaned, err)
	}

	shards := (len(lines) + cfg.Upload.ShardSize - 1) / cfg.Upload.ShardSize
	fmt.Printf("📂 %s: %d records in %d shards of %d\n", cfg.Paths.Cleaned, len(lines), shards, cfg.Upload.ShardSize)

	fmt.Println("✍️  Signing card...")

	if err := os.WriteFile(*inputPath, []byte(metadata.Sign(content, len(lines), shards)), 0644); err != nil {
		log.Fatalf("❌ Error writing card: %v\n", err)
	}

	fmt.Printf("✅ Signed and saved to: %s\n", *inputPath)
}

func verifyCard(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("❌ Error reading card: %v\n", err)
	}

	meta, err := metadata.Verify(string(raw))
	if err != nil {
		fmt.Printf("❌ Signature check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Signature valid: %d records, %d shards, updated %s\n",
		meta.Records, meta.Shards, meta.UpdatedAt.Format("2006-01-02 15:04 MST"))
}
