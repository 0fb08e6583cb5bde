package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fadedpez/balancewatch/internal/app"
	"github.com/fadedpez/balancewatch/internal/config"
	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/ingest"
)

func main() {
	kind := flag.String("kind", "", "Document kind: snapshots, movements or groups")
	path := flag.String("file", "-", "JSON-lines file to load, - for stdin")
	quarantine := flag.String("quarantine", "", "Write rejected documents as JSON to this file")
	flag.Parse()

	if *kind == "" {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.ForEnvironment(cfg.Environment, logging.ParseLevel(cfg.LogLevel))
	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer stores.Close()

	input := os.Stdin
	if *path != "-" {
		f, err := os.Open(*path)
		if err != nil {
			log.Fatalf("Error opening %s: %v", *path, err)
		}
		defer f.Close()
		input = f
	}

	loader := ingest.NewLoader(stores.Snapshots, stores.Movements, stores.Groups, cfg.UTCOffset, logger)
	report, err := loader.Load(ctx, *kind, input)
	if err != nil {
		logger.LogError(err)
		stores.Close()
		os.Exit(1)
	}

	if *quarantine != "" && len(report.Rejected) > 0 {
		if err := writeQuarantine(*quarantine, report.Rejected); err != nil {
			logger.Error("Failed to write quarantine file: %v", err)
		}
	}

	fmt.Printf("Loaded %d %s, quarantined %d\n", report.Loaded, report.Kind, len(report.Rejected))
}

func writeQuarantine(path string, rejected []ingest.Rejection) error {
	data, err := json.MarshalIndent(rejected, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run cmd/ingest/main.go -kind KIND [-file PATH] [-quarantine PATH]")
	fmt.Println("\nExamples:")
	fmt.Println("  go run cmd/ingest/main.go -kind groups -file groups.jsonl")
	fmt.Println("  go run cmd/ingest/main.go -kind movements -file movements.jsonl -quarantine rejected.json")
}
