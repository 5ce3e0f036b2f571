package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rumor-ml/commons.systems/finetl/internal/category"
	"github.com/rumor-ml/commons.systems/finetl/internal/config"
	"github.com/rumor-ml/commons.systems/finetl/internal/extract"
	"github.com/rumor-ml/commons.systems/finetl/internal/logging"
	"github.com/rumor-ml/commons.systems/finetl/internal/pipeline"
	"github.com/rumor-ml/commons.systems/finetl/internal/store"
	"github.com/rumor-ml/commons.systems/finetl/internal/transform"
	"github.com/rumor-ml/commons.systems/finetl/internal/ui"
)

const version = "0.1.0"

func usage() {
	fmt.Fprint(os.Stderr, `finetl - Financial report ETL into a star schema

Usage:
  finetl init [flags]                 Create schema, indexes, and reporting views
  finetl run [flags]                  Run the ETL pipeline

Flags:
  -config path    YAML config file (default: compiled-in settings)
  -source name    Source to run: quickbooks, rootfi, or all (default all)
  -verbose        Show debug-level logs
  -version        Show version

Examples:
  # Initialize the database
  finetl init

  # Load both sources
  finetl run

  # Load one source with a custom config
  finetl run -source rootfi -config finetl.yaml

`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	fs.Usage = usage
	configPath := fs.String("config", "", "YAML config file")
	source := fs.String("source", "all", "Source to run: quickbooks, rootfi, or all")
	verbose := fs.Bool("verbose", false, "Show debug-level logs")
	versionFlag := fs.Bool("version", false, "Show version")
	fs.Parse(os.Args[2:])

	if *versionFlag {
		fmt.Printf("finetl version %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var err error
	switch command {
	case "init":
		err = runInit(cfg, *verbose)
	case "run":
		err = runPipeline(cfg, *source, *verbose)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(cfg config.Config, verbose bool) error {
	ctx := context.Background()
	logger := logging.New(verbose)

	ui.Header("Initializing Financial Database")

	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ui.Step(1, 2, "Creating tables and indexes")
	if err := db.Init(ctx); err != nil {
		return err
	}

	ui.Step(2, 2, "Creating reporting views")
	if err := db.CreateViews(ctx); err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Database ready at %s", cfg.DatabasePath))
	for _, name := range store.ViewNames() {
		ui.Info("view " + name)
	}
	return nil
}

func runPipeline(cfg config.Config, source string, verbose bool) error {
	ctx := context.Background()
	logger := logging.New(verbose)

	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Schema setup is idempotent; running it here means `finetl run` works
	// on a fresh database without a separate init.
	if err := db.Init(ctx); err != nil {
		return err
	}
	if err := db.CreateViews(ctx); err != nil {
		return err
	}

	mapper, err := category.NewMapper()
	if err != nil {
		return err
	}
	transformer, err := transform.NewTransformer(mapper)
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(db, cfg, transformer, logger)
	if err != nil {
		return err
	}

	if source != "all" {
		ui.Header(fmt.Sprintf("Running %s Pipeline", source))
		path, err := cfg.SourceFile(source)
		if err != nil {
			return err
		}
		extractor, err := extract.ForSource(source, path, logger)
		if err != nil {
			return err
		}
		stats, err := runner.Run(ctx, extractor, source)
		if err != nil {
			return err
		}
		printStats(stats.Source, stats.RecordsProcessed, stats.RecordsFailed, stats.FailedRecordsCSV)
		return nil
	}

	ui.Header("Running Full Pipeline")
	results, err := runner.RunAll(ctx)
	if err != nil {
		return err
	}

	failures := 0
	for _, name := range extract.Sources() {
		result := results.Sources[name]
		if result.Err != nil {
			ui.Error(fmt.Sprintf("%s: %v", name, result.Err))
			failures++
			continue
		}
		printStats(name, result.Stats.RecordsProcessed, result.Stats.RecordsFailed, result.Stats.FailedRecordsCSV)
	}
	ui.Summary("total records", results.TotalRecords)
	ui.Summary("total failed", results.TotalFailed)

	// Partial success still exits 0; the per-source errors are printed above.
	if failures == len(extract.Sources()) {
		return fmt.Errorf("all sources failed")
	}
	return nil
}

func printStats(source string, processed, failed int, failedCSV string) {
	ui.Success(fmt.Sprintf("%s: %d records loaded, %d failed", source, processed, failed))
	if failedCSV != "" {
		ui.Warning("failed records written to " + failedCSV)
	}
}
