package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dvloznov/bank-forwarder/internal/app"
	"github.com/dvloznov/bank-forwarder/internal/config"
	"github.com/dvloznov/bank-forwarder/internal/logger"
	"github.com/dvloznov/bank-forwarder/internal/report"
	"github.com/dvloznov/bank-forwarder/internal/runs"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run-once":
		runOnce()
	case "inspect":
		runInspect()
	case "streams":
		runStreams()
	case "runs":
		runRuns()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Forwarder CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run-once  Run a single poll cycle and print its runs")
	fmt.Println("  inspect   Show the cached snapshot of a stream")
	fmt.Println("  streams   List the configured streams")
	fmt.Println("  runs      List recent runs from the BigQuery run log")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nEvery command accepts --config (or " + config.EnvVar + ").")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// setup parses the subcommand flags and loads the config.
func setup(fs *pflag.FlagSet) (*config.Config, zerolog.Logger) {
	configPath := fs.StringP("config", "c", "", "path to the YAML config")
	fs.Parse(os.Args[2:])

	log := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	leveled, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	return cfg, leveled
}

func runOnce() {
	fs := pflag.NewFlagSet("run-once", pflag.ExitOnError)
	cfg, log := setup(fs)

	ctx := logger.WithContext(context.Background(), log)

	forwarder, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build forwarder")
	}
	defer forwarder.Close()

	result := forwarder.Poller.RunCycle(ctx)
	report.Runs(os.Stdout, result.Runs)

	if failed := result.Failed(); len(failed) > 0 {
		fmt.Printf("%d of %d streams failed.\n", len(failed), len(result.Runs))
		forwarder.Close()
		os.Exit(1)
	}
}

func runInspect() {
	fs := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	streamName := fs.String("stream", "", "stream key to inspect")
	cfg, log := setup(fs)

	if *streamName == "" {
		log.Fatal().Msg("Error: --stream is required")
	}
	stream, ok := cfg.Stream(*streamName)
	if !ok {
		log.Fatal().Str("stream", *streamName).Msg("Stream not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := app.OpenSnapshots(ctx, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot cache")
	}
	defer store.Close()

	snap, err := store.Load(ctx, stream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load snapshot")
	}

	fmt.Printf("\n=== %s (%s) ===\n", stream.Name, stream.Kind)
	report.Snapshot(os.Stdout, snap)
}

func runStreams() {
	fs := pflag.NewFlagSet("streams", pflag.ExitOnError)
	cfg, _ := setup(fs)

	report.Streams(os.Stdout, cfg.Streams())
}

func runRuns() {
	fs := pflag.NewFlagSet("runs", pflag.ExitOnError)
	streamName := fs.String("stream", "", "only runs of this stream")
	status := fs.String("status", "", "only runs with this status (succeeded, partial, failed)")
	limit := fs.Int("limit", 20, "maximum number of runs")
	cfg, log := setup(fs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := app.OpenRunLog(ctx, cfg.BigQuery)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open run log")
	}
	defer repo.Close()

	list, err := repo.ListRuns(ctx, runs.Filter{
		Stream: *streamName,
		Status: runs.Status(*status),
		Limit:  *limit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	report.Runs(os.Stdout, list)
}
