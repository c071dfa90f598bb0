// Package main provides the astrolabe command line tool.
//
// astrolabe pulls two-line element sets from CelesTrak, Space-Track or a local
// file, validates them and stores new observations in the configured backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/astrolabe-io/astrolabe/internal/config"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "astrolabe"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := run(ctx, os.Args[1:], os.Stdout, config.NewLogger())

	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	showVersion := fs.Bool("version", false, "show version information")
	fs.Usage = func() { printUsage(stdout) }

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *showVersion {
		_, _ = fmt.Fprintf(stdout, "%s v%s\n", name, version)

		return exitOK
	}

	if fs.NArg() == 0 {
		printUsage(stdout)

		return exitUsage
	}

	command, rest := fs.Arg(0), fs.Args()[1:]

	switch command {
	case "ingest":
		return runIngest(ctx, rest, stdout, logger)
	case "stats":
		return runStats(ctx, rest, stdout, logger)
	case "help":
		printUsage(stdout)

		return exitOK
	default:
		_, _ = fmt.Fprintf(stdout, "unknown command: %s\n\n", command)
		printUsage(stdout)

		return exitUsage
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s v%s - orbital element ingestion

USAGE:
    %s [OPTIONS] COMMAND [COMMAND OPTIONS]

COMMANDS:
    ingest  Fetch element sets and store new observations
            -group NAME    catalog group to pull (default from config, else "active")
            -all           pull every known catalog group
            -file PATH     read element sets from a local file
            -spacetrack    pull from Space-Track instead of CelesTrak
            -source LABEL  override the source label stored with observations
            -totals        print store totals after the run (default true)
    stats   Print store totals

OPTIONS:
    -version   Show version information

ENVIRONMENT VARIABLES:
    ASTROLABE_BACKEND     sqlite (default), postgres or rest
    SQLITE_PATH           SQLite database file (default: astrolabe.db)
    DATABASE_URL          PostgreSQL connection string
    SUPABASE_URL          PostgREST base URL for the rest backend
    SUPABASE_KEY          PostgREST API key
    INGEST_BATCH_SIZE     satellites per flush (default: 100)
    KAFKA_BROKERS         publish new observations to these brokers
    PARQUET_EXPORT_PATH   write new observations to this Parquet file (replaced each run)
    METRICS_TEXTFILE      write Prometheus metrics to this file
    LOG_LEVEL             debug, info, warn or error

EXAMPLES:
    %s ingest                      # pull the default group
    %s ingest -group stations      # pull one group
    %s ingest -all                 # pull every group
    %s ingest -file elements.txt   # load a local file
    %s stats                       # show store totals
`, name, version, name, name, name, name, name, name)
}
