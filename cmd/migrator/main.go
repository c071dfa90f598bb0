// Package main provides the database migration CLI tool for astrolabe.
//
// Migrations are embedded in the binary and validated (naming, pairing,
// sequence and checksums) before any command runs. MIGRATIONS_PATH may point
// at a directory to use instead.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/astrolabe-io/astrolabe/internal/config"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "migrator"
)

func main() {
	var (
		configHelp  = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *configHelp || flag.NArg() < 1 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	logger := config.NewLogger()
	command := flag.Arg(0)

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(context.Background(), cfg, os.Stdout, logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = executeCommand(command, runner, os.Stdin, os.Stdout)

	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("Failed to close migration runner", slog.String("error", closeErr.Error()))
	}

	if err != nil {
		logger.Error("Migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// executeCommand runs the specified migration command. Drop asks for
// confirmation on in.
func executeCommand(command string, runner MigrationRunner, in io.Reader, out io.Writer) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		_, _ = fmt.Fprint(out, "WARNING: This will drop all tables. Are you sure? (y/N): ")

		response, _ := bufio.NewReader(in).ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(response), "y") {
			return runner.Drop()
		}

		_, _ = fmt.Fprintln(out, "Operation cancelled.")

		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage displays usage information.
func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s v%s - Database Migration Tool for astrolabe

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Roll back the last migration
    status  Show migration status and pending count
    version Show current migration version
    drop    Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL    PostgreSQL connection string (REQUIRED)

    MIGRATIONS_PATH Directory of migration files to use instead of the
                    embedded schema (default: embedded)

    MIGRATION_TABLE Name of migration tracking table
                    (default: schema_migrations)

    LOG_LEVEL       debug, info, warn or error (default: info)

EXAMPLES:
    %s up                   # Apply all pending migrations
    %s status               # Show current migration status
    %s down                 # Roll back last migration
    %s --version            # Show version information
`, name, version, name, name, name, name, name)
}
