package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
	"github.com/astrolabe-io/astrolabe/internal/storage"
)

func runStats(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stdout)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}

		return exitUsage
	}

	store, err := storage.Open(ctx, storage.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))

		return exitFailure
	}

	defer func() {
		_ = store.Close()
	}()

	totals, err := store.GetStats(ctx)
	if err != nil {
		logger.Error("Failed to read store totals", slog.String("error", err.Error()))

		return exitFailure
	}

	if err := ingestion.WriteTotals(stdout, totals); err != nil {
		return exitFailure
	}

	return exitOK
}
