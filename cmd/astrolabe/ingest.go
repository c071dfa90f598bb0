package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
	"github.com/astrolabe-io/astrolabe/internal/metrics"
	"github.com/astrolabe-io/astrolabe/internal/publish"
	"github.com/astrolabe-io/astrolabe/internal/source"
	"github.com/astrolabe-io/astrolabe/internal/storage"
)

// ErrConflictingFlags is returned when more than one input is selected.
var ErrConflictingFlags = errors.New("choose one of -group, -all, -file or -spacetrack")

type ingestOptions struct {
	group      string
	all        bool
	file       string
	spaceTrack bool
	label      string
	totals     bool
}

// outcome summarises an ingest invocation across all sources.
type outcome struct {
	succeeded int
	failed    int
	added     int
}

func parseIngestFlags(args []string, stdout io.Writer) (*ingestOptions, error) {
	opts := &ingestOptions{}

	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&opts.group, "group", "", "catalog group to pull")
	fs.BoolVar(&opts.all, "all", false, "pull every known catalog group")
	fs.StringVar(&opts.file, "file", "", "read element sets from a local file")
	fs.BoolVar(&opts.spaceTrack, "spacetrack", false, "pull from Space-Track")
	fs.StringVar(&opts.label, "source", "", "override the stored source label")
	fs.BoolVar(&opts.totals, "totals", true, "print store totals after the run")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	selected := 0

	for _, set := range []bool{opts.group != "", opts.all, opts.file != "", opts.spaceTrack} {
		if set {
			selected++
		}
	}

	if selected > 1 {
		return nil, ErrConflictingFlags
	}

	return opts, nil
}

func runIngest(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) int {
	opts, err := parseIngestFlags(args, stdout)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(stdout, "ingest: %v\n", err)
		}

		return exitUsage
	}

	sources, err := buildSources(opts, source.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to configure source", slog.String("error", err.Error()))

		return exitFailure
	}

	store, err := storage.Open(ctx, storage.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))

		return exitFailure
	}

	defer func() {
		_ = store.Close()
	}()

	collector := metrics.NewCollector()

	pipeline, err := newPipeline(store, collector, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", slog.String("error", err.Error()))

		return exitFailure
	}

	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("Failed to close publishers", slog.String("error", err.Error()))
		}
	}()

	result := ingest(ctx, pipeline, sources, opts, stdout, logger)

	writeMetrics(collector, logger)

	if result.succeeded == 0 {
		_, _ = fmt.Fprintln(stdout, "Update failed: no element sets were fetched")

		return exitFailure
	}

	if result.added == 0 {
		_, _ = fmt.Fprintln(stdout, "No new data")
	}

	return exitOK
}

// ingest runs every source through the pipeline. A source that fails to fetch
// is reported and skipped; the remaining sources still run.
func ingest(
	ctx context.Context,
	pipeline *ingestion.Pipeline,
	sources []source.Source,
	opts *ingestOptions,
	stdout io.Writer,
	logger *slog.Logger,
) outcome {
	var (
		result  outcome
		reports []*ingestion.Report
	)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}

		lines, err := src.Fetch(ctx)
		if err != nil {
			result.failed++

			logger.Error("Failed to fetch element sets",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()))
			_, _ = fmt.Fprintf(stdout, "Failed to fetch TLE data from %s\n", src.Name())

			continue
		}

		label := opts.label
		if label == "" {
			label = src.Name()
		}

		report, err := pipeline.Run(ctx, label, lines)
		if errors.Is(err, ingestion.ErrNoInput) {
			result.failed++

			_, _ = fmt.Fprintf(stdout, "No element sets received from %s\n", src.Name())

			continue
		}

		if err != nil {
			logger.Error("Run interrupted",
				slog.String("source", label),
				slog.String("error", err.Error()))
		}

		if report == nil {
			result.failed++

			continue
		}

		result.succeeded++
		result.added += report.Stats.ObservationsAdded
		reports = append(reports, report)

		if len(sources) > 1 {
			_ = report.Write(stdout)
		}
	}

	if len(reports) == 0 {
		return result
	}

	final := reports[0]
	if len(sources) > 1 {
		final = summarise(reports)
	}

	if opts.totals {
		if err := pipeline.Totals(ctx, final); err != nil {
			logger.Warn("Failed to read store totals", slog.String("error", err.Error()))
		}
	}

	_ = final.Write(stdout)

	return result
}

// summarise merges per-source reports into one.
func summarise(reports []*ingestion.Report) *ingestion.Report {
	summary := &ingestion.Report{
		RunID:      "all",
		Source:     fmt.Sprintf("%d sources", len(reports)),
		StartedAt:  reports[0].StartedAt,
		FinishedAt: reports[len(reports)-1].FinishedAt,
	}

	for _, r := range reports {
		summary.Records += r.Records
		summary.Stats.Merge(r.Stats)
	}

	return summary
}

func buildSources(opts *ingestOptions, cfg *source.Config, logger *slog.Logger) ([]source.Source, error) {
	switch {
	case opts.file != "":
		return []source.Source{source.NewFileSource(opts.file)}, nil
	case opts.spaceTrack:
		if err := cfg.ValidateSpaceTrack(); err != nil {
			return nil, err
		}

		logger.Info("Using Space-Track",
			slog.String("identity", cfg.SpaceTrackIdentity),
			slog.String("password", cfg.MaskedSpaceTrackPassword()))

		st, err := source.NewSpaceTrackSource(cfg, logger)
		if err != nil {
			return nil, err
		}

		return []source.Source{st}, nil
	}

	catalog, err := source.LoadCatalogConfigFromEnv()
	if err != nil {
		return nil, err
	}

	groups := []string{catalog.Default()}

	switch {
	case opts.all:
		groups = catalog.GroupNames()
	case opts.group != "":
		groups = []string{opts.group}
	}

	limiter := source.NewLimiter(cfg.CelestrakRPS)
	sources := make([]source.Source, 0, len(groups))

	for _, group := range groups {
		url, err := catalog.GroupURL(group)
		if err != nil {
			return nil, err
		}

		sources = append(sources, source.NewCelestrakSource(group, url, cfg,
			source.WithLimiter(limiter),
			source.WithLogger(logger)))
	}

	return sources, nil
}

func newPipeline(store ingestion.Store, recorder ingestion.Recorder, logger *slog.Logger) (*ingestion.Pipeline, error) {
	cfg := ingestion.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	publishers, err := publish.Build(publish.LoadConfig(), logger)
	if err != nil {
		return nil, err
	}

	opts := append(cfg.Options(), ingestion.WithLogger(logger), ingestion.WithRecorder(recorder))
	for _, pub := range publishers {
		opts = append(opts, ingestion.WithPublisher(pub))
	}

	pipeline, err := ingestion.NewPipeline(store, opts...)
	if err != nil {
		for _, pub := range publishers {
			_ = pub.Close()
		}

		return nil, err
	}

	return pipeline, nil
}

func writeMetrics(collector *metrics.Collector, logger *slog.Logger) {
	collector.MarkRunFinished(time.Now())

	path := metrics.TextfilePath()
	if path == "" {
		return
	}

	if err := collector.WriteTextfile(path); err != nil {
		logger.Warn("Failed to write metrics", slog.String("path", path), slog.String("error", err.Error()))
	}
}
