package ingestion

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const reportRule = 50

type (
	// RunStats accumulates counts over one pipeline run.
	//
	// SatellitesUpdated counts distinct catalog numbers written per batch, so a
	// satellite seen in two batches is counted twice. ObservationsSkipped counts
	// observations already present in the store, which is not an error.
	RunStats struct {
		SatellitesUpdated   int `json:"satellites_updated"`   //nolint: tagliatelle
		ObservationsAdded   int `json:"observations_added"`   //nolint: tagliatelle
		ObservationsSkipped int `json:"observations_skipped"` //nolint: tagliatelle
		Errors              int `json:"errors"`
	}

	// Report is the outcome of one run as shown to operators.
	Report struct {
		RunID      string
		Source     string
		StartedAt  time.Time
		FinishedAt time.Time
		Records    int
		Stats      RunStats
		Totals     *StoreStats
	}
)

// Reset zeroes every counter.
func (s *RunStats) Reset() {
	*s = RunStats{}
}

// Merge folds other's counts into s.
func (s *RunStats) Merge(other RunStats) {
	s.SatellitesUpdated += other.SatellitesUpdated
	s.ObservationsAdded += other.ObservationsAdded
	s.ObservationsSkipped += other.ObservationsSkipped
	s.Errors += other.Errors
}

// Summary returns a one-line rendering suitable for logs.
func (s RunStats) Summary() string {
	return fmt.Sprintf("satellites_updated=%d observations_added=%d observations_skipped=%d errors=%d",
		s.SatellitesUpdated, s.ObservationsAdded, s.ObservationsSkipped, s.Errors)
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Write renders the report in the operator-facing text layout.
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder

	rule := strings.Repeat("=", reportRule)

	fmt.Fprintf(&b, "\n%s\nUPDATE STATISTICS\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Run:                    %s\n", r.RunID)
	fmt.Fprintf(&b, "Source:                 %s\n", r.Source)
	fmt.Fprintf(&b, "Records processed:      %d\n", r.Records)
	fmt.Fprintf(&b, "Satellites updated:     %d\n", r.Stats.SatellitesUpdated)
	fmt.Fprintf(&b, "New observations added: %d\n", r.Stats.ObservationsAdded)
	fmt.Fprintf(&b, "Duplicates skipped:     %d\n", r.Stats.ObservationsSkipped)
	fmt.Fprintf(&b, "Errors:                 %d\n", r.Stats.Errors)
	fmt.Fprintf(&b, "Duration:               %s\n", r.Duration().Round(time.Millisecond))

	if r.Totals != nil {
		writeTotals(&b, r.Totals)
	}

	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())

	return err
}

// WriteTotals renders store-wide totals on their own.
func WriteTotals(w io.Writer, totals *StoreStats) error {
	var b strings.Builder

	writeTotals(&b, totals)

	_, err := io.WriteString(w, b.String())

	return err
}

func writeTotals(b *strings.Builder, totals *StoreStats) {
	latest := "none"
	if totals.LatestEpoch != nil {
		latest = totals.LatestEpoch.UTC().Format(time.RFC3339Nano)
	}

	fmt.Fprintf(b, "\nDATABASE TOTALS\n%s\n", strings.Repeat("-", reportRule))
	fmt.Fprintf(b, "Total satellites:       %d\n", totals.TotalSatellites)
	fmt.Fprintf(b, "Active satellites:      %d\n", totals.ActiveSatellites)
	fmt.Fprintf(b, "Total observations:     %d\n", totals.TotalObservations)
	fmt.Fprintf(b, "Latest epoch:           %s\n", latest)
}
