// Package metrics records pipeline activity as Prometheus metrics.
//
// Ingestion runs are short-lived batch jobs, so metrics are written to a
// node_exporter textfile at the end of a run rather than served over HTTP.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/ingestion"
	"github.com/astrolabe-io/astrolabe/internal/tle"
)

const namespace = "astrolabe"

// Label values.
const (
	resultOK       = "ok"
	resultError    = "error"
	kindNone       = "none"
	kindChecksum   = "checksum"
	kindFieldParse = "field_parse"
	kindOther      = "other"
)

var _ ingestion.Recorder = (*Collector)(nil)

// Collector implements ingestion.Recorder on a private registry.
type Collector struct {
	registry *prometheus.Registry

	decoded       *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	observations  *prometheus.CounterVec
	published     *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_decoded_total",
			Help:      "Element-set records decoded, by result and failure kind",
		}, []string{"result", "kind"}),

		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing a batch to the store, by step and outcome",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"step", "result"}),

		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations handled by the store, by outcome",
		}, []string{"outcome"}),

		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_published_total",
			Help:      "Observations handed to publishers, by publisher and result",
		}, []string{"publisher", "result"}),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last ingestion run finished",
		}),
	}

	registry.MustRegister(c.decoded, c.flushDuration, c.observations, c.published, c.lastRun)

	return c
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDecode implements ingestion.Recorder.
func (c *Collector) RecordDecode(err error) {
	if err == nil {
		c.decoded.WithLabelValues(resultOK, kindNone).Inc()
		return
	}

	kind := kindOther

	switch {
	case errors.Is(err, tle.ErrChecksumInvalid):
		kind = kindChecksum
	case errors.Is(err, tle.ErrFieldParse):
		kind = kindFieldParse
	}

	c.decoded.WithLabelValues(resultError, kind).Inc()
}

// RecordFlush implements ingestion.Recorder.
func (c *Collector) RecordFlush(step string, elapsed time.Duration, err error) {
	c.flushDuration.WithLabelValues(step, result(err)).Observe(elapsed.Seconds())
}

// RecordObservations implements ingestion.Recorder.
func (c *Collector) RecordObservations(inserted, skipped, failed int) {
	c.observations.WithLabelValues("inserted").Add(float64(inserted))
	c.observations.WithLabelValues("skipped").Add(float64(skipped))
	c.observations.WithLabelValues("failed").Add(float64(failed))
}

// RecordPublish implements ingestion.Recorder.
func (c *Collector) RecordPublish(publisher string, count int, err error) {
	c.published.WithLabelValues(publisher, result(err)).Add(float64(count))
}

// MarkRunFinished sets the last-run gauge.
func (c *Collector) MarkRunFinished(at time.Time) {
	c.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes every metric in the text exposition format, replacing
// path atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}

// TextfilePath returns METRICS_TEXTFILE, empty when metrics export is disabled.
func TextfilePath() string {
	return config.GetEnvStr("METRICS_TEXTFILE", "")
}

func result(err error) string {
	if err != nil {
		return resultError
	}

	return resultOK
}
