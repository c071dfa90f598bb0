package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/tle"
)

func textfile(t *testing.T, c *Collector) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "astrolabe.prom")
	require.NoError(t, c.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(content)
}

func TestCollector_RecordDecode(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewCollector()
	c.RecordDecode(nil)
	c.RecordDecode(nil)
	c.RecordDecode(fmt.Errorf("line 1: %w", tle.ErrChecksumInvalid))
	c.RecordDecode(fmt.Errorf("inclination: %w", tle.ErrFieldParse))
	c.RecordDecode(errors.New("unexpected"))

	out := textfile(t, c)
	assert.Contains(t, out, `astrolabe_records_decoded_total{kind="none",result="ok"} 2`)
	assert.Contains(t, out, `astrolabe_records_decoded_total{kind="checksum",result="error"} 1`)
	assert.Contains(t, out, `astrolabe_records_decoded_total{kind="field_parse",result="error"} 1`)
	assert.Contains(t, out, `astrolabe_records_decoded_total{kind="other",result="error"} 1`)
}

func TestCollector_RecordFlushAndObservations(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewCollector()
	c.RecordFlush("satellites", 12*time.Millisecond, nil)
	c.RecordFlush("observations", 30*time.Millisecond, errors.New("boom"))
	c.RecordObservations(3, 2, 1)
	c.RecordObservations(1, 0, 0)

	out := textfile(t, c)
	assert.Contains(t, out, `astrolabe_flush_duration_seconds_count{result="ok",step="satellites"} 1`)
	assert.Contains(t, out, `astrolabe_flush_duration_seconds_count{result="error",step="observations"} 1`)
	assert.Contains(t, out, `astrolabe_observations_total{outcome="inserted"} 4`)
	assert.Contains(t, out, `astrolabe_observations_total{outcome="skipped"} 2`)
	assert.Contains(t, out, `astrolabe_observations_total{outcome="failed"} 1`)
}

func TestCollector_RecordPublish(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewCollector()
	c.RecordPublish("kafka", 5, nil)
	c.RecordPublish("parquet", 2, errors.New("disk full"))
	c.MarkRunFinished(time.Unix(1700000000, 0))

	out := textfile(t, c)
	assert.Contains(t, out, `astrolabe_observations_published_total{publisher="kafka",result="ok"} 5`)
	assert.Contains(t, out, `astrolabe_observations_published_total{publisher="parquet",result="error"} 2`)
	assert.Contains(t, out, "astrolabe_last_run_timestamp_seconds 1.7e+09")
}

func TestCollector_Registry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	c := NewCollector()
	c.RecordDecode(nil)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}

	assert.Contains(t, names, "astrolabe_records_decoded_total")
	assert.Contains(t, names, "astrolabe_last_run_timestamp_seconds")
}

func TestWriteTextfile_BadPath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	err := NewCollector().WriteTextfile(filepath.Join(t.TempDir(), "missing", "astrolabe.prom"))
	assert.Error(t, err)
}

func TestTextfilePath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("METRICS_TEXTFILE", "")
	assert.Empty(t, TextfilePath())

	t.Setenv("METRICS_TEXTFILE", "/var/lib/node_exporter/astrolabe.prom")
	assert.Equal(t, "/var/lib/node_exporter/astrolabe.prom", TextfilePath())
}
