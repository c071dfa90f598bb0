package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/tle/tletest"
)

func TestReadLines(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "only blanks", input: "\n\r\n  \n", want: nil},
		{
			name:  "crlf and padding",
			input: "\r\nISS (ZARYA)   \r\n" + tletest.ISSLine1 + "\r\n" + tletest.ISSLine2 + "\r\n\r\n",
			want:  []string{"ISS (ZARYA)", tletest.ISSLine1, tletest.ISSLine2},
		},
		{
			name:  "interior blank kept",
			input: "A\n\nB\n",
			want:  []string{"A", "", "B"},
		},
		{
			name:  "no trailing newline",
			input: "A\nB",
			want:  []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadLines(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSource(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), "stations.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(tletest.Lines(), "\n")+"\n"), 0o600))

	src := NewFileSource(path)
	assert.Equal(t, "file:stations", src.Name())

	lines, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tletest.Lines(), lines)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.txt")).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrFetch)
}
