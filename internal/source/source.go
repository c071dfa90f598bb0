// Package source fetches raw element-set text from catalog services and files.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds a single input line. Element lines are 69 characters.
const maxLineBytes = 64 * 1024

var (
	// ErrFetch is returned when raw data cannot be retrieved.
	ErrFetch = errors.New("fetch failed")
	// ErrAuthentication is returned when a session-based API rejects the credentials.
	ErrAuthentication = errors.New("authentication failed")
)

// Source produces the raw lines of one catalog pull.
type Source interface {
	// Name labels observations produced from this source.
	Name() string
	// Fetch returns the lines of the catalog, or ErrFetch / ErrAuthentication.
	Fetch(ctx context.Context) ([]string, error)
}

// ReadLines splits r into lines, trimming surrounding whitespace and CR from
// each and dropping blank lines at the start and end. Interior blank lines
// are kept so that record alignment problems stay visible.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	var lines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" && len(lines) == 0 {
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines, nil
}
