package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads element sets from a local file.
type FileSource struct {
	path string
	name string
}

// NewFileSource returns a source reading path. Observations are labelled
// "file:<base name>".
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, name: "file:" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return s.name
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.path, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	defer func() {
		_ = f.Close()
	}()

	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.path, err)
	}

	return lines, nil
}
