// Package migrations embeds the PostgreSQL schema for the astrolabe element store.
//
// Files follow the NNN_name.(up|down).sql convention and are validated before
// any state-changing operation: filename format, up/down pairing, a gap-free
// sequence starting at 001, and content checksums that must not change within
// the lifetime of a process.
package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var embedded embed.FS

// Validation errors.
var (
	ErrNoMigrations     = errors.New("no migration files found")
	ErrInvalidFilename  = errors.New("invalid migration filename")
	ErrUnpaired         = errors.New("unpaired migration")
	ErrSequenceGap      = errors.New("gap in migration sequence")
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// filenamePattern matches 001_create_satellites.up.sql.
var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// File describes one parsed migration file.
type File struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

// Set is a validated view over a migration filesystem.
type Set struct {
	fsys      fs.FS
	checksums map[string]string
}

// New returns a Set over fsys. A nil fsys selects the embedded schema.
func New(fsys fs.FS) *Set {
	if fsys == nil {
		fsys = embedded
	}

	return &Set{fsys: fsys, checksums: make(map[string]string)}
}

// FS returns the underlying filesystem.
func (s *Set) FS() fs.FS {
	return s.fsys
}

// Source returns a golang-migrate source driver reading from the set.
func (s *Set) Source() (source.Driver, error) {
	d, err := iofs.New(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	return d, nil
}

// List returns the well-formed migration filenames in lexical order.
// Files that do not match the naming convention are ignored.
func (s *Set) List() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		if filenamePattern.MatchString(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)

	return files, nil
}

// Parse splits a migration filename into its components.
func Parse(filename string) (*File, error) {
	m := filenamePattern.FindStringSubmatch(filename)
	if len(m) != 4 {
		return nil, fmt.Errorf("%w: %s (expected 001_name.up.sql or 001_name.down.sql)", ErrInvalidFilename, filename)
	}

	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFilename, filename, err)
	}

	return &File{Sequence: seq, Name: m[2], Direction: m[3], Filename: filename}, nil
}

// Validate checks pairing, sequence and checksums of every migration file.
// The first successful call records checksums; later calls fail if content changed.
func (s *Set) Validate() error {
	files, err := s.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	parsed := make([]*File, 0, len(files))

	for _, f := range files {
		p, err := Parse(f)
		if err != nil {
			return err
		}

		parsed = append(parsed, p)
	}

	if err := checkPairs(parsed); err != nil {
		return err
	}

	if err := checkSequence(parsed); err != nil {
		return err
	}

	for _, f := range files {
		content, err := fs.ReadFile(s.fsys, f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		sum := sha256.Sum256(content)
		current := hex.EncodeToString(sum[:])

		if previous, ok := s.checksums[f]; ok && previous != current {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, f)
		}

		s.checksums[f] = current
	}

	return nil
}

// MaxVersion returns the highest sequence number present, or 0.
func (s *Set) MaxVersion() int {
	files, err := s.List()
	if err != nil {
		return 0
	}

	highest := 0

	for _, f := range files {
		if p, err := Parse(f); err == nil && p.Sequence > highest {
			highest = p.Sequence
		}
	}

	return highest
}

func checkPairs(files []*File) error {
	directions := make(map[string]map[string]bool)

	for _, f := range files {
		key := fmt.Sprintf("%03d_%s", f.Sequence, f.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][f.Direction] = true
	}

	for key, d := range directions {
		if !d["up"] {
			return fmt.Errorf("%w: missing up migration for %s", ErrUnpaired, key)
		}

		if !d["down"] {
			return fmt.Errorf("%w: missing down migration for %s", ErrUnpaired, key)
		}
	}

	return nil
}

func checkSequence(files []*File) error {
	seen := make(map[int]bool)

	var seqs []int

	for _, f := range files {
		if !seen[f.Sequence] {
			seen[f.Sequence] = true
			seqs = append(seqs, f.Sequence)
		}
	}

	sort.Ints(seqs)

	if seqs[0] != 1 {
		return fmt.Errorf("%w: sequence should start with 001, found %03d", ErrSequenceGap, seqs[0])
	}

	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			return fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, seqs[i-1]+1, seqs[i])
		}
	}

	return nil
}
