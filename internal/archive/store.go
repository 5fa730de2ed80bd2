// Package archive writes records into a date partitioned hierarchy:
//
//	<root>/<category>/year=YYYY/month=YYYYMM/day=YYYYMMDD/<name>
//
// Partitions come from the UTC wall clock at write time. Every directory and file creation is
// idempotent, so concurrent writers for the same day converge without coordination.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
)

var (
	// ErrEmptyContent is returned by Write when there is nothing to store
	ErrEmptyContent = errors.New("archive: empty content")
	// ErrInvalidName is returned for names that are not a single path element
	ErrInvalidName = errors.New("archive: invalid name")
)

// ValidateName accepts name only if it is one plain path element, so a file always lands
// directly inside its partition
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		path.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Dir is a handle to a directory that is known to exist in the backend
type Dir struct {
	path string
}

func (d Dir) Path() string { return d.path }

// Entry describes one archived file
type Entry struct {
	Category   string
	Name       string
	Path       string
	Bytes      int64
	ArchivedAt time.Time
}

type Store struct {
	backend Backend
	root    string
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Store)

// WithClock replaces the wall clock used to pick date partitions
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(backend Backend, root string, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		root:    root,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureCategoryDir creates <root>/<category> unless it already exists
func (s *Store) EnsureCategoryDir(ctx context.Context, category string) (Dir, error) {
	if err := ValidateName(category); err != nil {
		return Dir{}, err
	}
	p := path.Join(s.root, category)
	if err := s.backend.CreateDirIfNotExists(ctx, p); err != nil {
		return Dir{}, err
	}
	return Dir{path: p}, nil
}

// EnsureDatePartition creates year=, month= and day= levels under dir for the current UTC
// date and returns the innermost one
func (s *Store) EnsureDatePartition(ctx context.Context, dir Dir) (Dir, error) {
	now := s.now().UTC()
	current := dir.path
	for _, level := range []string{
		"year=" + now.Format("2006"),
		"month=" + now.Format("200601"),
		"day=" + now.Format("20060102"),
	} {
		current = path.Join(current, level)
		if err := s.backend.CreateDirIfNotExists(ctx, current); err != nil {
			return Dir{}, err
		}
	}
	return Dir{path: current}, nil
}

// Write creates name under dir if absent and replaces its contents with content.
// Empty content and names that are not a single path element are rejected before any
// backend call.
func (s *Store) Write(ctx context.Context, dir Dir, name string, content []byte) (Entry, error) {
	if len(content) == 0 {
		return Entry{}, ErrEmptyContent
	}
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}

	p := path.Join(dir.path, name)
	if err := s.backend.CreateFileIfNotExists(ctx, p); err != nil {
		return Entry{}, err
	}

	// Length is the encoded byte count, not the rune count
	length := int64(len(content))
	if err := s.backend.Upload(ctx, p, bytes.NewReader(content), length, true); err != nil {
		return Entry{}, err
	}

	return Entry{
		Name:       name,
		Path:       p,
		Bytes:      length,
		ArchivedAt: s.now().UTC(),
	}, nil
}

// Save archives content as <category>/<partition>/<name>. I/O failures are logged and reported
// as not written, never returned.
func (s *Store) Save(ctx context.Context, category, name string, content []byte) (Entry, bool) {
	l := s.logger.With("category", category, "name", name)

	if len(content) == 0 {
		l.Warn("Skipping empty record, nothing archived")
		return Entry{}, false
	}

	entry, err := s.save(ctx, category, name, content)
	if err != nil {
		l.Error("Failed to archive record", "error", err)
		metrics.ArchiveWrites.WithLabelValues(category, "error").Inc()
		return Entry{}, false
	}

	metrics.ArchiveWrites.WithLabelValues(category, "written").Inc()
	metrics.ArchivedBytes.WithLabelValues(category).Add(float64(entry.Bytes))
	l.Info("Exported record to archive", "path", entry.Path, "bytes", entry.Bytes)
	return entry, true
}

func (s *Store) save(ctx context.Context, category, name string, content []byte) (Entry, error) {
	dir, err := s.EnsureCategoryDir(ctx, category)
	if err != nil {
		return Entry{}, fmt.Errorf("category directory: %w", err)
	}

	dir, err = s.EnsureDatePartition(ctx, dir)
	if err != nil {
		return Entry{}, fmt.Errorf("date partition: %w", err)
	}

	entry, err := s.Write(ctx, dir, name, content)
	if err != nil {
		return Entry{}, fmt.Errorf("write: %w", err)
	}
	entry.Category = category
	return entry, nil
}
