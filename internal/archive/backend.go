package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Backend is a hierarchical storage service. Paths are slash separated and relative to the
// backend's own root. Every method must be safe to repeat.
type Backend interface {
	CreateDirIfNotExists(ctx context.Context, path string) error
	CreateFileIfNotExists(ctx context.Context, path string) error
	// Upload writes exactly length bytes read from r to the file at path.
	Upload(ctx context.Context, path string, r io.Reader, length int64, overwrite bool) error
}

// FSBackend stores the archive on an afero filesystem
type FSBackend struct {
	fs afero.Fs
}

func NewFSBackend(fs afero.Fs) *FSBackend {
	return &FSBackend{fs: fs}
}

// NewOSBackend roots the archive at basePath on the local disk
func NewOSBackend(basePath string) (*FSBackend, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare archive base path %s: %w", basePath, err)
	}
	return NewFSBackend(afero.NewBasePathFs(afero.NewOsFs(), basePath)), nil
}

func (b *FSBackend) CreateDirIfNotExists(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	info, err := b.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path %s exists and is not a directory", path)
	}
	return nil
}

func (b *FSBackend) CreateFileIfNotExists(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := b.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	return f.Close()
}

func (b *FSBackend) Upload(ctx context.Context, path string, r io.Reader, length int64, overwrite bool) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	flag := os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		exists, statErr := afero.Exists(b.fs, path)
		if statErr != nil {
			return fmt.Errorf("failed to stat file %s: %w", path, statErr)
		}
		if exists {
			return fmt.Errorf("file %s already exists: %w", path, os.ErrExist)
		}
		flag |= os.O_CREATE
	}

	f, err := b.fs.OpenFile(path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to finalize file %s: %w", path, closeErr)
		}
	}()

	n, err := io.CopyN(f, r, length)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("short upload to %s: wrote %d of %d bytes", path, n, length)
		}
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}
