package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 7, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*60*60))

func fixedClock() time.Time { return fixedNow }

// recordingBackend wraps a Backend and remembers every call
type recordingBackend struct {
	Backend
	mu        sync.Mutex
	dirs      []string
	files     []string
	lengths   []int64
	uploadErr error
}

func (r *recordingBackend) CreateDirIfNotExists(ctx context.Context, p string) error {
	r.mu.Lock()
	r.dirs = append(r.dirs, p)
	r.mu.Unlock()
	return r.Backend.CreateDirIfNotExists(ctx, p)
}

func (r *recordingBackend) CreateFileIfNotExists(ctx context.Context, p string) error {
	r.mu.Lock()
	r.files = append(r.files, p)
	r.mu.Unlock()
	return r.Backend.CreateFileIfNotExists(ctx, p)
}

func (r *recordingBackend) Upload(ctx context.Context, p string, rd io.Reader, length int64, overwrite bool) error {
	r.mu.Lock()
	r.lengths = append(r.lengths, length)
	r.mu.Unlock()
	if r.uploadErr != nil {
		return r.uploadErr
	}
	return r.Backend.Upload(ctx, p, rd, length, overwrite)
}

func newTestStore() (*Store, *recordingBackend, afero.Fs) {
	fs := afero.NewMemMapFs()
	backend := &recordingBackend{Backend: NewFSBackend(fs)}
	store := NewStore(backend, "root", slog.New(slog.DiscardHandler), WithClock(fixedClock))
	return store, backend, fs
}

func TestEnsureDatePartition_UsesUTC(t *testing.T) {
	store, _, fs := newTestStore()
	ctx := context.Background()

	dir, err := store.EnsureCategoryDir(ctx, "part-a")
	require.NoError(t, err)

	day, err := store.EnsureDatePartition(ctx, dir)
	require.NoError(t, err)

	// 23:30 at UTC-2 is already the next day in UTC
	assert.Equal(t, "root/part-a/year=2024/month=202403/day=20240308", day.Path())
	isDir, err := afero.IsDir(fs, day.Path())
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestEnsureDatePartition_Idempotent(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	dir, err := store.EnsureCategoryDir(ctx, "ltft")
	require.NoError(t, err)
	again, err := store.EnsureCategoryDir(ctx, "ltft")
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	first, err := store.EnsureDatePartition(ctx, dir)
	require.NoError(t, err)
	second, err := store.EnsureDatePartition(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsureDatePartition_ConcurrentWriters(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir, err := store.EnsureCategoryDir(ctx, "part-b")
			if err != nil {
				errs[i] = err
				return
			}
			day, err := store.EnsureDatePartition(ctx, dir)
			paths[i], errs[i] = day.Path(), err
		}(i)
	}
	wg.Wait()

	for i := range paths {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
}

func TestWrite_OverwritesExistingContent(t *testing.T) {
	store, _, fs := newTestStore()
	ctx := context.Background()
	dir, err := store.EnsureCategoryDir(ctx, "ltft")
	require.NoError(t, err)

	_, err = store.Write(ctx, dir, "123.json", []byte(`{"id":"123","status":"DRAFT-LONGER"}`))
	require.NoError(t, err)
	entry, err := store.Write(ctx, dir, "123.json", []byte(`{"id":"123"}`))
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, entry.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"123"}`, string(data))
}

func TestWrite_ByteLength(t *testing.T) {
	store, backend, fs := newTestStore()
	ctx := context.Background()
	dir, err := store.EnsureCategoryDir(ctx, "part-a")
	require.NoError(t, err)

	content := `{"name":"Zoë Ŝmith ✓"}`
	require.NotEqual(t, len([]rune(content)), len(content))

	entry, err := store.Write(ctx, dir, "multi.json", []byte(content))
	require.NoError(t, err)

	require.Len(t, backend.lengths, 1)
	assert.Equal(t, int64(len(content)), backend.lengths[0])
	assert.Equal(t, int64(len(content)), entry.Bytes)

	data, err := afero.ReadFile(fs, entry.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestWrite_EmptyContentMakesNoCalls(t *testing.T) {
	store, backend, _ := newTestStore()

	_, err := store.Write(context.Background(), Dir{path: "root/ltft"}, "empty.json", nil)

	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, backend.files)
	assert.Empty(t, backend.lengths)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"123.json", true},
		{"abc", true},
		{"..json", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../escaped", false},
		{"../../part-a/year=2024/month=202403/day=20240307/999.json", false},
		{"nested/name.json", false},
		{`windows\name.json`, false},
		{"/absolute", false},
		{"nul\x00byte", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestWrite_RejectsTraversalBeforeBackendCalls(t *testing.T) {
	store, backend, fs := newTestStore()

	_, err := store.Write(context.Background(), Dir{path: "root/ltft"}, "../../escaped", []byte(`{"id":"x"}`))

	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Empty(t, backend.files)
	assert.Empty(t, backend.lengths)
	exists, err := afero.Exists(fs, "escaped")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSave_InvalidNameNotWritten(t *testing.T) {
	store, backend, _ := newTestStore()

	_, ok := store.Save(context.Background(), "notifications", "../../../escaped", []byte(`{"id":"x"}`))

	assert.False(t, ok)
	assert.Empty(t, backend.files)
}

func TestSave_WritesIntoPartition(t *testing.T) {
	store, _, fs := newTestStore()

	entry, ok := store.Save(context.Background(), "notifications", "abc", []byte(`{"id":"abc"}`))

	require.True(t, ok)
	assert.Equal(t, "notifications", entry.Category)
	assert.Equal(t, "root/notifications/year=2024/month=202403/day=20240308/abc", entry.Path)
	data, err := afero.ReadFile(fs, entry.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc"}`, string(data))
}

func TestSave_EmptyContentSkipped(t *testing.T) {
	store, backend, _ := newTestStore()

	_, ok := store.Save(context.Background(), "ltft", "123.json", []byte{})

	assert.False(t, ok)
	assert.Empty(t, backend.dirs)
	assert.Empty(t, backend.files)
}

func TestSave_UploadFailureIsSwallowed(t *testing.T) {
	store, backend, _ := newTestStore()
	backend.uploadErr = errors.New("connection reset")

	_, ok := store.Save(context.Background(), "ltft", "123.json", []byte(`{"id":"123"}`))

	assert.False(t, ok)
}

func TestFSBackend_CreateDirOverFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "root/blocked", []byte("x"), 0o644))
	backend := NewFSBackend(fs)

	err := backend.CreateDirIfNotExists(context.Background(), "root/blocked")

	assert.Error(t, err)
}

func TestFSBackend_ShortUpload(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewFSBackend(fs)
	ctx := context.Background()
	require.NoError(t, backend.CreateDirIfNotExists(ctx, "root"))
	require.NoError(t, backend.CreateFileIfNotExists(ctx, "root/f"))

	err := backend.Upload(ctx, "root/f", &limitedReader{data: []byte("abc")}, 10, true)

	assert.ErrorContains(t, err, "short upload")
}

func TestFSBackend_NoOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewFSBackend(fs)
	ctx := context.Background()
	require.NoError(t, backend.CreateDirIfNotExists(ctx, "root"))
	require.NoError(t, backend.CreateFileIfNotExists(ctx, "root/f"))

	err := backend.Upload(ctx, "root/f", &limitedReader{data: []byte("abc")}, 3, false)

	assert.Error(t, err)
}

func TestFSBackend_CancelledContext(t *testing.T) {
	backend := NewFSBackend(afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, backend.CreateDirIfNotExists(ctx, "root"), context.Canceled)
}

type limitedReader struct {
	data []byte
	off  int
}

func (r *limitedReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}
