package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestNewFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "stat-cache")

	fs, err := NewFilesystem(root)
	require.NoError(t, err)
	require.Equal(t, root, fs.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFilesystemWriteRead(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	data := []byte("IGS1 payload")

	require.NoError(t, fs.Write(ctx, "ns/ignition.stat", bytes.NewReader(data)))

	rc, err := fs.Read(ctx, "ns/ignition.stat")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFilesystemReadNotFound(t *testing.T) {
	fs := newTestFilesystem(t)

	_, err := fs.Read(context.Background(), "missing/key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemExistsAndDelete(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "exists/ignition.stat"

	exists, err := fs.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, fs.Write(ctx, key, bytes.NewReader([]byte("data"))))

	exists, err = fs.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, fs.Delete(ctx, key))
	exists, err = fs.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	// Idempotent.
	require.NoError(t, fs.Delete(ctx, key))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestFilesystemFailedWriteKeepsPrevious(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "atomic/ignition.stat"
	original := []byte("original content")

	require.NoError(t, fs.Write(ctx, key, bytes.NewReader(original)))
	require.Error(t, fs.Write(ctx, key, io.MultiReader(bytes.NewReader([]byte("partial")), failingReader{})))

	rc, err := fs.Read(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, original, got)

	entries, err := os.ReadDir(filepath.Join(fs.Root(), "atomic"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file should be cleaned up")
}

func TestFilesystemOverwrite(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	key := "overwrite/ignition.stat"

	require.NoError(t, fs.Write(ctx, key, bytes.NewReader([]byte("initial"))))
	newData := []byte("new content that is longer")
	require.NoError(t, fs.Write(ctx, key, bytes.NewReader(newData)))

	rc, err := fs.Read(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, newData, got)
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	for _, key := range []string{"", ".", "../outside", "/abs/key", "a//b", "a/../b"} {
		t.Run(key, func(t *testing.T) {
			require.ErrorIs(t, fs.Write(ctx, key, bytes.NewReader(nil)), ErrInvalidKey)
			_, err := fs.Read(ctx, key)
			require.ErrorIs(t, err, ErrInvalidKey)
			_, err = fs.Exists(ctx, key)
			require.ErrorIs(t, err, ErrInvalidKey)
			require.ErrorIs(t, fs.Delete(ctx, key), ErrInvalidKey)
		})
	}
}

func TestFilesystemWithMemFs(t *testing.T) {
	mem := afero.NewMemMapFs()
	fs, err := NewFilesystem("/cache", WithFs(mem))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "stat-cache/ignition.stat", bytes.NewReader([]byte("blob"))))

	got, err := afero.ReadFile(mem, "/cache/stat-cache/ignition.stat")
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), got)

	infos, err := afero.ReadDir(mem, "/cache/stat-cache")
	require.NoError(t, err)
	require.Len(t, infos, 1, "only the renamed blob remains")
}

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return fs
}
