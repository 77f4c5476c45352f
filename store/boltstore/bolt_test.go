package boltstore

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/store"
	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ignition.db"), append([]Option{WithNoSync(true)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCache() ignition.StatCache {
	mtime := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	return ignition.StatCache{
		"/srv/app/composer.json": ignition.Hit(ignition.FileStat{Name: "composer.json", Size: 812, Mode: 0o644, ModTime: mtime}),
		"/srv/app/src":           ignition.Hit(ignition.FileStat{Name: "src", Mode: fs.ModeDir | 0o755, ModTime: mtime}),
		"/srv/app/missing.go":    ignition.Miss,
	}
}

func TestStore_FetchSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.True(t, s.IsSupported(ctx))

	_, err := s.FetchStatCache(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	cache := testCache()
	require.NoError(t, s.SaveStatCache(ctx, cache))

	got, err := s.FetchStatCache(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cache, got))
}

func TestStore_EmptyPathKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cache := testCache()
	cache[""] = ignition.Miss
	require.NoError(t, s.SaveStatCache(ctx, cache))

	got, err := s.FetchStatCache(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cache, got))
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveStatCache(ctx, testCache()))
	require.NoError(t, s.SaveStatCache(ctx, ignition.StatCache{"/only": ignition.Miss}))

	got, err := s.FetchStatCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/only"}, got.Paths())
}

func TestStore_LastSave(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s := newTestStore(t,
		WithNow(func() time.Time { return now }),
		WithWriterID("test-writer"),
		WithNamespace("app"),
	)

	_, err := s.LastSave(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveStatCache(ctx, testCache()))

	record, err := s.LastSave(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app", record.Namespace)
	assert.True(t, now.Equal(record.SavedAt))
	assert.Equal(t, 3, record.Entries)
	assert.Equal(t, "test-writer", record.WriterID)
	assert.Contains(t, record.Digest, "blake3:")
	assert.Positive(t, record.Size)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ClearStatCache(ctx))
	require.NoError(t, s.SaveStatCache(ctx, testCache()))
	require.NoError(t, s.ClearStatCache(ctx))

	_, err := s.FetchStatCache(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.LastSave(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	saves, err := s.Saves(ctx)
	require.NoError(t, err)
	assert.Empty(t, saves)
}

func TestStore_SavesOrderedByTime(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ignition.db")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	save := func(namespace string, at time.Time) {
		s, err := Open(path, WithNoSync(true), WithNamespace(namespace), WithNow(func() time.Time { return at }))
		require.NoError(t, err)
		require.NoError(t, s.SaveStatCache(ctx, ignition.StatCache{"/" + namespace: ignition.Miss}))
		require.NoError(t, s.Close())
	}

	save("b", base.Add(2*time.Hour))
	save("a", base.Add(time.Hour))
	save("c", base.Add(3*time.Hour))
	// Re-saving moves a namespace to the end.
	save("a", base.Add(4*time.Hour))

	s, err := Open(path, WithNoSync(true))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	saves, err := s.Saves(ctx)
	require.NoError(t, err)
	var order []string
	for _, r := range saves {
		order = append(order, r.Namespace)
	}
	assert.Equal(t, []string{"b", "c", "a"}, order)
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "ignition.db"), WithNoSync(true))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.False(t, s.IsSupported(ctx))
	_, err = s.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.SaveStatCache(ctx, testCache()), ErrClosed)
	require.ErrorIs(t, s.ClearStatCache(ctx), ErrClosed)
}

func TestStore_CorruptedBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveStatCache(ctx, testCache()))

	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStatCache).Put([]byte(s.Namespace()), []byte("garbage"))
	}))

	_, err := s.FetchStatCache(ctx)
	require.Error(t, err)
}

func TestStore_OpenLockedTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignition.db")
	first, err := Open(path, WithNoSync(true))
	require.NoError(t, err)
	defer func() { _ = first.Close() }()

	_, err = Open(path, WithTimeout(50*time.Millisecond))
	require.Error(t, err)
}

func TestStore_LogsSave(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newTestStore(t, WithLogger(logger), WithNamespace("logged"))

	require.NoError(t, s.SaveStatCache(context.Background(), testCache()))
	assert.Contains(t, buf.String(), "saved stat cache")
	assert.Contains(t, buf.String(), "namespace=logged")
}

func TestEncodeTimestampOrdering(t *testing.T) {
	times := []time.Time{
		time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Unix(0, 0).UTC(),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		assert.Negative(t, bytes.Compare(encodeTimestamp(times[i-1]), encodeTimestamp(times[i])))
	}
	for _, ts := range times {
		assert.True(t, ts.Equal(decodeTimestamp(encodeTimestamp(ts))))
	}
	assert.True(t, decodeTimestamp([]byte{1, 2}).IsZero())
}
