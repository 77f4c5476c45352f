package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/backend"
)

func newTestBackendStore(t *testing.T, opts ...BackendOption) (*BackendStore, *backend.Filesystem) {
	t.Helper()
	fs, err := backend.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return NewBackendStore(fs, newTestCodec(t), opts...), fs
}

func TestBackendStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestBackendStore(t)

	require.True(t, s.IsSupported(ctx))

	_, err := s.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	for _, cache := range []ignition.StatCache{
		{"/a": ignition.Hit(sampleStat("a", 1)), "/b": ignition.Miss},
		largeCache(300),
	} {
		require.NoError(t, s.SaveStatCache(ctx, cache))
		got, err := s.FetchStatCache(ctx)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(cache, got))
	}
}

func TestBackendStore_EmptyPathKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestBackendStore(t)

	cache := ignition.StatCache{
		"":   ignition.Miss,
		"/a": ignition.Hit(sampleStat("a", 10)),
	}
	require.NoError(t, s.SaveStatCache(ctx, cache))

	got, err := s.FetchStatCache(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(cache, got))
}

func TestBackendStore_Header(t *testing.T) {
	ctx := context.Background()
	savedAt := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	s, fs := newTestBackendStore(t,
		WithKey("custom/key"),
		WithWriterID("writer-7"),
		WithClock(func() time.Time { return savedAt }),
	)

	cache := ignition.StatCache{"/a": ignition.Miss}
	require.NoError(t, s.SaveStatCache(ctx, cache))

	rc, err := fs.Read(ctx, "custom/key")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	header, _, err := backend.ReadFramed(rc)
	require.NoError(t, err)
	require.Equal(t, "identity", header.Encoding)
	require.Equal(t, 1, header.Entries)
	require.Equal(t, "writer-7", header.WriterID)
	require.True(t, savedAt.Equal(header.SavedAt))
	require.Contains(t, header.Digest, "blake3:")
}

func TestBackendStore_Corrupted(t *testing.T) {
	ctx := context.Background()
	s, fs := newTestBackendStore(t)

	require.NoError(t, s.SaveStatCache(ctx, ignition.StatCache{"/a": ignition.Hit(sampleStat("a", 1))}))

	rc, err := fs.Read(ctx, DefaultKey)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	raw[len(raw)-1] ^= 0xff
	require.NoError(t, fs.Write(ctx, DefaultKey, bytes.NewReader(raw)))

	_, err = s.FetchStatCache(ctx)
	require.Error(t, err)
}

func TestBackendStore_NotFramed(t *testing.T) {
	ctx := context.Background()
	s, fs := newTestBackendStore(t)

	require.NoError(t, fs.Write(ctx, DefaultKey, bytes.NewReader([]byte("CCB1 not ours"))))

	_, err := s.FetchStatCache(ctx)
	require.ErrorIs(t, err, backend.ErrInvalidMagic)
}

func TestBackendStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestBackendStore(t)

	require.NoError(t, s.SaveStatCache(ctx, ignition.StatCache{"/a": ignition.Miss}))
	require.NoError(t, s.ClearStatCache(ctx))

	_, err := s.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

type brokenBackend struct{ backend.Backend }

func (brokenBackend) Exists(context.Context, string) (bool, error) {
	return false, errors.New("permission denied")
}

func TestBackendStore_Unsupported(t *testing.T) {
	s := NewBackendStore(brokenBackend{}, newTestCodec(t))
	require.False(t, s.IsSupported(context.Background()))
}

func TestInstrumented_Delegates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory(WithNamespace(t.Name()))
	s := NewInstrumented(inner, "memory")

	require.True(t, s.IsSupported(ctx))
	require.Same(t, inner, s.Unwrap())

	_, err := s.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	cache := ignition.StatCache{"/a": ignition.Miss}
	require.NoError(t, s.SaveStatCache(ctx, cache))
	got, err := s.FetchStatCache(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(cache, got))

	require.NoError(t, s.ClearStatCache(ctx))
	_, err = s.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

type fetchOnly struct{ Store }

func TestInstrumented_ClearUnsupported(t *testing.T) {
	s := NewInstrumented(fetchOnly{NewMemory()}, "memory")
	require.ErrorIs(t, s.ClearStatCache(context.Background()), errors.ErrUnsupported)
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "success", outcome(nil))
	require.Equal(t, "not_found", outcome(ErrNotFound))
	require.Equal(t, "error", outcome(errors.New("boom")))
}
