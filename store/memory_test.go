package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	ignition "github.com/wolfeidau/stat-ignition"
)

func TestMemory_FetchBeforeSave(t *testing.T) {
	m := NewMemory(WithNamespace(t.Name()))

	require.True(t, m.IsSupported(context.Background()))
	_, err := m.FetchStatCache(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SharedByNamespace(t *testing.T) {
	ctx := context.Background()
	writer := NewMemory(WithNamespace(t.Name()))
	reader := NewMemory(WithNamespace(t.Name()))
	other := NewMemory(WithNamespace(t.Name() + ".other"))

	cache := ignition.StatCache{
		"/a": ignition.Hit(sampleStat("a", 1)),
		"/b": ignition.Miss,
	}
	require.NoError(t, writer.SaveStatCache(ctx, cache))

	got, err := reader.FetchStatCache(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(cache, got))

	_, err = other.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SaveAndFetchCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithNamespace(t.Name()))

	cache := ignition.StatCache{"/a": ignition.Miss}
	require.NoError(t, m.SaveStatCache(ctx, cache))
	cache["/b"] = ignition.Miss

	got, err := m.FetchStatCache(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got["/c"] = ignition.Miss
	again, err := m.FetchStatCache(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
}

func TestMemory_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithNamespace(t.Name()))

	require.NoError(t, m.SaveStatCache(ctx, ignition.StatCache{"/a": ignition.Miss}))
	require.NoError(t, m.SaveStatCache(ctx, ignition.StatCache{"/b": ignition.Miss}))

	got, err := m.FetchStatCache(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"/b"}, got.Paths())
}

func TestMemory_Clear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithNamespace(t.Name()))

	require.NoError(t, m.ClearStatCache(ctx))
	require.NoError(t, m.SaveStatCache(ctx, ignition.StatCache{"/a": ignition.Miss}))
	require.NoError(t, m.ClearStatCache(ctx))

	_, err := m.FetchStatCache(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Unsupported(t *testing.T) {
	m := NewMemory(WithSupported(false))
	require.False(t, m.IsSupported(context.Background()))
}
