package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NativeBuiltin(t *testing.T) {
	r := NewRegistry()

	fs, ok := r.Handler(SchemeFile)
	require.True(t, ok)
	require.IsType(t, &OsFs{}, fs)
	require.True(t, r.IsBuiltinActive(SchemeFile))
}

func TestRegistry_RegisterOverActiveFails(t *testing.T) {
	r := NewRegistry()

	err := r.Register(SchemeFile, afero.NewMemMapFs())
	require.ErrorIs(t, err, ErrSchemeRegistered)
}

func TestRegistry_UnregisterThenRegister(t *testing.T) {
	r := NewRegistry()
	mem := afero.NewMemMapFs()

	require.NoError(t, r.Unregister(SchemeFile))
	_, ok := r.Handler(SchemeFile)
	require.False(t, ok)

	require.ErrorIs(t, r.Unregister(SchemeFile), ErrSchemeNotRegistered)

	require.NoError(t, r.Register(SchemeFile, mem))
	fs, ok := r.Handler(SchemeFile)
	require.True(t, ok)
	require.Same(t, mem, fs)
	require.False(t, r.IsBuiltinActive(SchemeFile))
}

func TestRegistry_RestoreReplacesActive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Unregister(SchemeFile))
	require.NoError(t, r.Register(SchemeFile, afero.NewMemMapFs()))

	require.NoError(t, r.Restore(SchemeFile))
	require.True(t, r.IsBuiltinActive(SchemeFile))

	require.ErrorIs(t, r.Restore("s3"), ErrNoBuiltin)
}

func TestDispatcher_FollowsActiveHandler(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/only/in/memory.txt", []byte("hi"), 0o644))

	r := NewRegistryWith(map[string]afero.Fs{SchemeFile: NewOsFs()})
	d := NewDispatcher(r, SchemeFile)

	_, err := d.Stat("/only/in/memory.txt")
	require.Error(t, err)

	require.NoError(t, r.Unregister(SchemeFile))
	require.NoError(t, r.Register(SchemeFile, mem))

	info, err := d.Stat("/only/in/memory.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())

	exists, err := d.Exists("/only/in/memory.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDispatcher_NoHandler(t *testing.T) {
	r := NewRegistryWith(nil)
	d := NewDispatcher(r, SchemeFile)

	_, err := d.Open("/anything")
	require.ErrorIs(t, err, ErrSchemeNotRegistered)
}

func TestOsFs_Exists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	fs := NewOsFs()

	ok, err := fs.Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = fs.Exists(filepath.Join(path, "below-a-file"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatcher_LstatDoesNotFollowLinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(target, []byte("12345"), 0o600))
	require.NoError(t, os.Symlink(target, link))

	d := NewDispatcher(NewRegistry(), SchemeFile)

	info, err := d.StatWith(link, StatOptions{FollowLinks: true})
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	info, err = d.StatWith(link, StatOptions{})
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
}
