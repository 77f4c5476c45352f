package resolver

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderFunc(t *testing.T) {
	var got string
	l := LoaderFunc(func(path string) error {
		got = path
		return nil
	})
	require.NoError(t, l.Load("/a.go"))
	assert.Equal(t, "/a.go", got)
}

func TestYaegiLoader_LoadsOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/greet/Greeter.go", []byte(`package greet

func Hello(name string) string { return "hello " + name }
`), 0o644))

	loader, err := NewYaegiLoader(fs)
	require.NoError(t, err)

	require.NoError(t, loader.Load("/src/greet/Greeter.go"))
	require.NoError(t, loader.Load("/src/greet/Greeter.go"))
	assert.True(t, loader.Loaded("/src/greet/Greeter.go"))

	v, err := loader.Eval("greet.Hello")
	require.NoError(t, err)
	hello, ok := v.(func(string) string)
	require.True(t, ok)
	assert.Equal(t, "hello ignition", hello("ignition"))
}

func TestYaegiLoader_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.go", []byte("package bad\nfunc {"), 0o644))

	loader, err := NewYaegiLoader(fs)
	require.NoError(t, err)

	require.Error(t, loader.Load("/missing.go"))
	require.Error(t, loader.Load("/bad.go"))
	assert.False(t, loader.Loaded("/bad.go"))
}

func TestYaegiLoader_WithEarlyResolver(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/shapes/Square.go", []byte(`package shapes

func Area(side int) int { return side * side }
`), 0o644))

	loader, err := NewYaegiLoader(fs)
	require.NoError(t, err)
	m := NewMappings()
	m.Set(`App\`, "/src")
	e := NewEarly(m, fs, loader)

	ok, err := e.Resolve(`App\shapes\Square`)
	require.NoError(t, err)
	require.True(t, ok)

	v, err := loader.Eval("shapes.Area(4)")
	require.NoError(t, err)
	assert.EqualValues(t, 16, v)
}
