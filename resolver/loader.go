package resolver

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Loader loads the source file a resolver picked.
type Loader interface {
	Load(path string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) error

// Load implements Loader.
func (f LoaderFunc) Load(path string) error {
	return f(path)
}

// YaegiLoader evaluates Go source files in one shared interpreter, so
// packages loaded earlier are visible to files loaded later. A path is
// evaluated at most once.
type YaegiLoader struct {
	fs     afero.Fs
	mu     sync.Mutex
	interp *interp.Interpreter
	loaded map[string]bool
}

// NewYaegiLoader creates a loader reading files through fsys. exports are
// made available to evaluated code next to the standard library.
func NewYaegiLoader(fsys afero.Fs, exports ...interp.Exports) (*YaegiLoader, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	for _, e := range exports {
		if err := i.Use(e); err != nil {
			return nil, fmt.Errorf("loading exports: %w", err)
		}
	}
	return &YaegiLoader{fs: fsys, interp: i, loaded: map[string]bool{}}, nil
}

// Load implements Loader.
func (l *YaegiLoader) Load(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded[path] {
		return nil
	}

	src, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	if _, err := l.interp.Eval(string(src)); err != nil {
		return fmt.Errorf("evaluating %s: %w", path, err)
	}
	l.loaded[path] = true
	return nil
}

// Eval evaluates src in the loader's interpreter, for example to look up a
// symbol defined by a loaded file.
func (l *YaegiLoader) Eval(src string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, err := l.interp.Eval(src)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Loaded reports whether path was evaluated.
func (l *YaegiLoader) Loaded(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[path]
}
