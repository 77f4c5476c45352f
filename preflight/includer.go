package preflight

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"reflect"

	"github.com/spf13/afero"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// EntrypointName is the function a config file defines to produce its value.
const EntrypointName = "IgnitionConfig"

// ErrNoEntrypoint is returned when an included file does not define a usable
// IgnitionConfig function.
var ErrNoEntrypoint = errors.New("preflight: missing " + EntrypointName + " function")

// Includer loads a file in isolation and returns the value it produces.
type Includer interface {
	IsolatedInclude(path string) (any, error)
}

// YaegiIncluder evaluates each file in a brand-new yaegi interpreter, so
// nothing defined by one file or by the host leaks into another. The file
// must declare
//
//	func IgnitionConfig() preflight.Config
//
// and its result is what IsolatedInclude returns.
type YaegiIncluder struct {
	fs      afero.Fs
	exports []interp.Exports
}

// NewYaegiIncluder creates an includer reading files through fsys. exports
// are offered to included files next to the standard library and this package.
func NewYaegiIncluder(fsys afero.Fs, exports ...interp.Exports) *YaegiIncluder {
	return &YaegiIncluder{fs: fsys, exports: exports}
}

// IsolatedInclude implements Includer.
func (y *YaegiIncluder) IsolatedInclude(path string) (any, error) {
	src, err := afero.ReadFile(y.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	file, err := parser.ParseFile(token.NewFileSet(), path, src, parser.PackageClauseOnly)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	i := interp.New(interp.Options{})
	for _, symbols := range append([]interp.Exports{stdlib.Symbols, Symbols}, y.exports...) {
		if err := i.Use(symbols); err != nil {
			return nil, fmt.Errorf("loading symbols: %w", err)
		}
	}

	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", path, err)
	}

	entry, err := i.Eval(file.Name.Name + "." + EntrypointName)
	if err != nil {
		return nil, fmt.Errorf("%w in %s: %w", ErrNoEntrypoint, path, err)
	}
	if entry.Kind() != reflect.Func || entry.Type().NumIn() != 0 || entry.Type().NumOut() != 1 {
		return nil, fmt.Errorf("%w in %s: must take no arguments and return one value", ErrNoEntrypoint, path)
	}

	out := entry.Call(nil)[0]
	if !out.IsValid() || (out.Kind() == reflect.Interface && out.IsNil()) {
		return nil, nil
	}
	return out.Interface(), nil
}

var _ Includer = (*YaegiIncluder)(nil)
