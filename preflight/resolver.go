package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultConfigFileName is the project-local config file name.
const DefaultConfigFileName = ".ignition.go"

// ErrInvalidConfig is returned when a config file produces something other than a Config.
var ErrInvalidConfig = errors.New("preflight: invalid config")

// ConfigResolver finds and loads a project's config file.
type ConfigResolver struct {
	fs       afero.Fs
	includer Includer
	fileName string
}

// ConfigResolverOption configures a ConfigResolver.
type ConfigResolverOption func(*ConfigResolver)

// WithConfigFileName overrides DefaultConfigFileName.
func WithConfigFileName(name string) ConfigResolverOption {
	return func(r *ConfigResolver) {
		r.fileName = name
	}
}

// NewConfigResolver creates a resolver that checks for the config file on
// fsys and loads it with includer.
func NewConfigResolver(fsys afero.Fs, includer Includer, opts ...ConfigResolverOption) *ConfigResolver {
	r := &ConfigResolver{fs: fsys, includer: includer, fileName: DefaultConfigFileName}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConfigPath returns where the config file for projectRoot lives.
func (r *ConfigResolver) ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, r.fileName)
}

// ResolveConfig loads the config of projectRoot. It returns nil, nil when
// the project has no config file.
func (r *ConfigResolver) ResolveConfig(projectRoot string) (Config, error) {
	path := r.ConfigPath(projectRoot)

	info, err := r.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking config %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	value, err := r.includer.IsolatedInclude(path)
	if err != nil {
		return nil, err
	}

	cfg, ok := value.(Config)
	if !ok {
		return nil, fmt.Errorf("%w: %s produced %T, expected a preflight.Config", ErrInvalidConfig, path, value)
	}
	return cfg, nil
}
