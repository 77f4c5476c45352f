package resolver

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"github.com/wolfeidau/stat-ignition/vfs"
)

const (
	// DefaultSeparator separates the segments of a symbol name.
	DefaultSeparator = `\`

	// DefaultExtension is appended to candidate file paths.
	DefaultExtension = ".go"
)

// Early resolves symbols from an explicit prefix table only. It is meant for
// the bootstrap window, before the primary resolver is available.
type Early struct {
	mappings  *Mappings
	fs        afero.Fs
	loader    Loader
	separator string
	extension string
	logger    *slog.Logger
	chain     *Chain
}

// EarlyOption configures an Early resolver.
type EarlyOption func(*Early)

// WithSeparator sets the symbol segment separator.
func WithSeparator(sep string) EarlyOption {
	return func(e *Early) {
		e.separator = sep
	}
}

// WithExtension sets the file extension appended to candidates.
func WithExtension(ext string) EarlyOption {
	return func(e *Early) {
		e.extension = ext
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EarlyOption {
	return func(e *Early) {
		e.logger = logger
	}
}

// NewEarly creates an Early resolver. Candidate files are probed on fsys and
// handed to loader.
func NewEarly(mappings *Mappings, fsys afero.Fs, loader Loader, opts ...EarlyOption) *Early {
	if mappings == nil {
		mappings = NewMappings()
	}
	e := &Early{
		mappings:  mappings.Clone(),
		fs:        fsys,
		loader:    loader,
		separator: DefaultSeparator,
		extension: DefaultExtension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register installs e at the end of chain.
func (e *Early) Register(chain *Chain) error {
	if e.chain != nil {
		return fmt.Errorf("%w: early resolver", ErrAlreadyRegistered)
	}
	if err := chain.Register(e); err != nil {
		return err
	}
	e.chain = chain
	return nil
}

// Unregister removes e from the chain it was registered with.
func (e *Early) Unregister() error {
	if e.chain == nil {
		return fmt.Errorf("%w: early resolver", ErrNotRegistered)
	}
	if err := e.chain.Unregister(e); err != nil {
		return err
	}
	e.chain = nil
	return nil
}

// IsRegistered reports whether e is in a chain.
func (e *Early) IsRegistered() bool {
	return e.chain != nil
}

// AddMappings merges more into the table. Only later lookups see the change.
func (e *Early) AddMappings(more *Mappings) {
	e.mappings.Merge(more)
}

// Mappings returns a copy of the current table.
func (e *Early) Mappings() *Mappings {
	return e.mappings.Clone()
}

// Resolve implements Resolver. The first existing candidate is loaded.
func (e *Early) Resolve(name string) (bool, error) {
	for _, prefix := range e.mappings.order {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.ReplaceAll(strings.TrimPrefix(name, prefix), e.separator, "/")

		for _, dir := range e.mappings.dirs[prefix] {
			candidate := dir + "/" + rest + e.extension

			exists, err := vfs.Exists(e.fs, candidate)
			if err != nil {
				e.logger.Debug("probing candidate failed", "symbol", name, "path", candidate, "error", err)
				continue
			}
			if !exists {
				continue
			}

			e.logger.Debug("resolved symbol", "symbol", name, "path", candidate)
			if err := e.loader.Load(candidate); err != nil {
				return true, fmt.Errorf("loading %s: %w", candidate, err)
			}
			return true, nil
		}
	}
	return false, nil
}

var _ Resolver = (*Early)(nil)
