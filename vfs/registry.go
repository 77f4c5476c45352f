// Package vfs provides the protocol handler registry that filesystem access is
// routed through. Each scheme has at most one active handler; the handler that
// was registered first for a scheme is kept as its builtin and can be restored.
package vfs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// SchemeFile is the scheme of the native local filesystem.
const SchemeFile = "file"

var (
	// ErrSchemeRegistered is returned when registering over an active handler.
	ErrSchemeRegistered = errors.New("vfs: scheme already has an active handler")

	// ErrSchemeNotRegistered is returned when a scheme has no active handler.
	ErrSchemeNotRegistered = errors.New("vfs: scheme has no active handler")

	// ErrNoBuiltin is returned when restoring a scheme that never had a builtin handler.
	ErrNoBuiltin = errors.New("vfs: scheme has no builtin handler")
)

// Registry maps scheme names to filesystem handlers.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]afero.Fs
	builtin map[string]afero.Fs
}

// NewRegistry creates a registry with the native OsFs registered for SchemeFile.
func NewRegistry() *Registry {
	return NewRegistryWith(map[string]afero.Fs{SchemeFile: NewOsFs()})
}

// NewRegistryWith creates a registry whose builtin handlers are the given ones.
// Tests use it to substitute an in-memory filesystem for the native one.
func NewRegistryWith(builtins map[string]afero.Fs) *Registry {
	r := &Registry{
		active:  make(map[string]afero.Fs, len(builtins)),
		builtin: make(map[string]afero.Fs, len(builtins)),
	}
	for scheme, fs := range builtins {
		r.active[scheme] = fs
		r.builtin[scheme] = fs
	}
	return r
}

// Register makes fs the active handler for scheme.
func (r *Registry) Register(scheme string, fs afero.Fs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[scheme]; ok {
		return fmt.Errorf("%w: %s", ErrSchemeRegistered, scheme)
	}
	r.active[scheme] = fs
	return nil
}

// Unregister removes the active handler for scheme.
func (r *Registry) Unregister(scheme string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[scheme]; !ok {
		return fmt.Errorf("%w: %s", ErrSchemeNotRegistered, scheme)
	}
	delete(r.active, scheme)
	return nil
}

// Restore re-activates the builtin handler for scheme, replacing whatever is active.
func (r *Registry) Restore(scheme string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fs, ok := r.builtin[scheme]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBuiltin, scheme)
	}
	r.active[scheme] = fs
	return nil
}

// Handler returns the active handler for scheme.
func (r *Registry) Handler(scheme string) (afero.Fs, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, ok := r.active[scheme]
	return fs, ok
}

// Builtin returns the builtin handler for scheme.
func (r *Registry) Builtin(scheme string) (afero.Fs, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, ok := r.builtin[scheme]
	return fs, ok
}

// IsBuiltinActive reports whether the builtin handler is the active one for scheme.
func (r *Registry) IsBuiltinActive(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active, ok := r.active[scheme]
	if !ok {
		return false
	}
	return active == r.builtin[scheme]
}
