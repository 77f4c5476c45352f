package vfs

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
)

// Dispatcher is an afero.Fs that forwards every call to the handler active
// for its scheme at the time of the call. Code that holds a Dispatcher is
// transparently intercepted while an interceptor is installed for the scheme.
type Dispatcher struct {
	registry *Registry
	scheme   string
}

// NewDispatcher returns a dispatcher for scheme on registry.
func NewDispatcher(registry *Registry, scheme string) *Dispatcher {
	return &Dispatcher{registry: registry, scheme: scheme}
}

func (d *Dispatcher) handler() (afero.Fs, error) {
	fs, ok := d.registry.Handler(d.scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemeNotRegistered, d.scheme)
	}
	return fs, nil
}

// Name implements afero.Fs.
func (d *Dispatcher) Name() string {
	return "Dispatcher(" + d.scheme + ")"
}

// StatWith performs a metadata query honouring opts when the active handler supports them.
func (d *Dispatcher) StatWith(name string, opts StatOptions) (os.FileInfo, error) {
	fs, err := d.handler()
	if err != nil {
		return nil, err
	}
	if st, ok := fs.(OptionStater); ok {
		return st.StatWith(name, opts)
	}
	if !opts.FollowLinks {
		if ls, ok := fs.(afero.Lstater); ok {
			info, _, err := ls.LstatIfPossible(name)
			return info, err
		}
	}
	return fs.Stat(name)
}

// Stat implements afero.Fs.
func (d *Dispatcher) Stat(name string) (os.FileInfo, error) {
	return d.StatWith(name, StatOptions{FollowLinks: true})
}

// LstatIfPossible implements afero.Lstater.
func (d *Dispatcher) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	fs, err := d.handler()
	if err != nil {
		return nil, false, err
	}
	if _, ok := fs.(OptionStater); ok {
		info, err := d.StatWith(name, StatOptions{})
		return info, true, err
	}
	if ls, ok := fs.(afero.Lstater); ok {
		return ls.LstatIfPossible(name)
	}
	info, err := fs.Stat(name)
	return info, false, err
}

// Exists reports whether name exists using the active handler.
func (d *Dispatcher) Exists(name string) (bool, error) {
	fs, err := d.handler()
	if err != nil {
		return false, err
	}
	return Exists(fs, name)
}

// Create implements afero.Fs.
func (d *Dispatcher) Create(name string) (afero.File, error) {
	fs, err := d.handler()
	if err != nil {
		return nil, err
	}
	return fs.Create(name)
}

// Mkdir implements afero.Fs.
func (d *Dispatcher) Mkdir(name string, perm os.FileMode) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.Mkdir(name, perm)
}

// MkdirAll implements afero.Fs.
func (d *Dispatcher) MkdirAll(path string, perm os.FileMode) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.MkdirAll(path, perm)
}

// Open implements afero.Fs.
func (d *Dispatcher) Open(name string) (afero.File, error) {
	fs, err := d.handler()
	if err != nil {
		return nil, err
	}
	return fs.Open(name)
}

// OpenFile implements afero.Fs.
func (d *Dispatcher) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	fs, err := d.handler()
	if err != nil {
		return nil, err
	}
	return fs.OpenFile(name, flag, perm)
}

// Remove implements afero.Fs.
func (d *Dispatcher) Remove(name string) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.Remove(name)
}

// RemoveAll implements afero.Fs.
func (d *Dispatcher) RemoveAll(path string) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.RemoveAll(path)
}

// Rename implements afero.Fs.
func (d *Dispatcher) Rename(oldname, newname string) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.Rename(oldname, newname)
}

// Chmod implements afero.Fs.
func (d *Dispatcher) Chmod(name string, mode os.FileMode) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.Chmod(name, mode)
}

// Chown implements afero.Fs.
func (d *Dispatcher) Chown(name string, uid, gid int) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.Chown(name, uid, gid)
}

// Chtimes implements afero.Fs.
func (d *Dispatcher) Chtimes(name string, atime, mtime time.Time) error {
	fs, err := d.handler()
	if err != nil {
		return err
	}
	return fs.Chtimes(name, atime, mtime)
}

var (
	_ afero.Fs      = (*Dispatcher)(nil)
	_ afero.Lstater = (*Dispatcher)(nil)
	_ OptionStater  = (*Dispatcher)(nil)
	_ Exister       = (*Dispatcher)(nil)
)
