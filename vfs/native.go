package vfs

import (
	"os"

	"github.com/spf13/afero"
)

// StatOptions selects how a path-based metadata query is performed.
type StatOptions struct {
	// FollowLinks stats the link target; otherwise the link itself is stat'ed.
	FollowLinks bool
	// Quiet suppresses failure reporting for the query.
	Quiet bool
}

// OptionStater is implemented by handlers that honour StatOptions directly.
type OptionStater interface {
	StatWith(name string, opts StatOptions) (os.FileInfo, error)
}

// Exister is implemented by handlers with an existence probe cheaper than a full stat.
type Exister interface {
	Exists(name string) (bool, error)
}

// OsFs is the native local filesystem handler.
type OsFs struct {
	afero.OsFs
}

// NewOsFs returns the native handler.
func NewOsFs() *OsFs {
	return &OsFs{}
}

// Name implements afero.Fs.
func (*OsFs) Name() string {
	return "NativeOsFs"
}

// Exists implements Exister.
func (*OsFs) Exists(name string) (bool, error) {
	return probeExists(name)
}

// Exists reports whether name exists on fs, using the handler's Exister
// capability when it has one.
func Exists(fs afero.Fs, name string) (bool, error) {
	if ex, ok := fs.(Exister); ok {
		return ex.Exists(name)
	}
	return afero.Exists(fs, name)
}

var (
	_ afero.Fs      = (*OsFs)(nil)
	_ afero.Lstater = (*OsFs)(nil)
	_ Exister       = (*OsFs)(nil)
)
