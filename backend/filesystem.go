package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrInvalidKey is returned for keys that are not clean slash-separated
// relative paths.
var ErrInvalidKey = errors.New("invalid key")

// Filesystem keeps each key as one file below a root directory. Writes go to
// a temp file that is renamed into place, so a reader in another process sees
// either the previous blob or the new one.
//
// It must be given the native filesystem, never an intercepting one: blobs
// written here are not stat cache candidates.
type Filesystem struct {
	fs   afero.Fs
	root string
}

// FilesystemOption configures a Filesystem.
type FilesystemOption func(*Filesystem)

// WithFs sets the filesystem blobs are written to. Defaults to afero.NewOsFs.
func WithFs(fsys afero.Fs) FilesystemOption {
	return func(f *Filesystem) {
		f.fs = fsys
	}
}

// NewFilesystem creates root if needed and returns a backend over it.
func NewFilesystem(root string, opts ...FilesystemOption) (*Filesystem, error) {
	f := &Filesystem{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(f)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if err := f.fs.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	f.root = abs
	return f, nil
}

// Root returns the absolute root directory.
func (f *Filesystem) Root() string {
	return f.root
}

// Write replaces the blob at key with the contents of r.
func (f *Filesystem) Write(_ context.Context, key string, r io.Reader) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = f.fs.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := f.fs.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	renamed = true
	return nil
}

// Read opens the blob at key.
func (f *Filesystem) Read(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	file, err := f.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	return file, nil
}

// Delete removes the blob at key. A missing blob is not an error.
func (f *Filesystem) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	if err := f.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a blob is stored at key.
func (f *Filesystem) Exists(_ context.Context, key string) (bool, error) {
	path, err := f.path(key)
	if err != nil {
		return false, err
	}

	ok, err := afero.Exists(f.fs, path)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return ok, nil
}

func (f *Filesystem) path(key string) (string, error) {
	if key == "." || !iofs.ValidPath(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

var _ Backend = (*Filesystem)(nil)
