// Package backend provides the byte stores that persisted stat caches are
// written to. A backend knows nothing about stat caches: it moves opaque
// framed blobs under string keys.
package backend

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Read when nothing is stored under a key.
var ErrNotFound = errors.New("backend: not found")

// Backend stores blobs by key. Implementations must be safe for concurrent
// use.
type Backend interface {
	// Write replaces whatever is stored under key.
	Write(ctx context.Context, key string, r io.Reader) error

	// Read returns the blob under key, or ErrNotFound. The caller closes it.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob under key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a blob. A nil error also tells the
	// caller the backend is reachable.
	Exists(ctx context.Context, key string) (bool, error)
}
