// Package store provides the backing stores that persist the stat cache
// between process lifetimes. A store only ever loads or replaces the whole
// cache; it never sees individual entries change.
package store

import (
	"context"
	"errors"

	ignition "github.com/wolfeidau/stat-ignition"
)

// ErrNotFound is returned by FetchStatCache when no cache was ever saved.
var ErrNotFound = errors.New("store: stat cache not found")

// Store persists the stat cache.
type Store interface {
	// IsSupported reports whether the store is usable in this process.
	// It must be checked before any other method is called.
	IsSupported(ctx context.Context) bool

	// FetchStatCache returns the previously saved cache.
	// Returns ErrNotFound if nothing has been saved yet.
	FetchStatCache(ctx context.Context) (ignition.StatCache, error)

	// SaveStatCache replaces any saved cache with the given one.
	SaveStatCache(ctx context.Context, cache ignition.StatCache) error
}

// Clearer is implemented by stores that can discard their saved cache.
type Clearer interface {
	// ClearStatCache removes the saved cache. Clearing an empty store is not an error.
	ClearStatCache(ctx context.Context) error
}
