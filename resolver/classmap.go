package resolver

import (
	"fmt"
	"maps"
)

// ClassMap resolves symbols through an exact name to file table. It is the
// shape a primary resolver takes once the bootstrap window is over.
type ClassMap struct {
	files  map[string]string
	loader Loader
}

// NewClassMap creates a ClassMap over files.
func NewClassMap(files map[string]string, loader Loader) *ClassMap {
	return &ClassMap{files: maps.Clone(files), loader: loader}
}

// Resolve implements Resolver.
func (c *ClassMap) Resolve(name string) (bool, error) {
	path, ok := c.files[name]
	if !ok {
		return false, nil
	}
	if err := c.loader.Load(path); err != nil {
		return true, fmt.Errorf("loading %s: %w", path, err)
	}
	return true, nil
}

var _ Resolver = (*ClassMap)(nil)
