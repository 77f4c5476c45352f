// Package resolver turns symbol names into source files and loads them.
//
// A Chain holds resolvers in registration order. During the bootstrap window
// an Early resolver answers from an explicit prefix table; afterwards the
// embedder's primary resolver (for example a ClassMap) takes over.
package resolver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrAlreadyRegistered is returned when a resolver is registered twice.
	ErrAlreadyRegistered = errors.New("resolver: already registered")

	// ErrNotRegistered is returned when unregistering a resolver that is not registered.
	ErrNotRegistered = errors.New("resolver: not registered")
)

// Resolver resolves a fully qualified symbol name. It reports whether it
// found and loaded a file for the symbol. A symbol it does not know is not
// an error. Implementations must be comparable.
type Resolver interface {
	Resolve(name string) (bool, error)
}

// Chain is an ordered list of resolvers consulted until one resolves a name.
type Chain struct {
	mu        sync.Mutex
	resolvers []Resolver
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register appends r to the chain.
func (c *Chain) Register(r Resolver) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.resolvers, r) {
		return fmt.Errorf("%w: %T", ErrAlreadyRegistered, r)
	}
	c.resolvers = append(c.resolvers, r)
	return nil
}

// Unregister removes r from the chain.
func (c *Chain) Unregister(r Resolver) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.Index(c.resolvers, r)
	if idx < 0 {
		return fmt.Errorf("%w: %T", ErrNotRegistered, r)
	}
	c.resolvers = slices.Delete(c.resolvers, idx, idx+1)
	return nil
}

// Resolve tries each resolver in registration order. Resolvers may register
// or unregister others while resolving; the change applies to the next call.
func (c *Chain) Resolve(name string) (bool, error) {
	c.mu.Lock()
	resolvers := slices.Clone(c.resolvers)
	c.mu.Unlock()

	for _, r := range resolvers {
		ok, err := r.Resolve(name)
		if err != nil {
			return false, fmt.Errorf("resolving %s: %w", name, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of registered resolvers.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resolvers)
}
