// Package choke turns stat interception on for the bootstrap window and off
// again at handoff. A Choke owns the in-memory stat cache for that window: it
// loads the cache from a store when created and writes it back on turn-off
// if anything new was recorded.
package choke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/interceptor"
	"github.com/wolfeidau/stat-ignition/resolver"
	"github.com/wolfeidau/stat-ignition/store"
	"github.com/wolfeidau/stat-ignition/telemetry"
	"github.com/wolfeidau/stat-ignition/vfs"
)

var (
	// ErrState is wrapped by every error caused by calling a method in the wrong state.
	ErrState = errors.New("choke: invalid state")

	// ErrAlreadyOn is returned by TurnOn when the choke is on.
	ErrAlreadyOn = fmt.Errorf("%w: already on", ErrState)

	// ErrSpent is returned by TurnOn once the choke has been turned off.
	ErrSpent = fmt.Errorf("%w: already turned off", ErrState)

	// ErrNotOn is returned by TurnOff when the choke is not on.
	ErrNotOn = fmt.Errorf("%w: not on", ErrState)

	// ErrPersist wraps a failure to save the cache on turn-off.
	ErrPersist = errors.New("choke: persisting stat cache failed")
)

type state int

const (
	stateIdle state = iota
	stateOn
	stateOff
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateOn:
		return "on"
	case stateOff:
		return "off"
	}
	return "unknown"
}

// ResolverProvider builds the early resolver once interception is active.
// fsys routes through the active handler, so whatever the provider reads is
// intercepted and cached. A nil resolver means none is registered.
type ResolverProvider func(fsys afero.Fs) (*resolver.Early, error)

// Choke is the orchestrator of one interception window. It is not safe for
// concurrent use.
type Choke struct {
	store       store.Store
	registry    *vfs.Registry
	scheme      string
	cooperating func() bool
	provider    ResolverProvider
	chain       *resolver.Chain
	logger      *slog.Logger

	state       state
	cache       ignition.StatCache
	dirty       bool
	interceptor *interceptor.Interceptor
	early       *resolver.Early
	onAt        time.Time
}

// Option configures a Choke.
type Option func(*Choke)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Choke) {
		c.logger = logger
	}
}

// WithRegistry sets the handler registry the interceptor is installed into.
func WithRegistry(registry *vfs.Registry) Option {
	return func(c *Choke) {
		c.registry = registry
	}
}

// WithScheme sets the scheme to intercept (default vfs.SchemeFile).
func WithScheme(scheme string) Option {
	return func(c *Choke) {
		c.scheme = scheme
	}
}

// WithCooperatingLayer is passed through to the interceptor.
func WithCooperatingLayer(active func() bool) Option {
	return func(c *Choke) {
		c.cooperating = active
	}
}

// WithResolverProvider sets how the early resolver is built.
func WithResolverProvider(provider ResolverProvider) Option {
	return func(c *Choke) {
		c.provider = provider
	}
}

// WithResolverChain sets the chain the early resolver is registered in.
func WithResolverChain(chain *resolver.Chain) Option {
	return func(c *Choke) {
		c.chain = chain
	}
}

// New creates a Choke and loads the saved cache from st. A store that has
// nothing saved, or fails to load, yields an empty cache.
func New(ctx context.Context, st store.Store, opts ...Option) *Choke {
	c := &Choke{
		store:       st,
		scheme:      vfs.SchemeFile,
		cooperating: func() bool { return false },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = vfs.NewRegistry()
	}
	if c.chain == nil {
		c.chain = resolver.NewChain()
	}

	cache, err := st.FetchStatCache(ctx)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		c.logger.Debug("no saved stat cache")
	default:
		c.logger.Warn("loading stat cache failed, starting empty", "error", err)
	}
	if cache == nil {
		cache = ignition.StatCache{}
	}
	c.cache = cache
	c.logger.Debug("loaded stat cache", "entries", len(cache))
	return c
}

// TurnOn installs the interceptor and then registers the early resolver.
func (c *Choke) TurnOn(ctx context.Context) error {
	switch c.state {
	case stateOn:
		return ErrAlreadyOn
	case stateOff:
		return ErrSpent
	}

	c.interceptor = interceptor.New(c.registry, c,
		interceptor.WithScheme(c.scheme),
		interceptor.WithLogger(c.logger),
		interceptor.WithCooperatingLayer(c.cooperating),
	)
	if err := c.interceptor.Install(); err != nil {
		c.interceptor = nil
		return err
	}

	if c.provider != nil {
		early, err := c.provider(vfs.NewDispatcher(c.registry, c.scheme))
		if err == nil && early != nil {
			err = early.Register(c.chain)
		}
		if err != nil {
			if uerr := c.interceptor.ForceUninstall(); uerr != nil {
				c.logger.Error("uninstalling interceptor", "error", uerr)
			}
			c.interceptor = nil
			return fmt.Errorf("building early resolver: %w", err)
		}
		c.early = early
	}

	c.state = stateOn
	c.onAt = time.Now()
	c.logger.Debug("choke on", "scheme", c.scheme, "entries", len(c.cache), "resolver", c.early != nil)
	return nil
}

// TurnOff uninstalls the interceptor, saves the cache if it changed and
// releases it, then unregisters the early resolver. The choke is off even
// when saving fails; the failure is returned wrapped in ErrPersist.
func (c *Choke) TurnOff(ctx context.Context) error {
	if c.state != stateOn {
		return fmt.Errorf("%w (state %s)", ErrNotOn, c.state)
	}

	var errs []error
	if err := c.interceptor.Uninstall(); err != nil {
		errs = append(errs, fmt.Errorf("uninstalling interceptor: %w", err))
	}

	flush := "clean"
	entries := len(c.cache)
	if c.dirty {
		if err := c.store.SaveStatCache(ctx, c.cache); err != nil {
			flush = "failed"
			c.logger.Warn("saving stat cache failed", "entries", entries, "error", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrPersist, err))
		} else {
			flush = "saved"
			c.dirty = false
		}
	}
	c.cache = ignition.StatCache{}

	if c.early != nil {
		if err := c.early.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("unregistering early resolver: %w", err))
		}
		c.early = nil
	}

	c.interceptor = nil
	c.state = stateOff

	window := time.Since(c.onAt)
	telemetry.RecordChokeWindow(ctx, window, entries, flush)
	c.logger.Debug("choke off", "entries", entries, "flush", flush, "window", window)
	return errors.Join(errs...)
}

// CacheStat records entry for path and marks the cache dirty.
func (c *Choke) CacheStat(path string, entry ignition.StatEntry) {
	c.cache[path] = entry
	c.dirty = true
}

// GetCachedStat returns the cached entry for path. ok is false when the path
// was never queried, which is distinct from a cached Miss.
func (c *Choke) GetCachedStat(path string) (entry ignition.StatEntry, ok bool) {
	entry, ok = c.cache[path]
	return entry, ok
}

// StatCache returns a copy of the cache.
func (c *Choke) StatCache() ignition.StatCache {
	return c.cache.Clone()
}

// IsOn reports whether interception is active.
func (c *Choke) IsOn() bool {
	return c.state == stateOn
}

// IsDirty reports whether entries were recorded since the cache was loaded or saved.
func (c *Choke) IsDirty() bool {
	return c.dirty
}

// Resolver returns the registered early resolver, or nil.
func (c *Choke) Resolver() *resolver.Early {
	return c.early
}

var _ interceptor.StatCache = (*Choke)(nil)
