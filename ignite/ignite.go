// Package ignite is the activation entrypoint embedders call at process
// start. An Ignition handle turns stat interception on, runs the project's
// preflights and, unless a preflight asked otherwise, hands off to normal
// operation straight away.
package ignite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/traefik/yaegi/interp"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/resolver"
	"github.com/wolfeidau/stat-ignition/store"
	"github.com/wolfeidau/stat-ignition/vfs"
)

var (
	// ErrState is wrapped by every error caused by calling a method in the wrong state.
	ErrState = errors.New("ignite: invalid state")

	// ErrAlreadyStarted is returned by Start on a started handle.
	ErrAlreadyStarted = fmt.Errorf("%w: already started", ErrState)

	// ErrNotStarted is returned by HandOff and SwitchOff before Start.
	ErrNotStarted = fmt.Errorf("%w: not started", ErrState)

	// ErrChokeNotOn is returned when an operation needs interception to be active.
	ErrChokeNotOn = fmt.Errorf("%w: choke is not on", ErrState)
)

// Choke is the orchestrator an Implementation provides.
type Choke interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	CacheStat(path string, entry ignition.StatEntry)
	GetCachedStat(path string) (ignition.StatEntry, bool)
	StatCache() ignition.StatCache
}

// Preflighter runs a project's preflights.
type Preflighter interface {
	RunPreflights(ctx context.Context, projectRoot string) error
}

// Implementation supplies the parts Start wires together.
type Implementation interface {
	Choke(ctx context.Context, projectRoot string) Choke
	Preflighter() Preflighter
}

// Env is what a Factory gets from the handle.
type Env struct {
	Registry *vfs.Registry
	// Fs routes through the active handler of the intercepted scheme.
	Fs               afero.Fs
	Chain            *resolver.Chain
	Logger           *slog.Logger
	Exports          interp.Exports
	CooperatingLayer func() bool
}

// Factory builds the Implementation for one Start.
type Factory func(st store.Store, env Env) Implementation

// Ignition is the handle an embedder owns for the life of the process. It is
// not safe for concurrent use.
type Ignition struct {
	registry    *vfs.Registry
	scheme      string
	fs          *vfs.Dispatcher
	chain       *resolver.Chain
	factory     Factory
	cooperating func() bool
	logger      *slog.Logger

	started     bool
	autoHandoff bool
	choke       Choke
}

// Option configures an Ignition.
type Option func(*Ignition)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Ignition) {
		h.logger = logger
	}
}

// WithImplementation replaces DefaultImplementation.
func WithImplementation(factory Factory) Option {
	return func(h *Ignition) {
		h.factory = factory
	}
}

// WithRegistry sets the handler registry to intercept.
func WithRegistry(registry *vfs.Registry) Option {
	return func(h *Ignition) {
		h.registry = registry
	}
}

// WithResolverChain sets the chain the early resolver joins.
func WithResolverChain(chain *resolver.Chain) Option {
	return func(h *Ignition) {
		h.chain = chain
	}
}

// WithCooperatingLayer sets the predicate that keeps the interceptor
// installed on handoff while another interception layer is active.
func WithCooperatingLayer(active func() bool) Option {
	return func(h *Ignition) {
		h.cooperating = active
	}
}

// New creates a handle.
func New(opts ...Option) *Ignition {
	h := &Ignition{
		scheme:      vfs.SchemeFile,
		factory:     DefaultImplementation,
		cooperating: func() bool { return false },
		logger:      slog.Default(),
		autoHandoff: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = vfs.NewRegistry()
	}
	if h.chain == nil {
		h.chain = resolver.NewChain()
	}
	h.fs = vfs.NewDispatcher(h.registry, h.scheme)
	return h
}

// Start activates interception for rootProjectPath. When st is not usable
// in this process Start marks the handle started and does nothing else.
//
// If a preflight fails the error is returned with interception still on;
// call SwitchOff to release it.
func (h *Ignition) Start(ctx context.Context, rootProjectPath string, st store.Store) error {
	if h.started {
		return ErrAlreadyStarted
	}
	h.started = true

	if !st.IsSupported(ctx) {
		h.logger.Debug("store not supported, interception disabled", "root", rootProjectPath)
		return nil
	}

	impl := h.factory(st, h.env())

	c := impl.Choke(ctx, rootProjectPath)
	if err := c.TurnOn(ctx); err != nil {
		return fmt.Errorf("turning choke on: %w", err)
	}
	h.choke = c

	if err := impl.Preflighter().RunPreflights(ctx, rootProjectPath); err != nil {
		return fmt.Errorf("running preflights: %w", err)
	}

	if h.autoHandoff {
		return h.HandOff(ctx)
	}
	h.logger.Debug("auto handoff disabled, interception stays on", "root", rootProjectPath)
	return nil
}

// HandOff turns interception off, saving the cache if it changed.
func (h *Ignition) HandOff(ctx context.Context) error {
	if !h.started {
		return ErrNotStarted
	}
	if h.choke == nil {
		return ErrChokeNotOn
	}

	c := h.choke
	h.choke = nil
	return c.TurnOff(ctx)
}

// SwitchOff turns interception off if it is on and resets the handle so
// Start may be called again.
func (h *Ignition) SwitchOff(ctx context.Context) error {
	if !h.started {
		return ErrNotStarted
	}

	var err error
	if h.choke != nil {
		err = h.choke.TurnOff(ctx)
	}
	h.choke = nil
	h.started = false
	return err
}

// DisableAutoHandoff keeps interception on after Start returns. The
// embedder then calls HandOff itself.
func (h *Ignition) DisableAutoHandoff() {
	h.autoHandoff = false
}

// IsAutoHandoffEnabled reports whether Start hands off by itself.
func (h *Ignition) IsAutoHandoffEnabled() bool {
	return h.autoHandoff
}

// IsChokeOn reports whether interception is active.
func (h *Ignition) IsChokeOn() bool {
	return h.choke != nil
}

// IsStarted reports whether Start was called since the last SwitchOff.
func (h *Ignition) IsStarted() bool {
	return h.started
}

// CacheStat records entry for path in the active cache.
func (h *Ignition) CacheStat(path string, entry ignition.StatEntry) error {
	if h.choke == nil {
		return ErrChokeNotOn
	}
	h.choke.CacheStat(path, entry)
	return nil
}

// GetCachedStat looks path up in the active cache.
func (h *Ignition) GetCachedStat(path string) (ignition.StatEntry, bool, error) {
	if h.choke == nil {
		return ignition.Miss, false, ErrChokeNotOn
	}
	entry, ok := h.choke.GetCachedStat(path)
	return entry, ok, nil
}

// StatCache returns a copy of the active cache.
func (h *Ignition) StatCache() (ignition.StatCache, error) {
	if h.choke == nil {
		return nil, ErrChokeNotOn
	}
	return h.choke.StatCache(), nil
}

// Filesystem returns the afero.Fs embedders should do file access through.
// It routes to the interceptor while interception is on and to the native
// filesystem otherwise.
func (h *Ignition) Filesystem() afero.Fs {
	return h.fs
}

// Registry returns the handler registry.
func (h *Ignition) Registry() *vfs.Registry {
	return h.registry
}

// Resolvers returns the resolver chain.
func (h *Ignition) Resolvers() *resolver.Chain {
	return h.chain
}

func (h *Ignition) env() Env {
	return Env{
		Registry:         h.registry,
		Fs:               h.fs,
		Chain:            h.chain,
		Logger:           h.logger,
		Exports:          h.Exports(),
		CooperatingLayer: h.cooperating,
	}
}
