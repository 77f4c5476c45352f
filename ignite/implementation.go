package ignite

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/wolfeidau/stat-ignition/choke"
	"github.com/wolfeidau/stat-ignition/preflight"
	"github.com/wolfeidau/stat-ignition/resolver"
	"github.com/wolfeidau/stat-ignition/store"
)

// MappingsFileName is the prefix mapping file looked for in the project root.
const MappingsFileName = "ignition.mappings.yaml"

// Default wires a choke.Choke and a preflight.Preflighter.
type Default struct {
	store       store.Store
	env         Env
	choke       *choke.Choke
	preflighter *preflight.Preflighter
}

// DefaultImplementation is the Factory used unless WithImplementation is given.
func DefaultImplementation(st store.Store, env Env) Implementation {
	return &Default{store: st, env: env}
}

// Choke returns the choke, creating it on first use. The early resolver reads
// <projectRoot>/ignition.mappings.yaml once interception is on; without that
// file it starts with no mappings.
func (d *Default) Choke(ctx context.Context, projectRoot string) Choke {
	if d.choke == nil {
		d.choke = choke.New(ctx, d.store,
			choke.WithLogger(d.env.Logger),
			choke.WithRegistry(d.env.Registry),
			choke.WithCooperatingLayer(d.env.CooperatingLayer),
			choke.WithResolverChain(d.env.Chain),
			choke.WithResolverProvider(d.earlyResolver(projectRoot)),
		)
	}
	return d.choke
}

func (d *Default) earlyResolver(projectRoot string) choke.ResolverProvider {
	return func(fsys afero.Fs) (*resolver.Early, error) {
		mappings, err := resolver.LoadMappings(fsys, filepath.Join(projectRoot, MappingsFileName))
		switch {
		case errors.Is(err, resolver.ErrNoMappings):
			mappings = resolver.NewMappings()
		case err != nil:
			return nil, err
		}

		loader, err := resolver.NewYaegiLoader(fsys, d.env.Exports)
		if err != nil {
			return nil, err
		}
		return resolver.NewEarly(mappings, fsys, loader, resolver.WithLogger(d.env.Logger)), nil
	}
}

// Preflighter returns the preflighter, creating it on first use. Config
// files are read through the intercepted filesystem.
func (d *Default) Preflighter() Preflighter {
	if d.preflighter == nil {
		includer := preflight.NewYaegiIncluder(d.env.Fs, d.env.Exports)
		d.preflighter = preflight.NewPreflighter(
			preflight.NewConfigResolver(d.env.Fs, includer),
			preflight.WithLogger(d.env.Logger),
		)
	}
	return d.preflighter
}
