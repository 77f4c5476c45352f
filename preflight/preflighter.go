package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wolfeidau/stat-ignition/telemetry"
)

// Preflighter runs the preflights of a project's config.
type Preflighter struct {
	resolver *ConfigResolver
	logger   *slog.Logger
}

// Option configures a Preflighter.
type Option func(*Preflighter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Preflighter) {
		p.logger = logger
	}
}

// NewPreflighter creates a Preflighter.
func NewPreflighter(resolver *ConfigResolver, opts ...Option) *Preflighter {
	p := &Preflighter{resolver: resolver, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunPreflights runs each preflight in installation order. The first failure
// stops the run and is returned.
func (p *Preflighter) RunPreflights(ctx context.Context, projectRoot string) error {
	cfg, err := p.resolver.ResolveConfig(projectRoot)
	if err != nil {
		return err
	}
	if cfg == nil {
		p.logger.Debug("no ignition config", "root", projectRoot)
		return nil
	}

	for _, pf := range cfg.Preflights() {
		start := time.Now()
		err := pf.Run()
		telemetry.RecordPreflight(ctx, pf.Vendor(), telemetry.Outcome(err), time.Since(start))
		if err != nil {
			return fmt.Errorf("preflight %s: %w", pf, err)
		}
		p.logger.Debug("ran preflight", "preflight", pf.String(), "duration", time.Since(start))
	}
	return nil
}
