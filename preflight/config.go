// Package preflight runs the one-shot setup callbacks a project declares in
// its ignition config file. They run after interception is active and before
// handoff.
package preflight

import "slices"

// Preflight is a named setup callback. It is immutable once created.
type Preflight struct {
	name   string
	vendor string
	run    func() error
}

// NewPreflight creates a preflight. A nil run is treated as a no-op.
func NewPreflight(vendor, name string, run func() error) Preflight {
	if run == nil {
		run = func() error { return nil }
	}
	return Preflight{name: name, vendor: vendor, run: run}
}

// Name returns the preflight name.
func (p Preflight) Name() string { return p.name }

// Vendor returns the package vendor that installed the preflight.
func (p Preflight) Vendor() string { return p.vendor }

// Run invokes the callback.
func (p Preflight) Run() error {
	if p.run == nil {
		return nil
	}
	return p.run()
}

// String returns "vendor/name".
func (p Preflight) String() string {
	return p.vendor + "/" + p.name
}

// Config is the value a project config file produces.
type Config interface {
	// Preflights returns the installed preflights in installation order.
	Preflights() []Preflight
	// InstallPreflight appends p.
	InstallPreflight(p Preflight)
}

type config struct {
	preflights []Preflight
}

// NewConfig returns an empty Config.
func NewConfig() Config {
	return &config{}
}

func (c *config) Preflights() []Preflight {
	return slices.Clone(c.preflights)
}

func (c *config) InstallPreflight(p Preflight) {
	c.preflights = append(c.preflights, p)
}
