package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/ignite"
	"github.com/wolfeidau/stat-ignition/preflight"
	"github.com/wolfeidau/stat-ignition/store"
	"github.com/wolfeidau/stat-ignition/vfs"
)

// WarmCmd stats a tree through the interceptor so the next start finds it cached.
type WarmCmd struct {
	Paths []string `arg:"" optional:"" help:"Paths to walk (default: the project root)." type:"path"`
}

// Run implements the warm command.
func (c *WarmCmd) Run(g *Globals) (err error) {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.close())
	}()

	h := ignite.New(ignite.WithLogger(g.logger))
	h.DisableAutoHandoff()
	if err := h.Start(g.ctx, g.Root, st); err != nil {
		return errors.Join(err, switchOff(g, h))
	}
	if !h.IsChokeOn() {
		g.logger.Warn("store not supported, nothing to warm", "store", g.Store)
		return nil
	}

	paths := c.Paths
	if len(paths) == 0 {
		paths = []string{g.Root}
	}

	fsys := h.Filesystem()
	stater, _ := fsys.(vfs.OptionStater)
	walked := 0
	for _, root := range paths {
		if stater != nil {
			if _, err := stater.StatWith(root, vfs.StatOptions{FollowLinks: true, Quiet: true}); err != nil {
				g.logger.Debug("skipping missing path", "path", root)
				continue
			}
		}
		walkErr := afero.Walk(fsys, root, func(path string, _ os.FileInfo, err error) error {
			if g.ctx.Err() != nil {
				return g.ctx.Err()
			}
			if err != nil {
				g.logger.Debug("walk error", "path", path, "error", err)
				return nil
			}
			walked++
			return nil
		})
		if walkErr != nil {
			return errors.Join(fmt.Errorf("walking %s: %w", root, walkErr), switchOff(g, h))
		}
	}

	cache, err := h.StatCache()
	if err != nil {
		return err
	}
	if err := h.HandOff(g.ctx); err != nil {
		return fmt.Errorf("saving stat cache: %w", err)
	}

	g.logger.Info("warmed stat cache", "root", g.Root, "walked", walked, "entries", len(cache))
	return nil
}

func switchOff(g *Globals, h *ignite.Ignition) error {
	if !h.IsStarted() {
		return nil
	}
	return h.SwitchOff(g.ctx)
}

// ShowCmd prints the saved cache.
type ShowCmd struct {
	Misses bool `help:"Include paths recorded as missing." default:"true" negatable:""`
}

// Run implements the show command.
func (c *ShowCmd) Run(g *Globals) (err error) {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.close())
	}()

	if !st.IsSupported(g.ctx) {
		return fmt.Errorf("store %s is not supported", g.Store)
	}

	cache, err := st.FetchStatCache(g.ctx)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("no stat cache saved")
		return nil
	}
	if err != nil {
		return err
	}

	if st.bolt != nil {
		if rec, err := st.bolt.LastSave(g.ctx); err == nil {
			fmt.Printf("namespace %s saved %s by %s (%d entries, %d bytes, %s)\n\n",
				rec.Namespace, rec.SavedAt.Format(time.RFC3339), rec.WriterID, rec.Entries, rec.Size, rec.Digest)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tKIND\tSIZE\tMODE\tMODIFIED")
	for _, path := range cache.Paths() {
		entry := cache[path]
		stat, ok := entry.Stat()
		if !ok {
			if c.Misses {
				fmt.Fprintf(w, "%s\tmiss\t-\t-\t-\n", path)
			}
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", path, kind(stat), stat.Size, stat.Mode, stat.ModTime.Format(time.RFC3339))
	}
	return w.Flush()
}

func kind(stat ignition.FileStat) string {
	switch {
	case stat.Mode.IsDir():
		return "dir"
	case stat.Mode&os.ModeSymlink != 0:
		return "link"
	case stat.Mode.IsRegular():
		return "file"
	default:
		return "other"
	}
}

// ClearCmd discards the saved cache.
type ClearCmd struct{}

// Run implements the clear command.
func (c *ClearCmd) Run(g *Globals) (err error) {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.close())
	}()

	clearer, ok := st.Store.(store.Clearer)
	if !ok {
		return fmt.Errorf("store %s cannot be cleared", g.Store)
	}
	if err := clearer.ClearStatCache(g.ctx); err != nil {
		return fmt.Errorf("clearing stat cache: %w", err)
	}
	g.logger.Info("cleared stat cache", "store", g.Store, "namespace", g.Namespace)
	return nil
}

// PreflightsCmd lists the preflights of the project config without running them.
type PreflightsCmd struct{}

// Run implements the preflights command.
func (c *PreflightsCmd) Run(g *Globals) error {
	fsys := vfs.NewOsFs()
	// Configs may import the handle; give them an idle one.
	exports := ignite.New(ignite.WithLogger(g.logger)).Exports()
	resolver := preflight.NewConfigResolver(fsys, preflight.NewYaegiIncluder(fsys, exports))

	cfg, err := resolver.ResolveConfig(g.Root)
	if err != nil {
		return err
	}
	if cfg == nil {
		fmt.Printf("no config at %s\n", resolver.ConfigPath(g.Root))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tVENDOR\tNAME")
	for i, pf := range cfg.Preflights() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, pf.Vendor(), pf.Name())
	}
	return w.Flush()
}
