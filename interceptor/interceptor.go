// Package interceptor provides a filesystem handler that serves metadata
// queries from a stat cache and passes every other operation through to the
// builtin handler of its scheme.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/telemetry"
	"github.com/wolfeidau/stat-ignition/vfs"
)

// ErrInstall is returned when the interceptor cannot become the active handler.
var ErrInstall = errors.New("interceptor: install failed")

// StatCache is the cache the interceptor reads from and records into.
type StatCache interface {
	// GetCachedStat returns the cached entry for path, if any.
	GetCachedStat(path string) (ignition.StatEntry, bool)
	// CacheStat records the outcome of a real metadata query.
	CacheStat(path string, entry ignition.StatEntry)
}

// Interceptor is an afero.Fs installed as the active handler of a scheme.
type Interceptor struct {
	registry    *vfs.Registry
	scheme      string
	cache       StatCache
	cooperating func() bool
	logger      *slog.Logger
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithScheme sets the scheme the interceptor installs itself for (default vfs.SchemeFile).
func WithScheme(scheme string) Option {
	return func(i *Interceptor) {
		i.scheme = scheme
	}
}

// WithLogger sets the logger used for failed metadata queries.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

// WithCooperatingLayer sets a predicate reporting whether another interception
// layer is active for the scheme. While it reports true, Uninstall leaves the
// registry untouched so that layer can restore the handler itself.
func WithCooperatingLayer(active func() bool) Option {
	return func(i *Interceptor) {
		i.cooperating = active
	}
}

// New creates an interceptor recording into cache.
func New(registry *vfs.Registry, cache StatCache, opts ...Option) *Interceptor {
	i := &Interceptor{
		registry:    registry,
		scheme:      vfs.SchemeFile,
		cache:       cache,
		cooperating: func() bool { return false },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Scheme returns the scheme the interceptor handles.
func (i *Interceptor) Scheme() string {
	return i.scheme
}

// Install makes the interceptor the active handler for its scheme, replacing
// whatever handler is active. Installing twice leaves a single active handler.
func (i *Interceptor) Install() error {
	if err := i.registry.Unregister(i.scheme); err != nil && !errors.Is(err, vfs.ErrSchemeNotRegistered) {
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}
	if err := i.registry.Register(i.scheme, i); err != nil {
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}
	return nil
}

// Uninstall restores the builtin handler for the scheme, or leaves the scheme
// without a handler when it has no builtin. Nothing happens while a
// cooperating interception layer is active.
func (i *Interceptor) Uninstall() error {
	if i.cooperating() {
		i.logger.Debug("cooperating layer active, leaving handler in place", "scheme", i.scheme)
		return nil
	}
	return i.deactivate()
}

// ForceUninstall is Uninstall without the cooperating-layer check, for
// callers backing out of an Install they just made.
func (i *Interceptor) ForceUninstall() error {
	return i.deactivate()
}

func (i *Interceptor) deactivate() error {
	err := i.registry.Restore(i.scheme)
	if !errors.Is(err, vfs.ErrNoBuiltin) {
		return err
	}
	if err := i.registry.Unregister(i.scheme); err != nil && !errors.Is(err, vfs.ErrSchemeNotRegistered) {
		return err
	}
	return nil
}

// unwrapped runs fn against the builtin handler with the interceptor disabled,
// so the real filesystem call is not intercepted again. The interceptor is
// re-installed on every exit path, including a panic in fn.
func (i *Interceptor) unwrapped(fn func(native afero.Fs) error) error {
	if err := i.deactivate(); err != nil {
		return err
	}
	defer func() {
		if err := i.Install(); err != nil {
			i.logger.Error("re-installing interceptor", "scheme", i.scheme, "error", err)
		}
	}()

	native, ok := i.registry.Handler(i.scheme)
	if !ok {
		return fmt.Errorf("%w: %s", vfs.ErrSchemeNotRegistered, i.scheme)
	}
	return fn(native)
}

// StatWith implements vfs.OptionStater. It answers from the cache when it can
// and otherwise performs the real query, records the outcome and returns it.
func (i *Interceptor) StatWith(name string, opts vfs.StatOptions) (os.FileInfo, error) {
	op := "lstat"
	if opts.FollowLinks {
		op = "stat"
	}
	return i.entryResult(op, name, i.statPath(op, name, opts))
}

func (i *Interceptor) statPath(op, name string, opts vfs.StatOptions) ignition.StatEntry {
	ctx := context.Background()

	if entry, ok := i.cache.GetCachedStat(name); ok {
		telemetry.RecordStatLookup(ctx, op, lookupResult(entry))
		return entry
	}
	telemetry.RecordStatLookup(ctx, op, telemetry.ResultMiss)

	var entry ignition.StatEntry
	err := i.unwrapped(func(native afero.Fs) error {
		if opts.Quiet {
			exists, err := vfs.Exists(native, name)
			if err == nil && !exists {
				entry = ignition.Miss
				return nil
			}
		}

		info, err := statNative(native, name, opts.FollowLinks)
		if err != nil {
			entry = ignition.Miss
			return err
		}
		entry = ignition.Hit(ignition.FileStatFromInfo(info))
		return nil
	})
	if err != nil && !opts.Quiet {
		i.logger.Warn(op+" failed", "path", name, "error", err)
	}

	i.cache.CacheStat(name, entry)
	return entry
}

func statNative(native afero.Fs, name string, followLinks bool) (os.FileInfo, error) {
	if !followLinks {
		if ls, ok := native.(afero.Lstater); ok {
			info, _, err := ls.LstatIfPossible(name)
			return info, err
		}
	}
	return native.Stat(name)
}

// entryResult converts a cache entry into the afero return convention.
func (i *Interceptor) entryResult(op, name string, entry ignition.StatEntry) (os.FileInfo, error) {
	if entry.IsMiss() {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return entry.FileInfo(), nil
}

func lookupResult(entry ignition.StatEntry) string {
	if entry.IsMiss() {
		return telemetry.ResultNegativeHit
	}
	return telemetry.ResultHit
}

// Stat implements afero.Fs.
func (i *Interceptor) Stat(name string) (os.FileInfo, error) {
	return i.StatWith(name, vfs.StatOptions{FollowLinks: true})
}

// LstatIfPossible implements afero.Lstater.
func (i *Interceptor) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	info, err := i.StatWith(name, vfs.StatOptions{})
	return info, true, err
}

// Exists reports whether name exists, answering from the cache when possible.
// Any failure of the underlying probe, permission errors included, is
// reported as false with a nil error; the path is cached as a Miss.
func (i *Interceptor) Exists(name string) (bool, error) {
	_, err := i.StatWith(name, vfs.StatOptions{FollowLinks: true, Quiet: true})
	return err == nil, nil
}

// Name implements afero.Fs.
func (i *Interceptor) Name() string {
	return "StatInterceptor(" + i.scheme + ")"
}

// Open implements afero.Fs.
func (i *Interceptor) Open(name string) (afero.File, error) {
	return i.OpenFile(name, os.O_RDONLY, 0)
}

// Create implements afero.Fs.
func (i *Interceptor) Create(name string) (afero.File, error) {
	return i.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile implements afero.Fs. The returned file serves Stat from the cache.
func (i *Interceptor) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	var f afero.File
	err := i.unwrapped(func(native afero.Fs) error {
		var err error
		f, err = native.OpenFile(name, flag, perm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &file{File: f, path: name, cache: i.cache}, nil
}

// Mkdir implements afero.Fs.
func (i *Interceptor) Mkdir(name string, perm os.FileMode) error {
	return i.unwrapped(func(native afero.Fs) error { return native.Mkdir(name, perm) })
}

// MkdirAll implements afero.Fs.
func (i *Interceptor) MkdirAll(path string, perm os.FileMode) error {
	return i.unwrapped(func(native afero.Fs) error { return native.MkdirAll(path, perm) })
}

// Remove implements afero.Fs.
func (i *Interceptor) Remove(name string) error {
	return i.unwrapped(func(native afero.Fs) error { return native.Remove(name) })
}

// RemoveAll implements afero.Fs.
func (i *Interceptor) RemoveAll(path string) error {
	return i.unwrapped(func(native afero.Fs) error { return native.RemoveAll(path) })
}

// Rename implements afero.Fs.
func (i *Interceptor) Rename(oldname, newname string) error {
	return i.unwrapped(func(native afero.Fs) error { return native.Rename(oldname, newname) })
}

// Chmod implements afero.Fs.
func (i *Interceptor) Chmod(name string, mode os.FileMode) error {
	return i.unwrapped(func(native afero.Fs) error { return native.Chmod(name, mode) })
}

// Chown implements afero.Fs.
func (i *Interceptor) Chown(name string, uid, gid int) error {
	return i.unwrapped(func(native afero.Fs) error { return native.Chown(name, uid, gid) })
}

// Chtimes implements afero.Fs.
func (i *Interceptor) Chtimes(name string, atime, mtime time.Time) error {
	return i.unwrapped(func(native afero.Fs) error { return native.Chtimes(name, atime, mtime) })
}

var (
	_ afero.Fs         = (*Interceptor)(nil)
	_ afero.Lstater    = (*Interceptor)(nil)
	_ vfs.OptionStater = (*Interceptor)(nil)
	_ vfs.Exister      = (*Interceptor)(nil)
)
