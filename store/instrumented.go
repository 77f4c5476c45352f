package store

import (
	"context"
	"errors"
	"time"

	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/telemetry"
)

// Instrumented wraps a Store with metrics recording.
type Instrumented struct {
	store Store
	name  string
}

// NewInstrumented creates a new instrumented store wrapper. name is the
// store label recorded with each operation.
func NewInstrumented(s Store, name string) *Instrumented {
	return &Instrumented{store: s, name: name}
}

func (i *Instrumented) IsSupported(ctx context.Context) bool {
	start := time.Now()
	ok := i.store.IsSupported(ctx)
	outcome := "success"
	if !ok {
		outcome = "unsupported"
	}
	telemetry.RecordStoreOp(ctx, i.name, "probe", outcome, time.Since(start), 0, 0)
	return ok
}

func (i *Instrumented) FetchStatCache(ctx context.Context) (ignition.StatCache, error) {
	start := time.Now()
	cache, err := i.store.FetchStatCache(ctx)
	telemetry.RecordStoreOp(ctx, i.name, "fetch", outcome(err), time.Since(start), len(cache), 0)
	return cache, err
}

func (i *Instrumented) SaveStatCache(ctx context.Context, cache ignition.StatCache) error {
	start := time.Now()
	err := i.store.SaveStatCache(ctx, cache)
	telemetry.RecordStoreOp(ctx, i.name, "save", outcome(err), time.Since(start), len(cache), 0)
	return err
}

// ClearStatCache delegates to the underlying store if it implements Clearer.
func (i *Instrumented) ClearStatCache(ctx context.Context) error {
	c, ok := i.store.(Clearer)
	if !ok {
		return errors.ErrUnsupported
	}
	start := time.Now()
	err := c.ClearStatCache(ctx)
	telemetry.RecordStoreOp(ctx, i.name, "clear", outcome(err), time.Since(start), 0, 0)
	return err
}

// Unwrap returns the underlying store.
func (i *Instrumented) Unwrap() Store {
	return i.store
}

func outcome(err error) string {
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	return telemetry.Outcome(err)
}

var (
	_ Store   = (*Instrumented)(nil)
	_ Clearer = (*Instrumented)(nil)
)
