package interceptor

import (
	"context"
	"os"

	"github.com/spf13/afero"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/telemetry"
)

// file wraps a real open file. Everything but Stat passes straight through.
type file struct {
	afero.File
	path  string
	cache StatCache
}

// Stat answers from the cache keyed by the path the file was opened with.
func (f *file) Stat() (os.FileInfo, error) {
	ctx := context.Background()

	if entry, ok := f.cache.GetCachedStat(f.path); ok {
		telemetry.RecordStatLookup(ctx, "fstat", lookupResult(entry))
		if entry.IsMiss() {
			return nil, &os.PathError{Op: "fstat", Path: f.path, Err: os.ErrNotExist}
		}
		return entry.FileInfo(), nil
	}
	telemetry.RecordStatLookup(ctx, "fstat", telemetry.ResultMiss)

	info, err := f.File.Stat()
	if err != nil {
		f.cache.CacheStat(f.path, ignition.Miss)
		return nil, err
	}
	f.cache.CacheStat(f.path, ignition.Hit(ignition.FileStatFromInfo(info)))
	return info, nil
}
