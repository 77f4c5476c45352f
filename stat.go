// Package ignition holds the value types shared by the stat interception layer:
// the per-path metadata entry, the in-memory stat cache and the digest used to
// verify persisted caches.
package ignition

import (
	"io/fs"
	"maps"
	"slices"
	"time"
)

// FileStat is the metadata recorded for a single path.
//
// Name, Size, Mode and ModTime are always populated. The remaining fields are
// filled when the platform exposes them and are zero otherwise.
type FileStat struct {
	Name       string      `json:"name"`
	Size       int64       `json:"size"`
	Mode       fs.FileMode `json:"mode"`
	ModTime    time.Time   `json:"mod_time"`
	AccessTime time.Time   `json:"access_time,omitzero"`
	ChangeTime time.Time   `json:"change_time,omitzero"`
	Dev        uint64      `json:"dev,omitempty"`
	Ino        uint64      `json:"ino,omitempty"`
	Nlink      uint64      `json:"nlink,omitempty"`
	UID        uint32      `json:"uid,omitempty"`
	GID        uint32      `json:"gid,omitempty"`
	Blocks     int64       `json:"blocks,omitempty"`
	BlkSize    int64       `json:"blksize,omitempty"`
}

// FileStatFromInfo converts the result of a real stat call.
func FileStatFromInfo(info fs.FileInfo) FileStat {
	st := FileStat{
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}
	if cached, ok := info.Sys().(*FileStat); ok {
		return *cached
	}
	fillSysStat(&st, info.Sys())
	return st
}

// StatEntry is the cached outcome of one metadata query. It is either a hit
// carrying a FileStat or a miss recording that the path could not be stat'ed.
// The zero value is a miss.
type StatEntry struct {
	stat *FileStat
}

// Miss is the negative entry: the query failed or the path is inaccessible.
var Miss = StatEntry{}

// Hit returns a positive entry for st.
func Hit(st FileStat) StatEntry {
	return StatEntry{stat: &st}
}

// IsMiss reports whether the entry records a failed query.
func (e StatEntry) IsMiss() bool {
	return e.stat == nil
}

// Stat returns the recorded metadata and true for a hit.
func (e StatEntry) Stat() (FileStat, bool) {
	if e.stat == nil {
		return FileStat{}, false
	}
	return *e.stat, true
}

// FileInfo exposes a hit as an fs.FileInfo. It returns nil for a miss.
func (e StatEntry) FileInfo() fs.FileInfo {
	if e.stat == nil {
		return nil
	}
	return fileInfo{st: *e.stat}
}

// Equal reports whether both entries hold the same outcome.
func (e StatEntry) Equal(other StatEntry) bool {
	if e.stat == nil || other.stat == nil {
		return e.stat == nil && other.stat == nil
	}
	a, b := *e.stat, *other.stat
	return a.Name == b.Name && a.Size == b.Size && a.Mode == b.Mode &&
		a.ModTime.Equal(b.ModTime) && a.AccessTime.Equal(b.AccessTime) &&
		a.ChangeTime.Equal(b.ChangeTime) && a.Dev == b.Dev && a.Ino == b.Ino &&
		a.Nlink == b.Nlink && a.UID == b.UID && a.GID == b.GID &&
		a.Blocks == b.Blocks && a.BlkSize == b.BlkSize
}

// StatCache maps absolute paths to their cached entries. Keys are matched
// exactly and case-sensitively. A StatCache provides no synchronization.
type StatCache map[string]StatEntry

// Clone returns a shallow copy. Entries are immutable so sharing them is safe.
func (c StatCache) Clone() StatCache {
	if c == nil {
		return StatCache{}
	}
	return maps.Clone(c)
}

// Merge copies every entry of other into c, overwriting existing keys.
func (c StatCache) Merge(other StatCache) {
	maps.Copy(c, other)
}

// Paths returns the cached paths in sorted order.
func (c StatCache) Paths() []string {
	return slices.Sorted(maps.Keys(c))
}

// fileInfo adapts a FileStat to fs.FileInfo.
type fileInfo struct {
	st FileStat
}

func (fi fileInfo) Name() string       { return fi.st.Name }
func (fi fileInfo) Size() int64        { return fi.st.Size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.st.Mode }
func (fi fileInfo) ModTime() time.Time { return fi.st.ModTime }
func (fi fileInfo) IsDir() bool        { return fi.st.Mode.IsDir() }
func (fi fileInfo) Sys() any           { return &fi.st }
