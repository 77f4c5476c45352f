package boltstore

import (
	"encoding/binary"
	"time"
)

// Bucket names for bbolt storage.
var (
	bucketStatCache     = []byte("stat_cache")      // namespace -> framed encoded cache
	bucketStatCacheMeta = []byte("stat_cache_meta") // namespace -> SaveRecord JSON

	// Save time index, used to list namespaces oldest first.
	bucketSavesByTime      = []byte("saves_by_time")       // timestamp+namespace -> namespace
	bucketSaveTimeByNspace = []byte("save_time_by_nspace") // namespace -> 8-byte timestamp (reverse index for O(1) delete)
)

// encodeTimestamp converts a time.Time to a fixed-width big-endian byte slice.
// This ensures correct lexicographic ordering for time-based indexes.
// Uses an offset to handle negative nanosecond values (pre-1970 dates).
func encodeTimestamp(t time.Time) []byte {
	buf := make([]byte, 8)
	ns := t.UnixNano()
	binary.BigEndian.PutUint64(buf, uint64(ns-(-1<<63))) //nolint:gosec // intentional signed->unsigned shift
	return buf
}

// decodeTimestamp converts a big-endian byte slice back to time.Time.
func decodeTimestamp(b []byte) time.Time {
	if len(b) < 8 {
		return time.Time{}
	}
	u := binary.BigEndian.Uint64(b[:8])
	ns := int64(u) + (-1 << 63) //nolint:gosec // intentional unsigned->signed shift
	return time.Unix(0, ns).UTC()
}

// makeSaveTimeKey creates a key for the saves_by_time index.
// Format: [8-byte timestamp][namespace]
func makeSaveTimeKey(savedAt time.Time, namespace string) []byte {
	key := make([]byte, 8+len(namespace))
	copy(key[:8], encodeTimestamp(savedAt))
	copy(key[8:], namespace)
	return key
}
