// Package boltstore persists stat caches in a bbolt database so that every
// process on the host sharing the database file sees the same cache.
package boltstore

import "time"

// SaveRecord describes the most recent save of one namespace.
type SaveRecord struct {
	Namespace string    `json:"namespace"`
	SavedAt   time.Time `json:"saved_at"`
	Entries   int       `json:"entries"`
	Size      int       `json:"size"`
	Digest    string    `json:"digest"`
	WriterID  string    `json:"writer_id"`
}
