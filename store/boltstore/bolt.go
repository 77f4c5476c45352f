package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/backend"
	"github.com/wolfeidau/stat-ignition/store"
	"go.etcd.io/bbolt"
)

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("boltstore: database closed")

// Store implements store.Store using bbolt.
type Store struct {
	db        *bbolt.DB
	codec     *store.Codec
	logger    *slog.Logger
	now       func() time.Time
	namespace string
	writerID  string
	timeout   time.Duration
	noSync    bool // disables fsync per transaction (for testing only)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// WithNamespace sets the key the cache is saved under.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// WithTimeout sets how long Open waits for the file lock held by another process.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// WithWriterID sets the id recorded with each save. Defaults to a random UUID.
func WithWriterID(id string) Option {
	return func(s *Store) {
		s.writerID = id
	}
}

// Open opens the database at the given path, creating it if needed.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:    slog.Default(),
		now:       time.Now,
		namespace: store.DefaultNamespace,
		writerID:  uuid.NewString(),
		timeout:   time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: s.timeout,
		NoSync:  s.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.createBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	codec, err := store.NewCodec()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating codec: %w", err)
	}
	s.codec = codec

	s.logger.Debug("opened stat cache database", "path", path, "namespace", s.namespace, "noSync", s.noSync)
	return s, nil
}

func (s *Store) createBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketStatCache,
			bucketStatCacheMeta,
			bucketSavesByTime,
			bucketSaveTimeByNspace,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database and releases resources.
func (s *Store) Close() error {
	if s.codec != nil {
		s.codec.Close()
		s.codec = nil
	}
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing stat cache database")
	err := s.db.Close()
	s.db = nil
	return err
}

// Namespace returns the namespace this store reads and writes.
func (s *Store) Namespace() string {
	return s.namespace
}

// IsSupported reports whether the database is open.
func (s *Store) IsSupported(context.Context) bool {
	return s.db != nil
}

// FetchStatCache implements store.Store.
func (s *Store) FetchStatCache(_ context.Context) (ignition.StatCache, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketStatCache).Get([]byte(s.namespace))
		if val == nil {
			return store.ErrNotFound
		}
		raw = bytes.Clone(val)
		return nil
	})
	if err != nil {
		return nil, err
	}

	header, body, err := backend.ReadFramed(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading namespace %s: %w", s.namespace, err)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading namespace %s: %w", s.namespace, err)
	}
	digest, err := ignition.ParseDigest(header.Digest)
	if err != nil {
		return nil, fmt.Errorf("reading namespace %s: %w", s.namespace, err)
	}

	cache, err := s.codec.Decode(payload, store.Encoding(header.Encoding), digest, header.PayloadSize)
	if err != nil {
		return nil, fmt.Errorf("decoding namespace %s: %w", s.namespace, err)
	}
	return cache, nil
}

// SaveStatCache implements store.Store. The blob, its save record and the
// save time index are replaced in a single transaction.
func (s *Store) SaveStatCache(_ context.Context, cache ignition.StatCache) error {
	if s.db == nil {
		return ErrClosed
	}

	enc, err := s.codec.Encode(cache)
	if err != nil {
		return fmt.Errorf("encoding stat cache: %w", err)
	}

	record := SaveRecord{
		Namespace: s.namespace,
		SavedAt:   s.now().UTC(),
		Entries:   enc.Entries,
		Digest:    enc.Digest.Digest(),
		WriterID:  s.writerID,
	}

	var buf bytes.Buffer
	header := &backend.BlobHeader{
		Encoding:    string(enc.Encoding),
		Entries:     enc.Entries,
		PayloadSize: enc.Size,
		Digest:      record.Digest,
		SavedAt:     record.SavedAt,
		WriterID:    record.WriterID,
	}
	if err := backend.WriteFramed(&buf, header, bytes.NewReader(enc.Payload)); err != nil {
		return fmt.Errorf("framing stat cache: %w", err)
	}
	record.Size = buf.Len()

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling save record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(s.namespace)
		if err := tx.Bucket(bucketStatCache).Put(key, buf.Bytes()); err != nil {
			return fmt.Errorf("putting stat cache: %w", err)
		}
		if err := tx.Bucket(bucketStatCacheMeta).Put(key, recordBytes); err != nil {
			return fmt.Errorf("putting save record: %w", err)
		}
		return s.updateSaveTimeIndex(tx, s.namespace, &record.SavedAt)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved stat cache",
		"namespace", s.namespace,
		"entries", record.Entries,
		"size", record.Size,
		"encoding", enc.Encoding,
	)
	return nil
}

// ClearStatCache implements store.Clearer.
func (s *Store) ClearStatCache(_ context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(s.namespace)
		if err := tx.Bucket(bucketStatCache).Delete(key); err != nil {
			return fmt.Errorf("deleting stat cache: %w", err)
		}
		if err := tx.Bucket(bucketStatCacheMeta).Delete(key); err != nil {
			return fmt.Errorf("deleting save record: %w", err)
		}
		return s.updateSaveTimeIndex(tx, s.namespace, nil)
	})
}

// LastSave returns the record of the most recent save of this namespace.
// Returns store.ErrNotFound if it was never saved.
func (s *Store) LastSave(_ context.Context) (*SaveRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var record SaveRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketStatCacheMeta).Get([]byte(s.namespace))
		if val == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Saves returns the save records of every namespace in the database, least
// recently saved first.
func (s *Store) Saves(_ context.Context) ([]SaveRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var records []SaveRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketStatCacheMeta)
		return tx.Bucket(bucketSavesByTime).ForEach(func(_, namespace []byte) error {
			val := meta.Get(namespace)
			if val == nil {
				return nil
			}
			var record SaveRecord
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("parsing save record %s: %w", namespace, err)
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}

// updateSaveTimeIndex updates the save time forward+reverse indexes.
// If savedAt is nil, only deletes existing index entries.
func (s *Store) updateSaveTimeIndex(tx *bbolt.Tx, namespace string, savedAt *time.Time) error {
	byTime := tx.Bucket(bucketSavesByTime)
	byNamespace := tx.Bucket(bucketSaveTimeByNspace)
	key := []byte(namespace)

	if old := byNamespace.Get(key); old != nil {
		if err := byTime.Delete(makeSaveTimeKey(decodeTimestamp(old), namespace)); err != nil {
			return fmt.Errorf("deleting save time index: %w", err)
		}
		if err := byNamespace.Delete(key); err != nil {
			return fmt.Errorf("deleting save time reverse index: %w", err)
		}
	}

	if savedAt == nil {
		return nil
	}
	if err := byTime.Put(makeSaveTimeKey(*savedAt, namespace), key); err != nil {
		return fmt.Errorf("putting save time index: %w", err)
	}
	if err := byNamespace.Put(key, encodeTimestamp(*savedAt)); err != nil {
		return fmt.Errorf("putting save time reverse index: %w", err)
	}
	return nil
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Clearer = (*Store)(nil)
)
