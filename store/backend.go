package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	ignition "github.com/wolfeidau/stat-ignition"
	"github.com/wolfeidau/stat-ignition/backend"
)

// DefaultKey is the backend key BackendStore writes to.
const DefaultKey = "stat-cache/" + DefaultNamespace

// BackendStore persists the encoded cache as a single framed blob.
type BackendStore struct {
	backend  backend.Backend
	codec    *Codec
	key      string
	writerID string
	now      func() time.Time
}

// BackendOption configures a BackendStore.
type BackendOption func(*BackendStore)

// WithKey sets the backend key the blob is written to.
func WithKey(key string) BackendOption {
	return func(s *BackendStore) {
		s.key = key
	}
}

// WithWriterID sets the id recorded in each blob header. Defaults to a random UUID.
func WithWriterID(id string) BackendOption {
	return func(s *BackendStore) {
		s.writerID = id
	}
}

// WithClock overrides the time recorded in blob headers.
func WithClock(now func() time.Time) BackendOption {
	return func(s *BackendStore) {
		s.now = now
	}
}

// NewBackendStore creates a store writing to b.
func NewBackendStore(b backend.Backend, codec *Codec, opts ...BackendOption) *BackendStore {
	s := &BackendStore{
		backend:  b,
		codec:    codec,
		key:      DefaultKey,
		writerID: uuid.NewString(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSupported probes the backend. A backend that cannot answer Exists is unusable.
func (s *BackendStore) IsSupported(ctx context.Context) bool {
	_, err := s.backend.Exists(ctx, s.key)
	return err == nil
}

// FetchStatCache implements Store.
func (s *BackendStore) FetchStatCache(ctx context.Context) (ignition.StatCache, error) {
	rc, err := s.backend.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", s.key, err)
	}
	defer func() { _ = rc.Close() }()

	header, body, err := backend.ReadFramed(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.key, err)
	}

	payload, err := io.ReadAll(io.LimitReader(body, MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s payload: %w", s.key, err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	digest, err := ignition.ParseDigest(header.Digest)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.key, err)
	}

	cache, err := s.codec.Decode(payload, Encoding(header.Encoding), digest, header.PayloadSize)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.key, err)
	}
	return cache, nil
}

// SaveStatCache implements Store.
func (s *BackendStore) SaveStatCache(ctx context.Context, cache ignition.StatCache) error {
	enc, err := s.codec.Encode(cache)
	if err != nil {
		return fmt.Errorf("encoding stat cache: %w", err)
	}

	header := &backend.BlobHeader{
		Encoding:    string(enc.Encoding),
		Entries:     enc.Entries,
		PayloadSize: enc.Size,
		Digest:      enc.Digest.Digest(),
		SavedAt:     s.now().UTC(),
		WriterID:    s.writerID,
	}

	var buf bytes.Buffer
	if err := backend.WriteFramed(&buf, header, bytes.NewReader(enc.Payload)); err != nil {
		return fmt.Errorf("framing stat cache: %w", err)
	}

	if err := s.backend.Write(ctx, s.key, &buf); err != nil {
		return fmt.Errorf("writing %s: %w", s.key, err)
	}
	return nil
}

// ClearStatCache implements Clearer.
func (s *BackendStore) ClearStatCache(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("deleting %s: %w", s.key, err)
	}
	return nil
}

var (
	_ Store   = (*BackendStore)(nil)
	_ Clearer = (*BackendStore)(nil)
)
