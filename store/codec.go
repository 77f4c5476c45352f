package store

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	ignition "github.com/wolfeidau/stat-ignition"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// CompressionThreshold is the minimum payload size before compression is considered.
	// 2KB threshold - zstd overhead not worth it for smaller payloads.
	CompressionThreshold = 2048

	// MaxPayloadSize is the maximum allowed uncompressed payload size.
	MaxPayloadSize = 64 * 1024 * 1024 // 64MB

	// MaxDecompressedSize is the hard cap during decompression to prevent compression bombs.
	MaxDecompressedSize = MaxPayloadSize
)

// Encoding identifies how an encoded payload is compressed.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingZstd     Encoding = "zstd"
)

var (
	// ErrPayloadTooLarge is returned when payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("store: payload exceeds maximum size")

	// ErrDecompressionBomb is returned when decompressed size exceeds limit.
	ErrDecompressionBomb = errors.New("store: decompressed payload exceeds maximum size")

	// ErrCorrupted is returned when payload digest verification fails.
	ErrCorrupted = errors.New("store: payload digest mismatch")
)

// Field numbers of the wire format. An encoded cache is a sequence of entry
// messages; an entry without a stat message is a miss.
const (
	fieldEntry protowire.Number = 1

	fieldEntryPath protowire.Number = 1
	fieldEntryStat protowire.Number = 2

	fieldStatName       protowire.Number = 1
	fieldStatSize       protowire.Number = 2
	fieldStatMode       protowire.Number = 3
	fieldStatModTime    protowire.Number = 4
	fieldStatAccessTime protowire.Number = 5
	fieldStatChangeTime protowire.Number = 6
	fieldStatDev        protowire.Number = 7
	fieldStatIno        protowire.Number = 8
	fieldStatNlink      protowire.Number = 9
	fieldStatUID        protowire.Number = 10
	fieldStatGID        protowire.Number = 11
	fieldStatBlocks     protowire.Number = 12
	fieldStatBlkSize    protowire.Number = 13
)

// Codec encodes whole stat caches with optional compression.
// Encoder and decoder are goroutine-safe and can be reused.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

// NewCodec creates a new codec with pooled zstd encoder/decoder.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{
		encoder: enc,
		decoder: dec,
	}, nil
}

// Close releases encoder/decoder resources.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encoded is the result of encoding a stat cache.
type Encoded struct {
	Payload  []byte
	Encoding Encoding
	// Digest is the BLAKE3 hash of the uncompressed payload.
	Digest ignition.Hash
	// Size is the uncompressed payload size.
	Size    uint64
	Entries int
}

// Encode serialises cache, compressing it when that makes it smaller.
// Entries are written in path order so equal caches encode identically.
func (c *Codec) Encode(cache ignition.StatCache) (*Encoded, error) {
	var data []byte
	for _, path := range cache.Paths() {
		data = protowire.AppendTag(data, fieldEntry, protowire.BytesType)
		data = protowire.AppendBytes(data, appendEntry(nil, path, cache[path]))
	}

	if len(data) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	out := &Encoded{
		Payload:  data,
		Encoding: EncodingIdentity,
		Digest:   ignition.HashBytes(data),
		Size:     uint64(len(data)),
		Entries:  len(cache),
	}

	if len(data) < CompressionThreshold {
		return out, nil
	}

	c.mu.RLock()
	enc := c.encoder
	c.mu.RUnlock()

	if enc == nil {
		return out, nil
	}

	compressed := enc.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return out, nil
	}

	out.Payload = compressed
	out.Encoding = EncodingZstd
	return out, nil
}

// Decode decompresses payload if needed, verifies its digest and parses it.
func (c *Codec) Decode(payload []byte, encoding Encoding, digest ignition.Hash, size uint64) (ignition.StatCache, error) {
	data, err := c.decompress(payload, encoding, size)
	if err != nil {
		return nil, err
	}
	if !digest.IsZero() && !digest.Matches(data) {
		return nil, ErrCorrupted
	}
	return decodeCache(data)
}

func (c *Codec) decompress(payload []byte, encoding Encoding, size uint64) ([]byte, error) {
	switch encoding {
	case EncodingIdentity, "":
		return payload, nil
	case EncodingZstd:
	default:
		return nil, fmt.Errorf("unsupported encoding: %q", encoding)
	}

	if size > MaxDecompressedSize {
		return nil, ErrDecompressionBomb
	}

	c.mu.RLock()
	dec := c.decoder
	c.mu.RUnlock()

	if dec == nil {
		return nil, errors.New("decoder not initialized")
	}

	decompressed, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}

	if uint64(len(decompressed)) > MaxDecompressedSize {
		return nil, ErrDecompressionBomb
	}
	return decompressed, nil
}

func appendEntry(b []byte, path string, entry ignition.StatEntry) []byte {
	b = protowire.AppendTag(b, fieldEntryPath, protowire.BytesType)
	b = protowire.AppendString(b, path)

	st, ok := entry.Stat()
	if !ok {
		return b
	}
	b = protowire.AppendTag(b, fieldEntryStat, protowire.BytesType)
	return protowire.AppendBytes(b, appendStat(nil, st))
}

func appendStat(b []byte, st ignition.FileStat) []byte {
	b = protowire.AppendTag(b, fieldStatName, protowire.BytesType)
	b = protowire.AppendString(b, st.Name)

	varint := func(num protowire.Number, v uint64) {
		if v == 0 {
			return
		}
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	signed := func(num protowire.Number, v int64) {
		varint(num, protowire.EncodeZigZag(v))
	}
	timestamp := func(num protowire.Number, t time.Time) {
		if t.IsZero() {
			return
		}
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixNano()))
	}

	signed(fieldStatSize, st.Size)
	varint(fieldStatMode, uint64(st.Mode))
	timestamp(fieldStatModTime, st.ModTime)
	timestamp(fieldStatAccessTime, st.AccessTime)
	timestamp(fieldStatChangeTime, st.ChangeTime)
	varint(fieldStatDev, st.Dev)
	varint(fieldStatIno, st.Ino)
	varint(fieldStatNlink, st.Nlink)
	varint(fieldStatUID, uint64(st.UID))
	varint(fieldStatGID, uint64(st.GID))
	signed(fieldStatBlocks, st.Blocks)
	signed(fieldStatBlkSize, st.BlkSize)
	return b
}

// walkFields calls fn for every field in b. fn returns the number of bytes it
// consumed from the field value, or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func decodeCache(data []byte) (ignition.StatCache, error) {
	cache := ignition.StatCache{}
	var entryErr error
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num != fieldEntry || typ != protowire.BytesType {
			return 0
		}
		msg, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return n
		}
		path, entry, err := decodeEntry(msg)
		if err != nil {
			entryErr = err
			return -1
		}
		cache[path] = entry
		return n
	})
	if entryErr != nil {
		return nil, fmt.Errorf("decoding entry: %w", entryErr)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding stat cache: %w", err)
	}
	return cache, nil
}

func decodeEntry(msg []byte) (string, ignition.StatEntry, error) {
	var (
		path    string
		hasPath bool
		entry   = ignition.Miss
		statErr error
	)
	err := walkFields(msg, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if typ != protowire.BytesType {
			return 0
		}
		switch num {
		case fieldEntryPath:
			s, n := protowire.ConsumeString(v)
			path, hasPath = s, n >= 0
			return n
		case fieldEntryStat:
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n
			}
			st, err := decodeStat(raw)
			if err != nil {
				statErr = err
				return -1
			}
			entry = ignition.Hit(st)
			return n
		}
		return 0
	})
	if statErr != nil {
		return "", ignition.Miss, statErr
	}
	if err != nil {
		return "", ignition.Miss, err
	}
	// The empty path is a valid key; only a missing field is malformed.
	if !hasPath {
		return "", ignition.Miss, errors.New("entry without path")
	}
	return path, entry, nil
}

func decodeStat(msg []byte) (ignition.FileStat, error) {
	var st ignition.FileStat
	err := walkFields(msg, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num == fieldStatName && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(v)
			st.Name = s
			return n
		}
		if typ != protowire.VarintType {
			return 0
		}
		u, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return n
		}
		s := protowire.DecodeZigZag(u)
		switch num {
		case fieldStatSize:
			st.Size = s
		case fieldStatMode:
			st.Mode = fs.FileMode(u) //nolint:gosec // mode bits are written from an fs.FileMode
		case fieldStatModTime:
			st.ModTime = time.Unix(0, s)
		case fieldStatAccessTime:
			st.AccessTime = time.Unix(0, s)
		case fieldStatChangeTime:
			st.ChangeTime = time.Unix(0, s)
		case fieldStatDev:
			st.Dev = u
		case fieldStatIno:
			st.Ino = u
		case fieldStatNlink:
			st.Nlink = u
		case fieldStatUID:
			st.UID = uint32(u) //nolint:gosec // written from a uint32
		case fieldStatGID:
			st.GID = uint32(u) //nolint:gosec // written from a uint32
		case fieldStatBlocks:
			st.Blocks = s
		case fieldStatBlkSize:
			st.BlkSize = s
		}
		return n
	})
	return st, err
}
