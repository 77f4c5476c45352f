package ignition

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

const digestAlgorithm = "blake3"

// ErrInvalidDigest is returned by ParseDigest for malformed input.
var ErrInvalidDigest = errors.New("invalid digest")

// Hash is the BLAKE3-256 digest of an encoded stat cache. It is stored next
// to the payload and checked before the payload is decoded.
type Hash [32]byte

// HashBytes digests data.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// Matches reports whether data digests to h.
func (h Hash) Matches(data []byte) bool {
	return HashBytes(data) == h
}

// IsZero reports whether h was never set.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Digest returns "blake3:<hex>", the form written to headers and records.
func (h Hash) Digest() string {
	return digestAlgorithm + ":" + h.String()
}

// ParseDigest parses the output of Digest.
func ParseDigest(s string) (Hash, error) {
	algorithm, encoded, ok := strings.Cut(s, ":")
	if !ok || algorithm != digestAlgorithm {
		return Hash{}, fmt.Errorf("%w %q: want %s:<hex>", ErrInvalidDigest, s, digestAlgorithm)
	}

	var h Hash
	if hex.DecodedLen(len(encoded)) != len(h) {
		return Hash{}, fmt.Errorf("%w %q: want %d hex characters", ErrInvalidDigest, s, hex.EncodedLen(len(h)))
	}
	if _, err := hex.Decode(h[:], []byte(encoded)); err != nil {
		return Hash{}, fmt.Errorf("%w %q: %w", ErrInvalidDigest, s, err)
	}
	return h, nil
}
