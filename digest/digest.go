// Package digest implements the hash codec (C1): a fixed-width content
// digest, lexicographic ordering, and hex encode/decode.
package digest

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Size is the fixed length, in bytes, of a Digest.
const Size = 32

// Digest is the opaque 256-bit identity of a block's contents. Equality is
// bytewise; ordering is unsigned lexicographic.
type Digest [Size]byte

// ErrInvalidLength is returned by Parse when the input is not an even
// number of hex nibbles, or decodes to a length other than Size bytes.
var ErrInvalidLength = fmt.Errorf("digest: hex string must decode to %d bytes", Size)

// Sum computes the digest of p.
func Sum(p []byte) Digest {
	return Digest(sha3.Sum256(p))
}

// Compare returns -1, 0 or 1 as d is less than, equal to, or greater than
// other, using unsigned lexicographic ordering.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// IsZero reports whether d is the zero digest (no block hashes to this by
// construction, but it is a convenient sentinel for "unset").
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the lowercase hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Parse decodes a hex string into a Digest. Both uppercase and lowercase
// nibbles are accepted; the input must have an even length and decode to
// exactly Size bytes.
func Parse(s string) (Digest, error) {
	if len(s)%2 != 0 {
		return Digest{}, ErrInvalidLength
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: %w", err)
	}
	if len(b) != Size {
		return Digest{}, ErrInvalidLength
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

// Less reports whether d sorts strictly before other. Convenience wrapper
// around Compare for use with sort.Slice.
func (d Digest) Less(other Digest) bool {
	return d.Compare(other) < 0
}
