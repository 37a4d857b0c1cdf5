package stream

import (
	"encoding/binary"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

const (
	// Magic is the fixed 8-byte magic at the start of every superblock.
	Magic = "SUPERBLK"

	// HeaderSize is the fixed size, in bytes, of a superblock's header.
	HeaderSize = 12

	// Fanout is the maximum number of digests a single superblock may
	// hold.
	Fanout = 1024

	// MaxLevels is the maximum tree height: levels 0 (pointing at data
	// blocks) through MaxLevels-1 are permitted.
	MaxLevels = 24

	// LeafCap is the largest a single leaf (level-0 data) block may grow
	// to before being forced to flush, matching pack/repo's MaxBlockSize.
	LeafCap = 65535

	// LeafFlushMin is the minimum leaf size at which a chunker marker is
	// honored as a split point.
	LeafFlushMin = 4096
)

// BlockWriter is the write half of the byte-store contract (spec.md
// §6.4): write(bytes) -> digest. repo.Repo satisfies it structurally.
type BlockWriter interface {
	Write(p []byte) (digest.Digest, error)
}

// BlockReader is the read half of the byte-store contract (spec.md
// §6.4): read(digest) -> bytes|absent. Both repo.Repo and pack.Collection
// satisfy it structurally, so a superblock tree dumped into a packfile
// collection can still be streamed back out even though the collection
// itself is read-only once built.
type BlockReader interface {
	Read(d digest.Digest) ([]byte, bool, error)
}

// Store is the combined read/write contract; repo.Repo is the only
// in-module type that satisfies it today. Writer needs only a
// BlockWriter and Reader needs only a BlockReader — Store exists for
// callers that want to pass one value satisfying both.
type Store interface {
	BlockWriter
	BlockReader
}

func encodeSuperblock(level uint8, digests []digest.Digest) ([]byte, error) {
	if len(digests) > Fanout {
		return nil, herr.New(herr.IllegalState, "stream.encodeSuperblock", "too many digests for one superblock")
	}
	buf := make([]byte, HeaderSize+len(digests)*digest.Size)
	copy(buf[0:8], Magic)
	buf[8] = level
	buf[9] = 0
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(digests)))
	for i, d := range digests {
		copy(buf[HeaderSize+i*digest.Size:], d[:])
	}
	return buf, nil
}

func decodeSuperblock(buf []byte) (level uint8, digests []digest.Digest, err error) {
	if len(buf) < HeaderSize {
		return 0, nil, herr.New(herr.Format, "stream.decodeSuperblock", "short superblock")
	}
	if string(buf[0:8]) != Magic {
		return 0, nil, herr.New(herr.Format, "stream.decodeSuperblock", "bad magic")
	}
	level = buf[8]
	count := binary.BigEndian.Uint16(buf[10:12])
	if count > Fanout {
		return 0, nil, herr.New(herr.Format, "stream.decodeSuperblock", "count exceeds fanout")
	}
	want := HeaderSize + int(count)*digest.Size
	if len(buf) != want {
		return 0, nil, herr.New(herr.Format, "stream.decodeSuperblock", "length does not match count")
	}
	digests = make([]digest.Digest, count)
	for i := range digests {
		copy(digests[i][:], buf[HeaderSize+i*digest.Size:])
	}
	return level, digests, nil
}
