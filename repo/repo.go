// Package repo implements the append-only single-file repository (C7):
// an alternative to packfiles in which blocks are appended as they arrive
// and durability is marked by explicit commit records, with corrupt tails
// truncated on writable open. Grounded on
// registry/storage/driver/filesystem/driver.go's single-root, single-owner
// file-store model, generalized from many path-keyed blobs to one
// growable file plus an in-memory digest index (package index).
package repo

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hoardstore/hoard/codec"
	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
	"github.com/hoardstore/hoard/index"
)

// defaultCompressionLevel is the flate level used when appending blocks
// unless OpenWithCompressionLevel overrides it. An implementation choice,
// not a wire constant.
const defaultCompressionLevel = 6

type state int

const (
	stateOpen state = iota
	stateClosed
)

// Repo is a single append-only file of blocks, durability-marked by commit
// records. A single mutex serializes every public operation: read, write,
// sync and close are mutually exclusive, matching spec.md §5.
type Repo struct {
	mu sync.Mutex

	f        *os.File
	writable bool
	st       state

	idx              *index.Index // digest -> record start offset
	lastCommitOffset int64

	compressionLevel int

	log *logrus.Entry
}

// Open opens path, running the recovery scan described in spec.md §4.7.
// When writable, any trailing uncommitted bytes are truncated away and
// the file is left positioned at the end of its last committed segment.
// Equivalent to OpenWithCompressionLevel(path, writable, defaultCompressionLevel).
func Open(path string, writable bool) (*Repo, error) {
	return OpenWithCompressionLevel(path, writable, defaultCompressionLevel)
}

// OpenWithCompressionLevel is Open with the flate level used for newly
// appended blocks overridden, letting callers thread a config.Config
// tunable through to the codec without changing the on-disk format.
func OpenWithCompressionLevel(path string, writable bool, compressionLevel int) (*Repo, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herr.Wrap(herr.NotFound, "repo.Open", err)
		}
		return nil, herr.Wrap(herr.IO, "repo.Open", err)
	}

	r := &Repo{
		f:                f,
		writable:         writable,
		idx:              index.New(),
		compressionLevel: compressionLevel,
		log:              logrus.WithField("component", "repo").WithField("path", path),
	}

	if err := r.recover(); err != nil {
		f.Close()
		return nil, err
	}

	if writable {
		if err := f.Truncate(r.lastCommitOffset); err != nil {
			f.Close()
			return nil, herr.Wrap(herr.IO, "repo.Open", err)
		}
		if _, err := f.Seek(r.lastCommitOffset, io.SeekStart); err != nil {
			f.Close()
			return nil, herr.Wrap(herr.IO, "repo.Open", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, herr.Wrap(herr.IO, "repo.Open", err)
		}
	}

	return r, nil
}

type pendingEntry struct {
	digest    digest.Digest
	recordPos int64
}

// recover scans the file from offset 0, committing pending block entries
// into r.idx whenever a commit record is observed, and stopping at the
// first sign of tail corruption or an unrecognized record, per spec.md
// §4.7.
func (r *Repo) recover() error {
	var pos int64
	var pending []pendingEntry

	magic := make([]byte, 8)
	for {
		n, err := r.f.ReadAt(magic, pos)
		if n < 8 {
			if err != nil && err != io.EOF {
				return herr.Wrap(herr.IO, "repo.recover", err)
			}
			break
		}

		switch string(magic) {
		case CommitMagic:
			for _, p := range pending {
				r.idx.Insert(p.digest, uint64(p.recordPos))
			}
			pending = pending[:0]
			pos += CommitRecordSize
			r.lastCommitOffset = pos

		case BlockMagic:
			rest := make([]byte, BlockHeaderSize-8)
			nr, err := r.f.ReadAt(rest, pos+8)
			if nr < len(rest) {
				if err != nil && err != io.EOF {
					return herr.Wrap(herr.IO, "repo.recover", err)
				}
				return nil // short header: tail corruption, stop scanning
			}
			full := append(append([]byte{}, magic...), rest...)
			hdr, knownTag := decodeBlockHeader(full)
			if hdr.RawLength < hdr.EncodedLength {
				return nil // corrupt tail per spec.md §4.7: stop scanning
			}
			recordPos := pos
			payloadPos := pos + BlockHeaderSize
			if knownTag {
				var d digest.Digest
				copy(d[:], hdr.Digest[:])
				pending = append(pending, pendingEntry{digest: d, recordPos: recordPos})
			}
			// Unknown encoding is skipped without recording, but scanning
			// still advances past header+payload exactly as for a known
			// encoding (spec.md §4.7).
			pos = payloadPos + int64(hdr.EncodedLength)

		default:
			return nil // unrecognized magic: stop scanning
		}
	}
	return nil
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Write hashes p, deduplicates against the index, and otherwise appends a
// new block record. Fails if p exceeds MaxBlockSize.
func (r *Repo) Write(p []byte) (digest.Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st == stateClosed {
		return digest.Digest{}, herr.New(herr.IllegalState, "repo.Write", "repository is closed")
	}
	if !r.writable {
		return digest.Digest{}, herr.New(herr.IllegalState, "repo.Write", "repository is read-only")
	}
	if len(p) > MaxBlockSize {
		return digest.Digest{}, herr.New(herr.IllegalState, "repo.Write", "block exceeds max block size")
	}

	d := digest.Sum(p)
	if _, ok := r.idx.Lookup(d); ok {
		return d, nil
	}

	res, err := codec.Encode(r.compressionLevel, p)
	if err != nil {
		return digest.Digest{}, herr.Wrap(herr.IO, "repo.Write", err)
	}

	pos, err := r.f.Seek(0, io.SeekEnd)
	if err != nil {
		r.fail()
		return digest.Digest{}, herr.Wrap(herr.IO, "repo.Write", err)
	}

	hdr := blockHeader{
		Digest:        d,
		Encoding:      res.Tag,
		RawLength:     uint16(len(p)),
		EncodedLength: uint16(len(res.Encoded)),
	}
	record := append(hdr.encode(), res.Encoded...)
	if err := writeFull(r.f, record); err != nil {
		r.fail()
		return digest.Digest{}, herr.Wrap(herr.IO, "repo.Write", err)
	}

	r.idx.Insert(d, uint64(pos))
	return d, nil
}

// fail transitions the repository to Closed after an IO failure mid-write,
// per spec.md §4.7 ("the repository is indeterminate").
func (r *Repo) fail() {
	r.log.Warn("closing repository after IO failure during write")
	r.f.Close()
	r.st = stateClosed
}

// Sync marks everything written so far as durable by appending a commit
// record and forcing it to storage. A no-op if nothing has been written
// since the last Sync.
func (r *Repo) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st == stateClosed {
		return herr.New(herr.IllegalState, "repo.Sync", "repository is closed")
	}
	if !r.writable {
		return herr.New(herr.IllegalState, "repo.Sync", "repository is read-only")
	}

	pos, err := r.f.Seek(0, io.SeekEnd)
	if err != nil {
		return herr.Wrap(herr.IO, "repo.Sync", err)
	}
	if pos == r.lastCommitOffset {
		return nil
	}

	if err := writeFull(r.f, []byte(CommitMagic)); err != nil {
		r.fail()
		return herr.Wrap(herr.IO, "repo.Sync", err)
	}
	if err := r.f.Sync(); err != nil {
		r.fail()
		return herr.Wrap(herr.IO, "repo.Sync", err)
	}
	r.lastCommitOffset = pos + CommitRecordSize
	return nil
}

// Read looks up d and, if present, fetches and decodes its payload. A
// missing digest returns (nil, false, nil); a malformed or unknown
// encoding is a recoverable NotDecodable error (the repository stays
// open).
func (r *Repo) Read(d digest.Digest) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st == stateClosed {
		return nil, false, herr.New(herr.IllegalState, "repo.Read", "repository is closed")
	}

	recordPos, ok := r.idx.Lookup(d)
	if !ok {
		return nil, false, nil
	}

	hdrBuf := make([]byte, BlockHeaderSize)
	if _, err := r.f.ReadAt(hdrBuf, int64(recordPos)); err != nil {
		return nil, false, herr.Wrap(herr.IO, "repo.Read", err)
	}
	hdr, known := decodeBlockHeader(hdrBuf)
	if !known {
		return nil, false, herr.New(herr.NotDecodable, "repo.Read", "unknown encoding tag")
	}

	payload := make([]byte, hdr.EncodedLength)
	payloadPos := int64(recordPos) + BlockHeaderSize
	if _, err := r.f.ReadAt(payload, payloadPos); err != nil {
		return nil, false, herr.Wrap(herr.IO, "repo.Read", err)
	}

	out, err := codec.Decode(hdr.Encoding, payload, int(hdr.RawLength))
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Len returns the number of distinct blocks currently indexed.
func (r *Repo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx.Len()
}

// LastCommitOffset returns the file offset through which data is durable.
func (r *Repo) LastCommitOffset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCommitOffset
}

// Close releases the underlying file handle. A Repo must be closed
// exactly once.
func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == stateClosed {
		return herr.New(herr.IllegalState, "repo.Close", "already closed")
	}
	r.st = stateClosed
	return r.f.Close()
}
