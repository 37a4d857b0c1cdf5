package pack

import (
	"os"
	"sort"

	"github.com/hoardstore/hoard/codec"
	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

// defaultCompressionLevel is the flate level used when accumulating blocks
// if the caller does not pick one explicitly. This is an implementation
// choice, not a wire constant.
const defaultCompressionLevel = 6

type writerEntry struct {
	encoding      codec.Tag
	rawLength     int32
	payload       []byte // encoded bytes
	payloadOffset int64  // assigned at dump time
}

// Writer accumulates deduplicated blocks in memory, grounded on
// registry/storage/blobwriter.go's digest-first dedup-then-commit shape:
// a write is hashed before anything is buffered, and a digest already seen
// short-circuits without touching the backing accumulator again.
//
// Writer is single-threaded; callers needing concurrent writes must
// synchronize externally (spec.md §5).
type Writer struct {
	order            []digest.Digest
	entries          map[digest.Digest]*writerEntry
	compressionLevel int
}

// New returns an empty Writer using the default compression level.
func New() *Writer {
	return NewWithLevel(defaultCompressionLevel)
}

// NewWithLevel returns an empty Writer that compresses at the given flate
// level (see config.Compression.Level).
func NewWithLevel(level int) *Writer {
	return &Writer{entries: make(map[digest.Digest]*writerEntry), compressionLevel: level}
}

// Write computes the digest of p, deduplicates against blocks already
// accumulated, and otherwise records p (compressed if worthwhile) for the
// next Dump. p must be no larger than MaxBlockSize.
func (w *Writer) Write(p []byte) (digest.Digest, error) {
	if err := validateBlockLength(len(p)); err != nil {
		return digest.Digest{}, err
	}
	d := digest.Sum(p)
	if _, ok := w.entries[d]; ok {
		return d, nil
	}

	res, err := codec.Encode(w.compressionLevel, p)
	if err != nil {
		return digest.Digest{}, herr.Wrap(herr.IO, "pack.Writer.Write", err)
	}

	w.entries[d] = &writerEntry{
		encoding:  res.Tag,
		rawLength: int32(len(p)),
		payload:   res.Encoded,
	}
	w.order = append(w.order, d)
	return d, nil
}

// Len returns the number of distinct blocks accumulated so far.
func (w *Writer) Len() int {
	return len(w.order)
}

// Dump serializes the accumulated blocks to a new file at path, per the
// layout in spec.md §6.1. It fails if path already exists (create-new
// semantics; packfiles are never overwritten in place).
func (w *Writer) Dump(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return herr.Wrap(herr.IllegalState, "pack.Writer.Dump", err)
		}
		return herr.Wrap(herr.IO, "pack.Writer.Dump", err)
	}
	defer f.Close()

	sorted := make([]digest.Digest, len(w.order))
	copy(sorted, w.order)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	// Assign dense, sequential payload offsets in insertion order, per
	// spec.md §4.5 step 3 ("payload offsets are assigned sequentially at
	// write-time and are dense"); the order payloads are physically
	// written in need not match the sorted block-table order.
	var offset int64
	for _, d := range w.order {
		e := w.entries[d]
		e.payloadOffset = offset
		offset += int64(len(e.payload))
	}

	blocktableStart := roundUp64(int64(HeaderSize) + offset)

	hdr := header{BlocktableStart: blocktableStart, BlocktableLength: int32(len(sorted))}
	if _, err := f.Write(hdr.encode()); err != nil {
		return herr.Wrap(herr.IO, "pack.Writer.Dump", err)
	}

	for _, d := range w.order {
		if _, err := f.Write(w.entries[d].payload); err != nil {
			return herr.Wrap(herr.IO, "pack.Writer.Dump", err)
		}
	}

	padding := blocktableStart - (int64(HeaderSize) + offset)
	if padding > 0 {
		if _, err := f.Write(make([]byte, padding)); err != nil {
			return herr.Wrap(herr.IO, "pack.Writer.Dump", err)
		}
	}

	for _, d := range sorted {
		e := w.entries[d]
		rec := entry{
			Digest:        d,
			Encoding:      e.encoding,
			RawLength:     e.rawLength,
			EncodedLength: int32(len(e.payload)),
			PayloadOffset: e.payloadOffset,
		}
		encoded, err := rec.encode()
		if err != nil {
			return err
		}
		if _, err := f.Write(encoded); err != nil {
			return herr.Wrap(herr.IO, "pack.Writer.Dump", err)
		}
	}

	return f.Sync()
}
