// Package pack implements the packfile format and codec (C4, C5, C6):
// an immutable, self-describing container bundling deduplicated blocks,
// their metadata, and a sorted index enabling binary-search lookup by
// digest. The on-disk layout is fixed bit-exactly by spec.md §6.1.
package pack

import (
	"encoding/binary"
	"fmt"

	"github.com/hoardstore/hoard/codec"
	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

const (
	// HeaderMagic is the fixed 8-byte magic at the start of every packfile.
	HeaderMagic = "Hoard v1"

	// HeaderSize is the fixed size, in bytes, of the packfile header.
	HeaderSize = 64

	// EntrySize is the fixed size, in bytes, of a block-table entry.
	EntrySize = 64

	// MaxBlockSize is the largest payload, in bytes, a single block may
	// hold (spec.md §3, L_max).
	MaxBlockSize = 65535

	// alignment is the boundary the data area is zero-padded to before the
	// block table begins.
	alignment = 64
)

var (
	encodingRaw  = [8]byte{}
	encodingZlib = [8]byte{0, 0, 0, 0, 0x5A, 0x4C, 0x49, 0x42}
)

func encodingBytes(tag codec.Tag) ([8]byte, error) {
	switch tag {
	case codec.Raw:
		return encodingRaw, nil
	case codec.Zlib:
		return encodingZlib, nil
	default:
		return [8]byte{}, herr.New(herr.IllegalState, "pack.encodingBytes", "unknown encoding tag")
	}
}

func encodingTag(b [8]byte) (codec.Tag, bool) {
	switch b {
	case encodingRaw:
		return codec.Raw, true
	case encodingZlib:
		return codec.Zlib, true
	default:
		return 0, false
	}
}

// header is the decoded form of the packfile's fixed 64-byte header.
type header struct {
	BlocktableStart  int64
	BlocktableLength int32
}

func (h header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], HeaderMagic)
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.BlocktableStart))
	binary.BigEndian.PutUint32(buf[16:20], uint32(h.BlocktableLength))
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) != HeaderSize {
		return header{}, herr.New(herr.Format, "pack.decodeHeader", "short header")
	}
	if string(buf[0:8]) != HeaderMagic {
		return header{}, herr.New(herr.Format, "pack.decodeHeader", "bad magic")
	}
	start := int64(binary.BigEndian.Uint64(buf[8:16]))
	length := int32(binary.BigEndian.Uint32(buf[16:20]))
	if start < 0 {
		return header{}, herr.New(herr.Format, "pack.decodeHeader", "negative blocktable_start")
	}
	if length < 0 {
		return header{}, herr.New(herr.Format, "pack.decodeHeader", "negative blocktable_length")
	}
	return header{BlocktableStart: start, BlocktableLength: length}, nil
}

// entry is the decoded form of a 64-byte block-table entry.
type entry struct {
	Digest        digest.Digest
	Encoding      codec.Tag
	RawLength     int32
	EncodedLength int32
	PayloadOffset int64
}

func (e entry) encode() ([]byte, error) {
	if e.EncodedLength > e.RawLength {
		return nil, herr.New(herr.IllegalState, "pack.entry.encode", "encoded_length exceeds raw_length")
	}
	if e.PayloadOffset < 0 {
		return nil, herr.New(herr.IllegalState, "pack.entry.encode", "negative payload_offset")
	}
	tagBytes, err := encodingBytes(e.Encoding)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, EntrySize)
	copy(buf[0:32], e.Digest[:])
	copy(buf[32:40], tagBytes[:])
	binary.BigEndian.PutUint32(buf[40:44], uint32(e.RawLength))
	binary.BigEndian.PutUint32(buf[44:48], uint32(e.EncodedLength))
	binary.BigEndian.PutUint64(buf[48:56], uint64(e.PayloadOffset))
	return buf, nil
}

// decodeEntry decodes a 64-byte block-table record. ok is false (with a
// nil error) when the entry's encoding tag is unrecognized: spec.md §3
// requires such entries to be skipped rather than treated as fatal. The
// digest occupies a fixed position independent of the encoding tag, so it
// is always populated, even when ok is false — binary search only ever
// needs the digest to keep probing past an entry it cannot otherwise
// decode.
func decodeEntry(buf []byte) (e entry, ok bool, err error) {
	if len(buf) != EntrySize {
		return entry{}, false, herr.New(herr.Format, "pack.decodeEntry", "short entry")
	}
	var d digest.Digest
	copy(d[:], buf[0:32])

	var tagBytes [8]byte
	copy(tagBytes[:], buf[32:40])
	tag, known := encodingTag(tagBytes)
	if !known {
		return entry{Digest: d}, false, nil
	}
	e = entry{
		Digest:        d,
		Encoding:      tag,
		RawLength:     int32(binary.BigEndian.Uint32(buf[40:44])),
		EncodedLength: int32(binary.BigEndian.Uint32(buf[44:48])),
		PayloadOffset: int64(binary.BigEndian.Uint64(buf[48:56])),
	}
	if e.EncodedLength > e.RawLength {
		return entry{Digest: d}, false, herr.New(herr.Format, "pack.decodeEntry", "encoded_length exceeds raw_length")
	}
	if e.PayloadOffset < 0 {
		return entry{Digest: d}, false, herr.New(herr.Format, "pack.decodeEntry", "negative payload_offset")
	}
	return e, true, nil
}

// roundUp64 rounds n up to the next multiple of 64. Per spec.md §9's
// resolved Open Question, this logic is used uniformly for both 32- and
// 64-bit sizes.
func roundUp64(n int64) int64 {
	return (n + 63) &^ 63
}

// Entry is the exported, read-only view of a block-table entry returned
// by Reader.Enumerate.
type Entry struct {
	Digest        digest.Digest
	Encoding      codec.Tag
	RawLength     int32
	EncodedLength int32
	PayloadOffset int64
}

func (e entry) export() Entry {
	return Entry(e)
}

func validateBlockLength(n int) error {
	if n > MaxBlockSize {
		return herr.New(herr.IllegalState, "pack", fmt.Sprintf("block of %d bytes exceeds max block size %d", n, MaxBlockSize))
	}
	return nil
}
