package repo

import (
	"encoding/binary"

	"github.com/hoardstore/hoard/codec"
)

const (
	// BlockMagic opens a block record.
	BlockMagic = "BLOCKHDR"
	// CommitMagic is the lone 8-byte commit marker.
	CommitMagic = "FSYNCEND"

	// BlockHeaderSize is the fixed size, in bytes, of a block record's
	// header (magic + digest + encoding + raw/encoded lengths), not
	// counting its payload.
	BlockHeaderSize = 48

	// CommitRecordSize is the fixed size, in bytes, of a commit record.
	CommitRecordSize = 8

	// MaxBlockSize is the largest payload, in bytes, a single block may
	// hold (spec.md §3, L_max).
	MaxBlockSize = 65535
)

var (
	encodingRaw  = [4]byte{0x00, 0x00, 0x00, 0x00}
	encodingZlib = [4]byte{0x5A, 0x4C, 0x49, 0x42}
)

func encodingBytes(tag codec.Tag) ([4]byte, bool) {
	switch tag {
	case codec.Raw:
		return encodingRaw, true
	case codec.Zlib:
		return encodingZlib, true
	default:
		return [4]byte{}, false
	}
}

func encodingTag(b [4]byte) (codec.Tag, bool) {
	switch b {
	case encodingRaw:
		return codec.Raw, true
	case encodingZlib:
		return codec.Zlib, true
	default:
		return 0, false
	}
}

// blockHeader is the decoded form of a block record's 48-byte header.
type blockHeader struct {
	Digest        [32]byte
	Encoding      codec.Tag
	RawLength     uint16
	EncodedLength uint16
}

func (h blockHeader) encode() []byte {
	buf := make([]byte, BlockHeaderSize)
	copy(buf[0:8], BlockMagic)
	copy(buf[8:40], h.Digest[:])
	tagBytes, _ := encodingBytes(h.Encoding)
	copy(buf[40:44], tagBytes[:])
	binary.BigEndian.PutUint16(buf[44:46], h.RawLength)
	binary.BigEndian.PutUint16(buf[46:48], h.EncodedLength)
	return buf
}

// decodeBlockHeader decodes a 48-byte buffer whose first 8 bytes have
// already been confirmed to equal BlockMagic. Digest and lengths are
// always populated (needed to detect tail corruption and to skip past the
// payload during recovery even for an unrecognized encoding); knownTag is
// false when the encoding tag itself is unrecognized, in which case
// Encoding is the zero value and must not be used to decode the payload.
func decodeBlockHeader(buf []byte) (h blockHeader, knownTag bool) {
	var d [32]byte
	copy(d[:], buf[8:40])
	h = blockHeader{
		Digest:        d,
		RawLength:     binary.BigEndian.Uint16(buf[44:46]),
		EncodedLength: binary.BigEndian.Uint16(buf[46:48]),
	}
	var tagBytes [4]byte
	copy(tagBytes[:], buf[40:44])
	tag, ok := encodingTag(tagBytes)
	if !ok {
		return h, false
	}
	h.Encoding = tag
	return h, true
}
