// Package codec implements the compression codec (C2): a predictability
// probe that decides whether DEFLATE-equivalent compression is worth
// attempting, and a fallback-to-raw encode/decode pair.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/hoardstore/hoard/herr"
)

// Tag identifies the payload encoding of a stored block.
type Tag uint8

const (
	// Raw means the payload is stored byte-for-byte.
	Raw Tag = iota
	// Zlib means the payload was DEFLATE-compressed.
	Zlib
)

// PredictabilityThreshold is the minimum hit ratio of the order-1 probe
// below which compression is not attempted at all. Defaults to the value
// fixed by spec.md §4.2; the CLI sets it from
// config.Compression.PredictabilityThreshold as a pure performance tunable,
// never changing the wire format.
var PredictabilityThreshold = 0.20

// predictable runs an order-1 predictability probe over p: walking the
// input while keeping a table of the byte that last followed each context
// byte, counting how often the prediction was right. Returns true when the
// hit ratio is at or above PredictabilityThreshold.
func predictable(p []byte) bool {
	if len(p) < 2 {
		return false
	}
	var prediction [256]byte
	var seen [256]bool
	var hits, total int
	ctx := p[0]
	for _, b := range p[1:] {
		if seen[ctx] {
			total++
			if prediction[ctx] == b {
				hits++
			}
		}
		prediction[ctx] = b
		seen[ctx] = true
		ctx = b
	}
	if total == 0 {
		return false
	}
	return float64(hits)/float64(total) >= PredictabilityThreshold
}

// Result describes the outcome of Encode.
type Result struct {
	Tag     Tag
	Encoded []byte
}

// Encode compresses input at the given flate level, falling back to a raw
// copy when the predictability probe fails, the encoder cannot improve on
// the raw size, or the encoder errors.
func Encode(level int, input []byte) (Result, error) {
	if !predictable(input) {
		return Result{Tag: Raw, Encoded: input}, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return Result{Tag: Raw, Encoded: input}, nil
	}
	if _, err := w.Write(input); err != nil {
		return Result{Tag: Raw, Encoded: input}, nil
	}
	if err := w.Close(); err != nil {
		return Result{Tag: Raw, Encoded: input}, nil
	}

	if buf.Len() >= len(input) {
		return Result{Tag: Raw, Encoded: input}, nil
	}
	return Result{Tag: Zlib, Encoded: buf.Bytes()}, nil
}

// Decode expands an encoded payload of the given tag and raw length.
func Decode(tag Tag, encoded []byte, rawLength int) ([]byte, error) {
	switch tag {
	case Raw:
		out := make([]byte, len(encoded))
		copy(out, encoded)
		return out, nil
	case Zlib:
		r := flate.NewReader(bytes.NewReader(encoded))
		defer r.Close()
		out := make([]byte, rawLength)
		n, err := io.ReadFull(r, out)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, herr.Wrap(herr.NotDecodable, "codec.Decode", err)
		}
		if n != rawLength {
			return nil, herr.New(herr.NotDecodable, "codec.Decode", "short inflate output")
		}
		return out, nil
	default:
		return nil, herr.New(herr.NotDecodable, "codec.Decode", "unknown encoding tag")
	}
}
