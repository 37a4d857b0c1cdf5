// Package chunk implements the content-defined chunker (C3): a streaming
// split-point detector over a ring buffer of recent bytes, parameterized by
// two power-of-two sizes in the manner of the rabin/buzhash splitters this
// package's sibling stream writer replaces (see
// vendor/github.com/ipfs/go-ipfs-chunker in the retrieval pack for the
// parameterization idiom this borrows: power-of-two sizing, a fixed mean
// chunk size).
package chunk

// Chunker detects content-defined boundaries in a byte stream by keeping a
// running sum of the last 2^BufferPot bytes and signalling a boundary when
// the low ModulusPot bits of that sum are all zero.
type Chunker struct {
	bufferPot  uint
	modulusPot uint

	ring []byte
	pos  int
	sum  uint64
}

// DefaultBufferPot and DefaultModulusPot are the reference parameters:
// a 1024-byte ring (2^10) and a mean chunk size of 4 KiB (2^12).
const (
	DefaultBufferPot  = 10
	DefaultModulusPot = 12
)

// New constructs a Chunker with a ring buffer of 2^bufferPot bytes that
// emits a boundary whenever the running sum's low modulusPot bits are zero.
func New(bufferPot, modulusPot uint) *Chunker {
	return &Chunker{
		bufferPot:  bufferPot,
		modulusPot: modulusPot,
		ring:       make([]byte, 1<<bufferPot),
	}
}

// Update folds b into the running sum, evicting the byte it displaces in
// the ring buffer.
func (c *Chunker) Update(b byte) {
	evicted := c.ring[c.pos]
	c.sum -= uint64(evicted)
	c.sum += uint64(b)
	c.ring[c.pos] = b
	c.pos = (c.pos + 1) & (len(c.ring) - 1)
}

// IsMarker reports whether the chunker's current state is a split point:
// the low ModulusPot bits of the running sum are all zero.
func (c *Chunker) IsMarker() bool {
	mask := uint64(1)<<c.modulusPot - 1
	return c.sum&mask == 0
}

// Reset zeroes the running sum and ring buffer, as if newly constructed.
func (c *Chunker) Reset() {
	for i := range c.ring {
		c.ring[i] = 0
	}
	c.sum = 0
	c.pos = 0
}
