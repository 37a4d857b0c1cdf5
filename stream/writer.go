// Package stream implements the superblock stream codec (C8, C9): a
// multi-level tree of hash-pointer blocks over a content-defined chunker,
// enabling streamed write and read of arbitrarily large byte streams on
// top of a Store. Grounded on the vendored github.com/ipfs/go-unixfs
// balanced DAG builder's accumulate-per-level/flush-and-promote-on-overflow
// idiom, adapted from IPLD's variable-arity nodes to the fixed
// 1024-wide/24-level digest tree spec.md §4.8 fixes bit-exactly.
package stream

import (
	"github.com/hoardstore/hoard/chunk"
	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

// topLevelIndex is the last permitted level (MaxLevels-1 = 23): once it
// accumulates Fanout digests, the tree has reached its maximum height and
// further writes are refused until Close consolidates it.
const topLevelIndex = MaxLevels - 1

// Writer chunks an input byte stream, writes each chunk as a block via the
// underlying Store, and accumulates chunk digests into a balanced tree of
// superblocks. Writer is single-threaded; if the underlying Store is a
// repo.Repo its own mutex serializes concurrent access from elsewhere, but
// Writer itself holds no lock (spec.md §5).
type Writer struct {
	store   BlockWriter
	chunker *chunk.Chunker
	leaf    []byte
	levels  [MaxLevels][]digest.Digest

	nonempty bool
	topFull  bool
	closed   bool
	root     digest.Digest
}

// NewWriter returns a Writer that persists blocks to store using the
// reference chunker parameters (spec.md §4.8). Equivalent to
// NewWriterWithChunkerParams(store, chunk.DefaultBufferPot, chunk.DefaultModulusPot).
func NewWriter(store BlockWriter) *Writer {
	return NewWriterWithChunkerParams(store, chunk.DefaultBufferPot, chunk.DefaultModulusPot)
}

// NewWriterWithChunkerParams is NewWriter with the chunker's buffer and
// modulus powers-of-two overridden, letting callers thread a config.Config
// tunable through without changing any wire format: the chunker only picks
// where leaves split, never what bytes land in them.
func NewWriterWithChunkerParams(store BlockWriter, bufferPot, modulusPot uint) *Writer {
	return &Writer{
		store:   store,
		chunker: chunk.New(bufferPot, modulusPot),
	}
}

// WriteByte appends a single byte to the stream, flushing the current leaf
// to a block whenever a content-defined boundary or the leaf size cap is
// reached.
func (w *Writer) WriteByte(b byte) error {
	if w.closed {
		return herr.New(herr.IllegalState, "stream.Writer.WriteByte", "stream is closed")
	}
	if w.topFull {
		return herr.New(herr.IllegalState, "stream.Writer.WriteByte", "tree has reached its maximum height")
	}

	w.leaf = append(w.leaf, b)
	w.chunker.Update(b)
	w.nonempty = true

	if len(w.leaf) == LeafCap || (len(w.leaf) >= LeafFlushMin && w.chunker.IsMarker()) {
		return w.flushLeaf()
	}
	return nil
}

// Write implements io.Writer by feeding p through WriteByte one byte at a
// time, so chunk boundaries fall exactly where single-byte writes would
// place them regardless of the caller's write granularity.
func (w *Writer) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := w.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

func (w *Writer) flushLeaf() error {
	d, err := w.store.Write(w.leaf)
	if err != nil {
		return herr.Wrap(herr.IO, "stream.Writer.flushLeaf", err)
	}
	w.leaf = w.leaf[:0]
	w.levels[0] = append(w.levels[0], d)
	return w.promote()
}

// promote emits any level that has accumulated Fanout digests as a
// superblock, pushing its digest into the level above, cascading upward
// until a level with fewer than Fanout digests is reached. If the cascade
// reaches topLevelIndex with Fanout digests, the tree has hit its maximum
// height: topFull latches rather than promoting level 23 into a
// nonexistent level 24, per spec.md §4.8.
func (w *Writer) promote() error {
	for level := 0; level < MaxLevels; level++ {
		if len(w.levels[level]) < Fanout {
			return nil
		}
		if level == topLevelIndex {
			w.topFull = true
			return nil
		}
		sb, err := encodeSuperblock(uint8(level), w.levels[level])
		if err != nil {
			return err
		}
		d, err := w.store.Write(sb)
		if err != nil {
			return herr.Wrap(herr.IO, "stream.Writer.promote", err)
		}
		w.levels[level] = w.levels[level][:0]
		w.levels[level+1] = append(w.levels[level+1], d)
	}
	return nil
}

// Close flushes any partial leaf, ensures at least one block was written
// (an empty stream still produces a root referring to a single
// zero-length data block), consolidates the remaining partial levels per
// spec.md §4.8 step 3, and returns the root digest.
func (w *Writer) Close() (digest.Digest, error) {
	if w.closed {
		return digest.Digest{}, herr.New(herr.IllegalState, "stream.Writer.Close", "already closed")
	}

	if len(w.leaf) > 0 {
		if err := w.flushLeaf(); err != nil {
			return digest.Digest{}, err
		}
	}
	if !w.nonempty {
		d, err := w.store.Write(nil)
		if err != nil {
			return digest.Digest{}, herr.Wrap(herr.IO, "stream.Writer.Close", err)
		}
		w.levels[0] = append(w.levels[0], d)
	}

	root, err := w.consolidate()
	if err != nil {
		return digest.Digest{}, err
	}
	w.root = root
	w.closed = true
	return root, nil
}

func (w *Writer) consolidate() (digest.Digest, error) {
	maxLevel := -1
	for lvl := MaxLevels - 1; lvl >= 0; lvl-- {
		if len(w.levels[lvl]) > 0 {
			maxLevel = lvl
			break
		}
	}
	if maxLevel < 0 {
		return digest.Digest{}, herr.New(herr.IllegalState, "stream.Writer.consolidate", "nothing to consolidate")
	}

	if maxLevel == 0 {
		sb, err := encodeSuperblock(0, w.levels[0])
		if err != nil {
			return digest.Digest{}, err
		}
		return w.store.Write(sb)
	}

	// The single-digest shortcut only applies when the *entire* tree is one
	// block: maxLevel holding exactly one digest with every level below it
	// still empty. If lower levels hold un-promoted leaves, those must be
	// folded upward first (the loop below) — returning the lone top-level
	// digest here would silently drop them (spec.md §4.8 step 3).
	if len(w.levels[maxLevel]) == 1 {
		wholeTreeIsOneBlock := true
		for lvl := 0; lvl < maxLevel; lvl++ {
			if len(w.levels[lvl]) > 0 {
				wholeTreeIsOneBlock = false
				break
			}
		}
		if wholeTreeIsOneBlock {
			return w.levels[maxLevel][0], nil
		}
	}

	for lvl := 0; lvl < maxLevel; lvl++ {
		if len(w.levels[lvl]) == 0 {
			continue
		}
		sb, err := encodeSuperblock(uint8(lvl), w.levels[lvl])
		if err != nil {
			return digest.Digest{}, err
		}
		d, err := w.store.Write(sb)
		if err != nil {
			return digest.Digest{}, herr.Wrap(herr.IO, "stream.Writer.consolidate", err)
		}
		w.levels[lvl] = nil
		w.levels[lvl+1] = append(w.levels[lvl+1], d)
	}

	sb, err := encodeSuperblock(uint8(maxLevel), w.levels[maxLevel])
	if err != nil {
		return digest.Digest{}, err
	}
	return w.store.Write(sb)
}

// Hash returns the root digest produced by Close. It errors if the writer
// has not yet been closed.
func (w *Writer) Hash() (digest.Digest, error) {
	if !w.closed {
		return digest.Digest{}, herr.New(herr.IllegalState, "stream.Writer.Hash", "stream is not closed")
	}
	return w.root, nil
}
