package pack

import (
	"io"
	"os"
	"sync"

	"github.com/hoardstore/hoard/codec"
	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/herr"
)

// defaultCacheBits fixes the size of the per-goroutine entry cache at 2^16
// slots by default, per spec.md §4.4; config.Pack.CacheBits may resize it.
const defaultCacheBits = 16

type cacheSlot struct {
	valid bool
	index int32
	ent   entry
	known bool
}

// entryCache is the "thread-local direct-mapped entry cache" of spec.md
// §4.4, generalized to Go's goroutine model via sync.Pool: Go has no true
// thread-local storage, so each Reader keeps a pool of caches that tend to
// stay with the goroutine that last used them (sync.Pool's documented
// per-P affinity), giving the same amortized effect without pretending Go
// has OS-thread-local variables.
type entryCache struct {
	mask  uint32
	slots []cacheSlot
}

func newEntryCache(bits uint) *entryCache {
	size := uint32(1) << bits
	return &entryCache{mask: size - 1, slots: make([]cacheSlot, size)}
}

// get returns the cached entry at index and whether it decoded to a known
// encoding tag. The second bool (found) reports whether a cache hit
// occurred at all, independent of known.
func (c *entryCache) get(index int32) (e entry, known bool, found bool) {
	slot := &c.slots[uint32(index)&c.mask]
	if slot.valid && slot.index == index {
		return slot.ent, slot.known, true
	}
	return entry{}, false, false
}

func (c *entryCache) put(index int32, e entry, known bool) {
	slot := &c.slots[uint32(index)&c.mask]
	slot.valid = true
	slot.index = index
	slot.ent = e
	slot.known = known
}

// Reader opens an immutable packfile for random-access, thread-safe reads.
// All public operations are safe for concurrent use by multiple
// goroutines: the only mutable per-reader state is the entry cache, and
// each goroutine draws its own from a sync.Pool.
type Reader struct {
	f                *os.File
	blocktableStart  int64
	blocktableLength int32
	fileSize         int64
	cachePool        sync.Pool
}

// Open validates a packfile's header and prepares it for lookups, using
// the default entry cache size. It does not read the block table eagerly.
func Open(path string) (*Reader, error) {
	return OpenWithCacheBits(path, defaultCacheBits)
}

// OpenWithCacheBits is Open with an explicit entry cache size (see
// config.Pack.CacheBits).
func OpenWithCacheBits(path string, cacheBits uint) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herr.Wrap(herr.NotFound, "pack.Open", err)
		}
		return nil, herr.Wrap(herr.IO, "pack.Open", err)
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		f.Close()
		return nil, herr.Wrap(herr.Format, "pack.Open", err)
	}
	hdr, err := decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, herr.Wrap(herr.IO, "pack.Open", err)
	}
	size := info.Size()
	if hdr.BlocktableStart+int64(hdr.BlocktableLength)*EntrySize != size {
		f.Close()
		return nil, herr.New(herr.Format, "pack.Open", "block table does not end at EOF")
	}

	r := &Reader{
		f:                f,
		blocktableStart:  hdr.BlocktableStart,
		blocktableLength: hdr.BlocktableLength,
		fileSize:         size,
	}
	r.cachePool.New = func() interface{} { return newEntryCache(cacheBits) }
	return r, nil
}

// entryAt decodes the block-table entry at index. known reports whether
// the entry's encoding tag was recognized: an unknown tag is not an error
// (spec.md §3, "unknown tags on read skip the entry") — the digest is
// still populated and valid for comparison, only the payload metadata is
// unusable. err is reserved for actual read/format failures (a short read,
// or a self-inconsistent record).
func (r *Reader) entryAt(index int32) (e entry, known bool, err error) {
	c := r.cachePool.Get().(*entryCache)
	defer r.cachePool.Put(c)

	if ce, ck, found := c.get(index); found {
		return ce, ck, nil
	}

	buf := make([]byte, EntrySize)
	off := r.blocktableStart + int64(index)*EntrySize
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return entry{}, false, herr.Wrap(herr.IO, "pack.Reader.entryAt", err)
	}
	e, known, err = decodeEntry(buf)
	if err != nil {
		return entry{}, false, err
	}
	c.put(index, e, known)
	return e, known, nil
}

// search performs a classical binary search over [0, blocktableLength)
// comparing by digest, returning the matching index or (−1, false). An
// entry with an unrecognized encoding tag still carries a valid digest, so
// it participates in the search like any other entry rather than aborting
// it (spec.md §3, §4.4): only fetching that entry's payload later needs a
// known tag.
func (r *Reader) search(d digest.Digest) (int32, bool, error) {
	lo, hi := int32(0), r.blocktableLength
	for lo < hi {
		mid := lo + (hi-lo)/2
		e, _, err := r.entryAt(mid)
		if err != nil {
			return 0, false, err
		}
		switch e.Digest.Compare(d) {
		case 0:
			return mid, true, nil
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false, nil
}

// Read fetches and decodes the block with digest d. A missing digest
// returns (nil, false, nil): absence is not an error (spec.md §7). If the
// matching entry's own encoding tag is unrecognized, that is a recoverable
// NotDecodable error: the entry exists but cannot be decoded, and the
// reader remains usable for every other digest.
func (r *Reader) Read(d digest.Digest) ([]byte, bool, error) {
	idx, found, err := r.search(d)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	e, known, err := r.entryAt(idx)
	if err != nil {
		return nil, false, err
	}
	if !known {
		return nil, false, herr.New(herr.NotDecodable, "pack.Reader.Read", "entry has unknown encoding tag")
	}
	return r.fetchPayload(e)
}

// Contains reports whether d is present, without decoding its payload.
func (r *Reader) Contains(d digest.Digest) (bool, error) {
	_, found, err := r.search(d)
	return found, err
}

func (r *Reader) fetchPayload(e entry) ([]byte, bool, error) {
	pos := int64(HeaderSize) + e.PayloadOffset
	if pos+int64(e.EncodedLength) > r.fileSize {
		return nil, false, herr.New(herr.Format, "pack.Reader.fetchPayload", "payload extends past end of file")
	}
	buf := make([]byte, e.EncodedLength)
	if _, err := r.f.ReadAt(buf, pos); err != nil {
		return nil, false, herr.Wrap(herr.IO, "pack.Reader.fetchPayload", err)
	}
	out, err := decodeEntryPayload(e, buf)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Enumerate performs a sequential scan of the block table, invoking fn for
// every entry in on-disk order. Unknown-encoding entries are skipped,
// matching Read/search's tolerance for them.
func (r *Reader) Enumerate(fn func(Entry) error) error {
	for i := int32(0); i < r.blocktableLength; i++ {
		buf := make([]byte, EntrySize)
		off := r.blocktableStart + int64(i)*EntrySize
		if _, err := r.f.ReadAt(buf, off); err != nil {
			return herr.Wrap(herr.IO, "pack.Reader.Enumerate", err)
		}
		e, ok, err := decodeEntry(buf)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(e.export()); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries in the block table.
func (r *Reader) Len() int {
	return int(r.blocktableLength)
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

func decodeEntryPayload(e entry, raw []byte) ([]byte, error) {
	return codec.Decode(e.Encoding, raw, int(e.RawLength))
}
