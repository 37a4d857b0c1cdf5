package stream_test

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/stream"
)

// memStore is a minimal in-memory stream.Store for tests: a content-
// addressed map guarded by a mutex, mirroring the shape of repo.Repo's
// Write/Read contract without any file IO.
type memStore struct {
	mu     sync.Mutex
	blocks map[digest.Digest][]byte
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[digest.Digest][]byte)}
}

func (m *memStore) Write(p []byte) (digest.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := digest.Sum(p)
	if _, ok := m.blocks[d]; !ok {
		cp := make([]byte, len(p))
		copy(cp, p)
		m.blocks[d] = cp
	}
	return d, nil
}

func (m *memStore) Read(d digest.Digest) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.blocks[d]
	return p, ok, nil
}

func roundTrip(t *testing.T, input []byte) []byte {
	t.Helper()
	store := newMemStore()
	w := stream.NewWriter(store)
	n, err := w.Write(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)

	root, err := w.Close()
	require.NoError(t, err)

	r := stream.NewReader(store, root)
	out, err := stream.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestEmptyInputYieldsZeroBytes(t *testing.T) {
	out := roundTrip(t, nil)
	require.Empty(t, out)
}

func TestSingleByteInput(t *testing.T) {
	out := roundTrip(t, []byte{0x42})
	require.Equal(t, []byte{0x42}, out)
}

func TestRoundTripArbitraryBytes(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	input := make([]byte, 3*1024*1024) // forces multiple leaves (fewer than Fanout, so no promotion)
	rnd.Read(input)

	out := roundTrip(t, input)
	require.True(t, bytes.Equal(input, out))
}

func TestRoundTripSmallText(t *testing.T) {
	out := roundTrip(t, []byte("the quick brown fox jumps over the lazy dog"))
	require.Equal(t, "the quick brown fox jumps over the lazy dog", string(out))
}

// chunkDigests replays a write and returns the set of level-0 leaf
// digests it produced, by intercepting the store.
func chunkDigests(t *testing.T, input []byte) map[digest.Digest]bool {
	t.Helper()
	store := newMemStore()
	w := stream.NewWriter(store)
	_, err := w.Write(input)
	require.NoError(t, err)
	_, err = w.Close()
	require.NoError(t, err)

	out := map[digest.Digest]bool{}
	store.mu.Lock()
	for d, p := range store.blocks {
		// A leaf block's own digest is indistinguishable from a pointer
		// block's without re-deriving it from content; superblocks always
		// start with the fixed magic, so anything else is leaf payload.
		if len(p) < 8 || string(p[:8]) != stream.Magic {
			out[d] = true
		}
	}
	store.mu.Unlock()
	return out
}

func TestChunkStabilityUnderInsertion(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	const size = 2 * 1024 * 1024
	base := make([]byte, size)
	rnd.Read(base)

	shifted := make([]byte, 0, size+1024)
	shifted = append(shifted, make([]byte, 1024)...) // 1 KiB of zeros at offset 0
	shifted = append(shifted, base...)

	before := chunkDigests(t, base)
	after := chunkDigests(t, shifted)

	shared := 0
	for d := range before {
		if after[d] {
			shared++
		}
	}
	ratio := float64(shared) / float64(len(before))
	require.GreaterOrEqual(t, ratio, 0.90, "expected >=90%% shared chunks, got %.2f", ratio)
}

func TestConsolidateFoldsResidualLeavesAfterOnePromotion(t *testing.T) {
	// All-zero input keeps the chunker's running sum at exactly zero, so
	// IsMarker() is true from the very first byte: every leaf flushes at
	// precisely LeafFlushMin bytes, giving deterministic control over leaf
	// count regardless of chunker timing. Fanout leaves promote level 0
	// into a single level-1 digest; a further handful of leaves must
	// remain un-promoted in level 0. Close must fold those residual
	// leaves into the root rather than short-circuiting to the lone
	// level-1 digest and silently dropping them (spec.md §4.8 step 3).
	const leaves = stream.Fanout + 10
	input := make([]byte, leaves*stream.LeafFlushMin)

	out := roundTrip(t, input)
	require.True(t, bytes.Equal(input, out))
	require.Equal(t, len(input), len(out))
}

func TestTreeReachesMultipleLevels(t *testing.T) {
	// Force many leaf flushes by writing highly compressible-but-varied
	// data through a small synthetic store, enough to promote level 0
	// into level 1 at least once (Fanout leaves).
	store := newMemStore()
	w := stream.NewWriter(store)
	buf := make([]byte, stream.LeafCap)
	for i := 0; i < stream.Fanout+10; i++ {
		for j := range buf {
			buf[j] = byte(i + j)
		}
		_, err := w.Write(buf)
		require.NoError(t, err)
	}
	root, err := w.Close()
	require.NoError(t, err)

	r := stream.NewReader(store, root)
	out, err := stream.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, (stream.Fanout+10)*stream.LeafCap, len(out))
}
