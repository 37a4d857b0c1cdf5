package chunk_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardstore/hoard/chunk"
)

func feed(c *chunk.Chunker, p []byte) {
	for _, b := range p {
		c.Update(b)
	}
}

func TestMarkerDependsOnlyOnRecentWindow(t *testing.T) {
	const bufferPot, modulusPot = 6, 4 // small ring for a fast test
	window := 1 << bufferPot

	rnd := rand.New(rand.NewSource(1))
	tail := make([]byte, window)
	rnd.Read(tail)

	prefixA := make([]byte, 37)
	rnd.Read(prefixA)
	prefixB := make([]byte, 201)
	rnd.Read(prefixB)

	ca := chunk.New(bufferPot, modulusPot)
	feed(ca, prefixA)
	feed(ca, tail)

	cb := chunk.New(bufferPot, modulusPot)
	feed(cb, prefixB)
	feed(cb, tail)

	require.Equal(t, ca.IsMarker(), cb.IsMarker())
}

func TestResetClearsState(t *testing.T) {
	c := chunk.New(chunk.DefaultBufferPot, chunk.DefaultModulusPot)
	feed(c, []byte("some arbitrary bytes to perturb the running sum"))
	c.Reset()

	fresh := chunk.New(chunk.DefaultBufferPot, chunk.DefaultModulusPot)
	require.Equal(t, fresh.IsMarker(), c.IsMarker())
}

func TestDefaultParametersProduceBoundaries(t *testing.T) {
	c := chunk.New(chunk.DefaultBufferPot, chunk.DefaultModulusPot)
	rnd := rand.New(rand.NewSource(2))
	buf := make([]byte, 1<<20)
	rnd.Read(buf)

	boundaries := 0
	for i, b := range buf {
		c.Update(b)
		if i > (1<<chunk.DefaultBufferPot) && c.IsMarker() {
			boundaries++
		}
	}
	require.Greater(t, boundaries, 0)
}
