package digest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardstore/hoard/digest"
)

func TestSumDeterministic(t *testing.T) {
	a := digest.Sum([]byte("Hello, world!"))
	b := digest.Sum([]byte("Hello, world!"))
	require.Equal(t, a, b)
}

func TestSumDistinguishesInput(t *testing.T) {
	a := digest.Sum([]byte("abc"))
	b := digest.Sum([]byte("abd"))
	require.NotEqual(t, a, b)
}

func TestCompareOrdering(t *testing.T) {
	a := digest.Digest{0x00, 0x01}
	b := digest.Digest{0x00, 0x02}
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
	require.Equal(t, 0, a.Compare(a))
	require.True(t, a.Less(b))
}

func TestHexRoundTrip(t *testing.T) {
	d := digest.Sum([]byte("round trip me"))
	s := d.String()
	parsed, err := digest.Parse(s)
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}

func TestParseAcceptsUpperAndLower(t *testing.T) {
	d := digest.Sum([]byte("case insensitivity"))
	upper := d.String()
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper = upper[:i] + string(c-32) + upper[i+1:]
		}
	}
	parsed, err := digest.Parse(upper)
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}

func TestParseRejectsOddLength(t *testing.T) {
	_, err := digest.Parse("abc")
	require.ErrorIs(t, err, digest.ErrInvalidLength)
}

func TestParseRejectsWrongByteLength(t *testing.T) {
	_, err := digest.Parse("abcd")
	require.ErrorIs(t, err, digest.ErrInvalidLength)
}

func TestParseRejectsNonHex(t *testing.T) {
	_, err := digest.Parse("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	require.Error(t, err)
}
