package bmff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thirtyTwoBytes() []byte {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

// S2 — a request running past EOF is clamped to the bytes available.
func TestHexRange_ClampsToEOF(t *testing.T) {
	data := thirtyTwoBytes()

	res, err := HexRange(bytes.NewReader(data), 24, 32)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), res.Offset)
	assert.Equal(t, uint64(8), res.Length)
	assert.Equal(t, "18191a1b1c1d1e1f", res.Hex)
}

func TestHexRange_FullyWithinBounds(t *testing.T) {
	data := thirtyTwoBytes()

	res, err := HexRange(bytes.NewReader(data), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Offset)
	assert.Equal(t, uint64(4), res.Length)
	assert.Equal(t, "00010203", res.Hex)
}

// Offset at or beyond the file length reads zero bytes, not an error.
func TestHexRange_OffsetAtEOF(t *testing.T) {
	data := thirtyTwoBytes()

	res, err := HexRange(bytes.NewReader(data), 32, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(32), res.Offset)
	assert.Equal(t, uint64(0), res.Length)
	assert.Equal(t, "", res.Hex)
}

func TestHexRange_OffsetBeyondEOF(t *testing.T) {
	data := thirtyTwoBytes()

	res, err := HexRange(bytes.NewReader(data), 1000, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Length)
}

// Idempotence: repeated calls with the same args return identical results.
func TestHexRange_Idempotent(t *testing.T) {
	data := thirtyTwoBytes()
	r := bytes.NewReader(data)

	first, err := HexRange(r, 10, 6)
	require.NoError(t, err)

	second, err := HexRange(r, 10, 6)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// Clamping invariant: result.length == min(requested_length, file_len-offset).
func TestHexRange_ClampInvariant(t *testing.T) {
	data := thirtyTwoBytes()

	cases := []struct {
		offset, length uint64
	}{
		{0, 1}, {0, 32}, {0, 1000}, {16, 16}, {16, 17}, {31, 1}, {31, 100},
	}

	for _, c := range cases {
		res, err := HexRange(bytes.NewReader(data), c.offset, c.length)
		require.NoError(t, err)

		want := c.length
		if remaining := uint64(len(data)) - c.offset; c.length > remaining {
			want = remaining
		}
		if c.offset >= uint64(len(data)) {
			want = 0
		}
		assert.Equal(t, want, res.Length, "offset=%d length=%d", c.offset, c.length)
		assert.Len(t, res.Hex, int(res.Length)*2)
	}
}
