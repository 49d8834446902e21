package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketStreamVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 0x7F,
		0x80, 0x3FFF,
		0x4000, 0x1FFFFF,
		0x200000, 0xFFFFFFF,
		0x10000000, 0xFFFFFFFF,
		0x100000000, 0xDEADBEEFCAFE,
		^uint64(0),     // -1, shortcase
		^uint64(3),     // -4, shortcase
		^uint64(4),     // -5, prefixed negative
		^uint64(50000), // negative beyond the shortcase
	}

	for _, v := range values {
		buf := make([]byte, 16)
		w := NewWriter(buf)
		w.PutUvarint(v)
		require.True(t, w.Ok(), "write of %#x overflowed", v)

		r := NewReader(w.Data())
		got := r.Uvarint()
		require.True(t, r.Ok(), "read of %#x failed", v)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, r.Left())
	}
}

func TestPacketStreamVarintSmallValuesAreOneByte(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriter(buf)
	w.PutUvarint(0x42)
	assert.Equal(t, 1, w.Size())
}

func TestPacketStreamPrimitivesRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriter(buf)
	w.PutByte(0x20)
	w.PutUint64(0xCAFEBABE12345678)
	w.PutFloat32(13.5)
	w.PutFloat32(-0.25)
	require.True(t, w.Ok())

	r := NewReader(w.Data())
	assert.Equal(t, uint8(0x20), r.Next8())
	assert.Equal(t, uint64(0xCAFEBABE12345678), r.Uint64())
	assert.Equal(t, float32(13.5), r.Float32())
	assert.Equal(t, float32(-0.25), r.Float32())
	require.True(t, r.Ok())
	assert.Equal(t, 0, r.Left())
}

func TestPacketStreamReadPastEnd(t *testing.T) {
	r := NewReader([]byte{0x01})
	assert.Equal(t, uint8(1), r.Next8())
	assert.True(t, r.Ok())

	// Reads past the end return zero and flip the ok flag.
	assert.Equal(t, uint64(0), r.Uint64())
	assert.False(t, r.Ok())
	assert.Equal(t, 0, r.Left())
}

func TestPacketStreamWriteOverflowRefused(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriter(buf)
	w.PutUint64(1)
	assert.False(t, w.Ok())
	assert.Equal(t, 0, w.Size())
}

func TestPacketStreamTruncatedVarint(t *testing.T) {
	// 0xF4 promises eight more bytes; only two follow.
	r := NewReader([]byte{0xF4, 0x01, 0x02})
	r.Uvarint()
	assert.False(t, r.Ok())
}
