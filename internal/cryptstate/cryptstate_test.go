package cryptstate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() ([]byte, []byte, []byte) {
	key := bytes.Repeat([]byte{0x11}, KeySize)
	clientNonce := bytes.Repeat([]byte{0x22}, NonceSize)
	serverNonce := bytes.Repeat([]byte{0x33}, NonceSize)
	return key, clientNonce, serverNonce
}

// newPair returns two states wired to each other: what a encrypts, b can
// decrypt. a's encrypt nonce is b's decrypt nonce.
func newPair(t *testing.T) (*CryptState, *CryptState) {
	t.Helper()

	key, clientNonce, serverNonce := testKey()

	a := New()
	require.NoError(t, a.SetKey(key, clientNonce, serverNonce))

	b := New()
	require.NoError(t, b.SetKey(key, serverNonce, clientNonce))

	return a, b
}

func TestSetKeyValidation(t *testing.T) {
	cs := New()
	assert.False(t, cs.Initialized())

	key, clientNonce, serverNonce := testKey()
	assert.Error(t, cs.SetKey(key[:8], clientNonce, serverNonce))
	assert.Error(t, cs.SetKey(key, clientNonce[:4], serverNonce))
	assert.NoError(t, cs.SetKey(key, clientNonce, serverNonce))
	assert.True(t, cs.Initialized())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a, b := newPair(t)

	for _, size := range []int{0, 1, 15, 16, 17, 63, 64, 100, 512, 1020} {
		plain := make([]byte, size)
		for i := range plain {
			plain[i] = byte(i * 7)
		}

		encrypted := a.Encrypt(plain)
		require.Len(t, encrypted, size+Overhead, "size %d", size)

		got, ok := b.Decrypt(encrypted)
		require.True(t, ok, "decrypt failed for size %d", size)
		assert.Equal(t, plain, got)
	}

	assert.Equal(t, uint32(10), b.LocalGood)
	assert.Equal(t, uint32(0), b.LocalLost)
	assert.False(t, b.LastGoodUDP.IsZero())
}

func TestDecryptRejectsTamperedPacket(t *testing.T) {
	a, b := newPair(t)

	encrypted := a.Encrypt([]byte("four score and seven years ago"))
	encrypted[len(encrypted)-1] ^= 0x01

	_, ok := b.Decrypt(encrypted)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), b.LocalGood)
}

func TestDecryptRejectsRepeat(t *testing.T) {
	a, b := newPair(t)

	encrypted := a.Encrypt([]byte("hello"))

	_, ok := b.Decrypt(encrypted)
	require.True(t, ok)

	// Replaying the exact same packet must fail.
	_, ok = b.Decrypt(encrypted)
	assert.False(t, ok)
	assert.Equal(t, uint32(1), b.LocalGood)
}

func TestDecryptCountsLostPackets(t *testing.T) {
	a, b := newPair(t)

	p1 := a.Encrypt([]byte("one"))
	a.Encrypt([]byte("two"))   // dropped in transit
	a.Encrypt([]byte("three")) // dropped in transit
	p4 := a.Encrypt([]byte("four"))

	_, ok := b.Decrypt(p1)
	require.True(t, ok)

	_, ok = b.Decrypt(p4)
	require.True(t, ok)

	assert.Equal(t, uint32(2), b.LocalGood)
	assert.Equal(t, uint32(2), b.LocalLost)
}

func TestDecryptCountsLatePacket(t *testing.T) {
	a, b := newPair(t)

	p1 := a.Encrypt([]byte("one"))
	p2 := a.Encrypt([]byte("two"))

	_, ok := b.Decrypt(p2)
	require.True(t, ok)
	assert.Equal(t, uint32(1), b.LocalLost)

	// The straggler arrives afterwards.
	_, ok = b.Decrypt(p1)
	require.True(t, ok)

	assert.Equal(t, uint32(2), b.LocalGood)
	assert.Equal(t, uint32(1), b.LocalLate)
	assert.Equal(t, uint32(0), b.LocalLost)
}

func TestDecryptTooShort(t *testing.T) {
	_, b := newPair(t)

	_, ok := b.Decrypt([]byte{0x01, 0x02})
	assert.False(t, ok)
}

func TestSetDecryptIVBumpsResync(t *testing.T) {
	cs := New()
	key, clientNonce, serverNonce := testKey()
	require.NoError(t, cs.SetKey(key, clientNonce, serverNonce))

	fresh := bytes.Repeat([]byte{0x44}, NonceSize)
	require.NoError(t, cs.SetDecryptIV(fresh))
	assert.Equal(t, uint32(1), cs.LocalResync)

	assert.Error(t, cs.SetDecryptIV(fresh[:3]))
}

func TestEncryptIVReturnsCopy(t *testing.T) {
	cs := New()
	key, clientNonce, serverNonce := testKey()
	require.NoError(t, cs.SetKey(key, clientNonce, serverNonce))

	iv := cs.EncryptIV()
	iv[0] ^= 0xFF
	assert.NotEqual(t, iv[0], cs.EncryptIV()[0])
}
