// Package cryptstate implements the OCB2-AES128 encryption used on the
// Mumble UDP voice path, including the good/late/lost/resync accounting
// both sides exchange in Ping messages. The scheme prefixes every datagram
// with a 4-byte tag: one nonce byte and three bytes of the OCB tag.
package cryptstate

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"time"
)

const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16

	// NonceSize is the length of the client and server nonces.
	NonceSize = aes.BlockSize

	// Overhead is the number of bytes Encrypt prepends to the plaintext.
	Overhead = 4
)

// CryptState holds the UDP cipher state for one connection. The counter
// fields mirror Mumble's CryptState members; Local* counters describe what
// we observed decrypting server traffic, Remote* ones are whatever the
// server last reported in a Ping. All access is serialized by the client
// mutex.
type CryptState struct {
	block          cipher.Block
	encryptIV      [aes.BlockSize]byte
	decryptIV      [aes.BlockSize]byte
	decryptHistory [256]byte
	initialized    bool

	LocalGood    uint32
	LocalLate    uint32
	LocalLost    uint32
	LocalResync  uint32
	RemoteGood   uint32
	RemoteLate   uint32
	RemoteLost   uint32
	RemoteResync uint32

	// LastGoodUDP is the time of the last successful decrypt. It doubles
	// as the rate limit for CryptSetup resync requests.
	LastGoodUDP time.Time
}

// New returns an uninitialized CryptState. Keys arrive from the server in a
// CryptSetup message.
func New() *CryptState {
	return &CryptState{}
}

// Initialized reports whether keys have been installed.
func (cs *CryptState) Initialized() bool { return cs.initialized }

// SetKey installs the symmetric key and both nonces, transitioning the
// state to initialized.
func (cs *CryptState) SetKey(key, clientNonce, serverNonce []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("invalid key length %d (want %d)", len(key), KeySize)
	}
	if len(clientNonce) != NonceSize || len(serverNonce) != NonceSize {
		return fmt.Errorf("invalid nonce length %d/%d (want %d)", len(clientNonce), len(serverNonce), NonceSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to init AES: %w", err)
	}

	cs.block = block
	copy(cs.encryptIV[:], clientNonce)
	copy(cs.decryptIV[:], serverNonce)
	for i := range cs.decryptHistory {
		cs.decryptHistory[i] = 0
	}
	cs.initialized = true
	return nil
}

// SetDecryptIV replaces the server nonce after a resync and bumps the
// resync counter.
func (cs *CryptState) SetDecryptIV(nonce []byte) error {
	if len(nonce) != NonceSize {
		return fmt.Errorf("invalid nonce length %d (want %d)", len(nonce), NonceSize)
	}
	copy(cs.decryptIV[:], nonce)
	cs.LocalResync++
	return nil
}

// EncryptIV returns a copy of the current client nonce, for answering a
// server-side resync request.
func (cs *CryptState) EncryptIV() []byte {
	out := make([]byte, NonceSize)
	copy(out, cs.encryptIV[:])
	return out
}

// Encrypt seals plain into a new buffer that is exactly Overhead bytes
// longer: [nonce byte][tag bytes 0..2][ciphertext].
func (cs *CryptState) Encrypt(plain []byte) []byte {
	for i := 0; i < aes.BlockSize; i++ {
		cs.encryptIV[i]++
		if cs.encryptIV[i] != 0 {
			break
		}
	}

	var tag [aes.BlockSize]byte
	dst := make([]byte, len(plain)+Overhead)
	cs.ocbEncrypt(plain, dst[Overhead:], cs.encryptIV, &tag)

	dst[0] = cs.encryptIV[0]
	dst[1] = tag[0]
	dst[2] = tag[1]
	dst[3] = tag[2]
	return dst
}

// Decrypt opens src, reconstructing the full nonce from its first byte and
// tolerating reordered, late, and lost datagrams within a window of 30.
// It returns false when the packet cannot be authenticated; the counters and
// the decrypt nonce are then left unchanged.
func (cs *CryptState) Decrypt(src []byte) ([]byte, bool) {
	if len(src) < Overhead {
		return nil, false
	}

	saveIV := cs.decryptIV
	ivByte := src[0]
	restore := false
	late := 0
	lost := 0

	if (cs.decryptIV[0]+1)&0xFF == ivByte {
		// In order as expected.
		if ivByte > cs.decryptIV[0] {
			cs.decryptIV[0] = ivByte
		} else if ivByte < cs.decryptIV[0] {
			cs.decryptIV[0] = ivByte
			carryAdd(&cs.decryptIV)
		} else {
			return nil, false
		}
	} else {
		// Out of order or repeat.
		diff := int(ivByte) - int(cs.decryptIV[0])
		if diff > 128 {
			diff -= 256
		} else if diff < -128 {
			diff += 256
		}

		switch {
		case ivByte < cs.decryptIV[0] && diff > -30 && diff < 0:
			// Late packet, but no wraparound.
			late = 1
			lost = -1
			cs.decryptIV[0] = ivByte
			restore = true
		case ivByte > cs.decryptIV[0] && diff > -30 && diff < 0:
			// Last was the out-of-order packet before a wraparound.
			late = 1
			lost = -1
			cs.decryptIV[0] = ivByte
			carrySub(&cs.decryptIV)
			restore = true
		case ivByte > cs.decryptIV[0] && diff > 0:
			// Lost a few packets, but beyond that we're good.
			lost = int(ivByte) - int(cs.decryptIV[0]) - 1
			cs.decryptIV[0] = ivByte
		case ivByte < cs.decryptIV[0] && diff > 0:
			// Lost a few packets and wrapped around.
			lost = 256 - int(cs.decryptIV[0]) + int(ivByte) - 1
			cs.decryptIV[0] = ivByte
			carryAdd(&cs.decryptIV)
		default:
			return nil, false
		}

		if cs.decryptHistory[cs.decryptIV[0]] == cs.decryptIV[1] {
			cs.decryptIV = saveIV
			return nil, false
		}
	}

	var tag [aes.BlockSize]byte
	plain := make([]byte, len(src)-Overhead)
	cs.ocbDecrypt(src[Overhead:], plain, cs.decryptIV, &tag)

	if !bytes.Equal(tag[:3], src[1:4]) {
		cs.decryptIV = saveIV
		return nil, false
	}
	cs.decryptHistory[cs.decryptIV[0]] = cs.decryptIV[1]

	if restore {
		cs.decryptIV = saveIV
	}

	cs.LocalGood++
	cs.LocalLate = uint32(int(cs.LocalLate) + late)
	cs.LocalLost = uint32(int(cs.LocalLost) + lost)
	cs.LastGoodUDP = time.Now()

	return plain, true
}

// carryAdd propagates the +1 carry into the higher nonce bytes.
func carryAdd(iv *[aes.BlockSize]byte) {
	for i := 1; i < aes.BlockSize; i++ {
		iv[i]++
		if iv[i] != 0 {
			break
		}
	}
}

// carrySub borrows 1 from the higher nonce bytes.
func carrySub(iv *[aes.BlockSize]byte) {
	for i := 1; i < aes.BlockSize; i++ {
		iv[i]--
		if iv[i] != 0xFF {
			break
		}
	}
}

func xorBlock(dst, a, b *[aes.BlockSize]byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// times2 multiplies the block by x in GF(2^128).
func times2(block *[aes.BlockSize]byte) {
	carry := block[0] >> 7
	for i := 0; i < aes.BlockSize-1; i++ {
		block[i] = block[i]<<1 | block[i+1]>>7
	}
	block[aes.BlockSize-1] = block[aes.BlockSize-1] << 1
	if carry != 0 {
		block[aes.BlockSize-1] ^= 0x87
	}
}

// times3 multiplies the block by x+1 in GF(2^128).
func times3(block *[aes.BlockSize]byte) {
	orig := *block
	times2(block)
	for i := range block {
		block[i] ^= orig[i]
	}
}

func (cs *CryptState) ocbEncrypt(plain, encrypted []byte, nonce [aes.BlockSize]byte, tag *[aes.BlockSize]byte) {
	var delta, checksum, tmp, pad [aes.BlockSize]byte

	cs.block.Encrypt(delta[:], nonce[:])

	remaining := len(plain)
	off := 0
	for remaining > aes.BlockSize {
		times2(&delta)

		var pb [aes.BlockSize]byte
		copy(pb[:], plain[off:off+aes.BlockSize])

		xorBlock(&tmp, &delta, &pb)
		cs.block.Encrypt(tmp[:], tmp[:])
		for i := 0; i < aes.BlockSize; i++ {
			encrypted[off+i] = delta[i] ^ tmp[i]
			checksum[i] ^= pb[i]
		}

		off += aes.BlockSize
		remaining -= aes.BlockSize
	}

	times2(&delta)
	tmp = [aes.BlockSize]byte{}
	tmp[aes.BlockSize-4] = byte(uint32(remaining*8) >> 24)
	tmp[aes.BlockSize-3] = byte(uint32(remaining*8) >> 16)
	tmp[aes.BlockSize-2] = byte(uint32(remaining*8) >> 8)
	tmp[aes.BlockSize-1] = byte(uint32(remaining * 8))
	xorBlock(&tmp, &tmp, &delta)
	cs.block.Encrypt(pad[:], tmp[:])

	tmp = [aes.BlockSize]byte{}
	copy(tmp[:remaining], plain[off:])
	copy(tmp[remaining:], pad[remaining:])
	for i := range checksum {
		checksum[i] ^= tmp[i]
	}
	for i := range tmp {
		tmp[i] ^= pad[i]
	}
	copy(encrypted[off:], tmp[:remaining])

	times3(&delta)
	xorBlock(&tmp, &delta, &checksum)
	cs.block.Encrypt(tag[:], tmp[:])
}

func (cs *CryptState) ocbDecrypt(encrypted, plain []byte, nonce [aes.BlockSize]byte, tag *[aes.BlockSize]byte) {
	var delta, checksum, tmp, pad [aes.BlockSize]byte

	cs.block.Encrypt(delta[:], nonce[:])

	remaining := len(encrypted)
	off := 0
	for remaining > aes.BlockSize {
		times2(&delta)

		var eb [aes.BlockSize]byte
		copy(eb[:], encrypted[off:off+aes.BlockSize])

		xorBlock(&tmp, &delta, &eb)
		cs.block.Decrypt(tmp[:], tmp[:])
		for i := 0; i < aes.BlockSize; i++ {
			plain[off+i] = delta[i] ^ tmp[i]
			checksum[i] ^= plain[off+i]
		}

		off += aes.BlockSize
		remaining -= aes.BlockSize
	}

	times2(&delta)
	tmp = [aes.BlockSize]byte{}
	tmp[aes.BlockSize-4] = byte(uint32(remaining*8) >> 24)
	tmp[aes.BlockSize-3] = byte(uint32(remaining*8) >> 16)
	tmp[aes.BlockSize-2] = byte(uint32(remaining*8) >> 8)
	tmp[aes.BlockSize-1] = byte(uint32(remaining * 8))
	xorBlock(&tmp, &tmp, &delta)
	cs.block.Encrypt(pad[:], tmp[:])

	tmp = [aes.BlockSize]byte{}
	copy(tmp[:remaining], encrypted[off:])
	for i := range tmp {
		tmp[i] ^= pad[i]
	}
	for i := range checksum {
		checksum[i] ^= tmp[i]
	}
	copy(plain[off:], tmp[:remaining])

	times3(&delta)
	xorBlock(&tmp, &delta, &checksum)
	cs.block.Encrypt(tag[:], tmp[:])
}
