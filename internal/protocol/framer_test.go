package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, WriteMessage(&buf, 9, payload))

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), msg.Type)
	assert.Equal(t, payload, msg.Payload)
	assert.Equal(t, 0, buf.Len())
}

func TestMessageEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, 3, nil))

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), msg.Type)
	assert.Empty(t, msg.Payload)
}

func TestMessageHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, 0x0102, []byte{0xAA}))

	raw := buf.Bytes()
	require.Len(t, raw, HeaderSize+1)
	assert.Equal(t, uint16(0x0102), binary.BigEndian.Uint16(raw[0:2]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(raw[2:6]))
	assert.Equal(t, byte(0xAA), raw[6])
}

func TestMessageOversizeRejected(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], 9)
	binary.BigEndian.PutUint32(header[2:6], MaxMessageSize+1)
	buf.Write(header)

	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}

func TestMessageTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], 9)
	binary.BigEndian.PutUint32(header[2:6], 16)
	buf.Write(header)
	buf.Write([]byte{0x01, 0x02}) // 14 bytes short

	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}
