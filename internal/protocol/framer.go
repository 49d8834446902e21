package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Control messages on the TLS stream carry a fixed 6-byte header:
// [type:u16 BE][length:u32 BE] followed by length payload bytes.
const (
	// HeaderSize is the size of the control message prefix in bytes.
	HeaderSize = 6

	// MaxMessageSize is the safety ceiling for a single control payload.
	// Anything larger is a protocol violation and drops the connection.
	MaxMessageSize = 8 * 1024 * 1024

	// MaxUDPPacket bounds voice datagrams in both directions, including the
	// 4-byte crypto tag. The server drops anything larger.
	// https://mumble-protocol.readthedocs.io/en/latest/voice_data.html#packet-format
	MaxUDPPacket = 1024
)

// Message is a typed control message as carried on the wire.
type Message struct {
	Type    uint16
	Payload []byte
}

// ReadMessage reads a single framed control message from r. The payload
// encoding is determined by the type and is not interpreted here.
func ReadMessage(r io.Reader) (Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, fmt.Errorf("failed to read message header: %w", err)
	}

	typ := binary.BigEndian.Uint16(header[0:2])
	length := binary.BigEndian.Uint32(header[2:6])

	if length > MaxMessageSize {
		return Message{}, fmt.Errorf("message too large: %d bytes (max %d)", length, MaxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("failed to read message payload (%d bytes): %w", length, err)
	}

	return Message{Type: typ, Payload: payload}, nil
}

// WriteMessage writes a single framed control message to w. The header and
// payload go out in one write so the TLS layer produces a single record for
// small messages.
func WriteMessage(w io.Writer, typ uint16, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], typ)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
