package client

import (
	"time"

	"github.com/murmurlink-project/murmurlink/internal/protocol"
)

// Voice packet kinds, selected by the top three bits of the header byte.
const (
	voiceKindPing = 1
	voiceKindOpus = 4
)

// Opus frame descriptor bits: 0..12 carry the frame length, bit 13 is the
// terminator flag. These are bits of the decoded varint, not of the wire
// bytes.
const (
	opusLengthMask    = 0x1FFF
	opusTerminatorBit = 0x2000
)

// handleVoiceLocked parses one plaintext voice payload, whether it arrived
// on the UDP socket or inside a UDPTunnel control message.
func (c *Client) handleVoiceLocked(data []byte, now time.Time) {
	ps := protocol.NewReader(data)

	header := ps.Next8()
	if !ps.Ok() {
		return
	}

	if header>>5 == voiceKindPing {
		ts := ps.Uint64()
		if !ps.Ok() {
			return
		}
		c.udpPings.add(float64(now.UnixMilli() - int64(ts)))
		return
	}

	sessionID := ps.Uvarint()
	sequenceNumber := ps.Uvarint()
	if !ps.Ok() {
		return
	}

	if header>>5 != voiceKindOpus {
		return
	}

	user := c.state.User(uint32(sessionID))
	if user == nil {
		return
	}

	// Only the first opus sub-frame of the descriptor sequence is
	// extracted; continuation frames do not occur with the frame sizes
	// the protocol allows per datagram.
	descriptor := ps.Uvarint()
	hasTerminator := descriptor&opusTerminatorBit != 0
	frameLen := int(descriptor & opusLengthMask)

	if frameLen <= ps.Left() {
		if frame := ps.Bytes(frameLen); len(frame) > 0 {
			opus := make([]byte, len(frame))
			copy(opus, frame)
			c.output.HandleVoiceData(user, sequenceNumber, opus, hasTerminator)
		}
	}

	if ps.Left() >= 12 {
		pos := [3]float32{ps.Float32(), ps.Float32(), ps.Float32()}

		// Positional transforms may run a user hook, so they are queued
		// for the audio thread instead of delivered inline.
		select {
		case c.positionUpdates <- positionUpdate{session: uint32(sessionID), pos: pos}:
		default:
			c.logger.Trace().Msg("position queue full, dropping update")
		}

		if ps.Left() >= 4 {
			c.output.HandleDistance(user, ps.Float32())
		}
	}
}

// RunFrame drains the queued position updates. It is called from the
// consumer's audio thread; the position hook therefore never runs on the
// network loop.
func (c *Client) RunFrame() {
	for {
		select {
		case update := <-c.positionUpdates:
			c.mu.Lock()
			user := c.state.User(update.session)
			hook := c.positionHook
			c.mu.Unlock()

			if user == nil {
				continue
			}

			pos := update.pos
			if hook != nil {
				if override, ok := hook(user.Name); ok {
					pos = override
				}
			}

			c.output.HandlePosition(user, pos)
		default:
			return
		}
	}
}
