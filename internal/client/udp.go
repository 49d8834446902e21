package client

import (
	"net"
	"time"

	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
	"github.com/murmurlink-project/murmurlink/internal/protocol"
)

// udpPingHeader is the voice packet header byte for a ping (kind 1 in the
// top three bits).
const udpPingHeader = 1 << 5

// bindUDP opens the voice socket on an ephemeral local port and starts the
// receive loop. The socket lives for the client's lifetime; the remote
// endpoint changes per connection. Failure is non-fatal: voice falls back
// to the TCP tunnel.
func (c *Client) bindUDP() {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to bind UDP socket, voice will use the TCP tunnel")
		return
	}
	c.udp = conn
	c.logger.Debug().Str("laddr", conn.LocalAddr().String()).Msg("UDP voice socket bound")

	go c.readUDPLoop(conn)
}

// readUDPLoop receives voice datagrams until the socket is closed.
func (c *Client) readUDPLoop(conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			c.logger.Debug().Err(err).Msg("UDP read loop ending")
			return
		}

		// Valid packets are at most 1024 bytes.
		if n > protocol.MaxUDPPacket {
			c.logger.Trace().Int("len", n).Msg("dropping oversize UDP packet")
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		now := c.now()
		c.mu.Lock()
		c.handleUDPLocked(pkt, now)
		c.mu.Unlock()
	}
}

// handleUDPLocked decrypts one datagram and routes the plaintext voice
// payload. Decrypt failures are counted, and at most once per ping
// interval trigger a CryptSetup request so the server resets our crypt
// state.
func (c *Client) handleUDPLocked(pkt []byte, now time.Time) {
	if !c.crypt.Initialized() {
		return
	}

	plain, ok := c.crypt.Decrypt(pkt)
	if !ok {
		c.logger.Debug().Msg("failed to decrypt UDP packet")
		if now.Sub(c.crypt.LastGoodUDP) > pingInterval {
			// We expect a good packet at least once per ping interval; don't
			// spam the server with resync requests beyond that.
			c.crypt.LastGoodUDP = now
			c.sendLocked(&mumbleproto.CryptSetup{})
			c.logger.Debug().Msg("no good UDP for over a second, requesting crypt reset")
		}
		return
	}

	c.handleVoiceLocked(plain, now)
}

// SendVoice transmits one pre-framed voice payload, over UDP when the path
// is believed to work and through the control-channel tunnel otherwise.
func (c *Client) SendVoice(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasUDP {
		c.sendRawLocked(uint16(mumbleproto.TypeUDPTunnel), buf)
		return
	}
	c.sendUDPLocked(buf)
}

// sendUDPLocked encrypts and transmits one datagram. Payloads that would
// exceed the 1024-byte bound after the 4-byte tag are dropped.
func (c *Client) sendUDPLocked(buf []byte) {
	if !c.crypt.Initialized() || c.udp == nil || c.udpRemote == nil {
		return
	}

	if len(buf) > protocol.MaxUDPPacket-4 {
		c.logger.Trace().
			Int("len", len(buf)).
			Int("max", protocol.MaxUDPPacket-4).
			Msg("dropping oversize outgoing voice packet")
		return
	}

	encrypted := c.crypt.Encrypt(buf)
	if _, err := c.udp.WriteToUDP(encrypted, c.udpRemote); err != nil {
		c.logger.Debug().Err(err).Msg("UDP send failed")
	}
}

// sendUDPPingLocked emits the 9-byte keepalive datagram
// [0x20][timestamp:u64 BE].
func (c *Client) sendUDPPingLocked(now time.Time) {
	var buf [9]byte
	ps := protocol.NewWriter(buf[:])
	ps.PutByte(udpPingHeader)
	ps.PutUint64(uint64(now.UnixMilli()))

	c.sendUDPLocked(ps.Data())
}
