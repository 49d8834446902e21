package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/murmurlink-project/murmurlink/internal/events"
	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
	"github.com/murmurlink-project/murmurlink/internal/protocol"
	"github.com/murmurlink-project/murmurlink/internal/util"
)

const dialTimeout = 30 * time.Second

// clientVersion is the protocol version announced in the Version exchange
// (1.2.4 packed as major<<16 | minor<<8 | patch).
const clientVersion = 0x00010204

// supervise drives the connection state machine: an initial short delay
// before the first dial, then a fixed reconnect delay between attempts for
// as long as an address is configured.
func (c *Client) supervise(ctx context.Context) {
	delay := initialConnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		c.runConnection(ctx)

		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		addr := c.info.Address
		c.mu.Unlock()
		if addr == "" {
			return
		}

		c.logger.Debug().Str("addr", addr).Msg("reconnecting")
		delay = reconnectDelay
	}
}

// runConnection performs one complete connection attempt: TCP dial, TLS
// handshake, version/auth exchange, then the read loop until the stream
// dies. It returns once the connection is fully torn down.
func (c *Client) runConnection(ctx context.Context) {
	c.mu.Lock()
	if c.info.IsConnecting {
		c.mu.Unlock()
		return
	}
	c.info.IsConnecting = true
	addr := c.info.Address
	username := c.info.Username
	c.mu.Unlock()

	c.logger.Info().Str("addr", addr).Msg("connecting")
	c.emit(events.EventConnecting, nil)

	dialer := net.Dialer{Timeout: dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.logger.Debug().Err(err).Msg("connecting failed")
		c.resetLifecycleFlags()
		return
	}

	// This is real-time audio, we don't want nagling.
	if tcp, ok := raw.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetKeepAlive(true)
	}

	tlsConn := tls.Client(raw, c.tlsConfigFor(addr))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("TLS handshake failed")
		raw.Close()
		c.resetLifecycleFlags()
		return
	}

	cs := tlsConn.ConnectionState()
	c.logger.Debug().
		Uint16("tls_version", cs.Version).
		Uint16("ciphersuite", cs.CipherSuite).
		Msg("TLS session active")

	// The voice datagrams go to the same endpoint as the control stream.
	udpRemote, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to resolve UDP endpoint, voice will use the TCP tunnel")
	}

	c.mu.Lock()
	c.state.Reset()
	c.state.SetUsername(username)
	c.conn = tlsConn
	c.tlsActive = true
	c.udpRemote = udpRemote
	c.hasUDP = udpRemote != nil
	c.info.IsConnecting = false
	c.info.IsConnected = true
	c.timeSinceJoin = c.now()
	c.inFlightTCPPings = 0
	c.nextPing = time.Time{}
	c.mu.Unlock()

	c.onActivated(username)

	stop := make(chan struct{})
	go c.reconcileLoop(ctx, stop)

	reason := c.readLoop(tlsConn)
	close(stop)

	c.mu.Lock()
	if c.conn == tlsConn {
		c.conn = nil
	}
	c.tlsActive = false
	c.info.IsConnected = false
	c.info.IsConnecting = false
	c.mu.Unlock()

	tlsConn.Close()
	c.emit(events.EventDisconnected, events.DisconnectedPayload{Address: addr, Reason: reason})
}

// resetLifecycleFlags clears the lifecycle flags after a failed dial or handshake.
func (c *Client) resetLifecycleFlags() {
	c.mu.Lock()
	c.info.IsConnecting = false
	c.info.IsConnected = false
	c.mu.Unlock()
}

// tlsConfigFor clones the template config and pins the SNI name to the
// dialed host.
func (c *Client) tlsConfigFor(addr string) *tls.Config {
	cfg := c.tlsBase.Clone()
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			cfg.ServerName = host
		}
	}
	return cfg
}

// onActivated runs once the TLS session is up: announce our version, then
// authenticate.
// https://github.com/mumble-voip/mumble/blob/master/docs/dev/network-protocol/establishing_connection.md
func (c *Client) onActivated(username string) {
	sysInfo := util.GetSystemInfo()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendLocked(&mumbleproto.Version{
		Version:   mumbleproto.Uint32(clientVersion),
		Release:   mumbleproto.String("Murmurlink"),
		OS:        mumbleproto.String(string(sysInfo.Platform)),
		OSVersion: mumbleproto.String(sysInfo.OS),
	})

	c.sendLocked(&mumbleproto.Authenticate{
		Username: mumbleproto.String(username),
		Opus:     mumbleproto.Bool(true),
	})
}

// readLoop pulls framed control messages off the TLS stream and dispatches
// them until the stream errors out or a message violates the protocol.
func (c *Client) readLoop(conn net.Conn) string {
	for {
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Info().Msg("server closed connection")
				return "closed"
			}
			c.logger.Debug().Err(err).Msg("control stream error")
			return err.Error()
		}

		if err := c.dispatch(msg); err != nil {
			c.logger.Warn().
				Err(err).
				Uint16("type", msg.Type).
				Msg("malformed control message, dropping connection")
			return "protocol violation"
		}
	}
}

// sendLocked encodes and writes a control message. Sends while not fully
// connected are dropped silently; that is the API contract. Callers hold
// the client mutex.
func (c *Client) sendLocked(m mumbleproto.Message) {
	c.sendRawLocked(uint16(m.Type()), m.Marshal())
}

func (c *Client) sendRawLocked(typ uint16, payload []byte) {
	if !c.info.IsConnected || !c.tlsActive || c.conn == nil {
		return
	}
	if err := protocol.WriteMessage(c.conn, typ, payload); err != nil {
		c.logger.Debug().Err(err).Msg("control send failed")
	}
}

// dispatch parses one inbound control message and applies it to the state
// store under the client mutex. A parse error is a protocol violation and
// drops the connection.
func (c *Client) dispatch(msg protocol.Message) error {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch mumbleproto.Type(msg.Type) {
	case mumbleproto.TypeVersion:
		var m mumbleproto.Version
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad Version: %w", err)
		}
		if m.Release != nil {
			c.logger.Debug().Str("release", *m.Release).Msg("server version")
		}

	case mumbleproto.TypePing:
		var m mumbleproto.Ping
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad Ping: %w", err)
		}
		c.handlePingLocked(&m, now)

	case mumbleproto.TypeReject:
		var m mumbleproto.Reject
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad Reject: %w", err)
		}
		reason := ""
		if m.Reason != nil {
			reason = *m.Reason
		}
		c.logger.Warn().Str("reason", reason).Msg("server rejected connection")
		c.emit(events.EventRejected, reason)

	case mumbleproto.TypeServerSync:
		var m mumbleproto.ServerSync
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad ServerSync: %w", err)
		}
		if m.Session != nil {
			c.state.SetSession(*m.Session)
		}
		c.logger.Info().
			Uint32("session", c.state.Session()).
			Str("username", c.state.Username()).
			Msg("server sync complete")
		c.markConnectedLocked()

	case mumbleproto.TypeChannelState:
		var m mumbleproto.ChannelState
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad ChannelState: %w", err)
		}
		c.handleChannelStateLocked(&m)

	case mumbleproto.TypeChannelRemove:
		var m mumbleproto.ChannelRemove
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad ChannelRemove: %w", err)
		}
		if m.ChannelID != nil {
			c.state.RemoveChannel(*m.ChannelID)
			c.emit(events.EventChannelRemoved, events.ChannelPayload{ID: *m.ChannelID})
		}

	case mumbleproto.TypeUserState:
		var m mumbleproto.UserState
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad UserState: %w", err)
		}
		c.handleUserStateLocked(&m)

	case mumbleproto.TypeUserRemove:
		var m mumbleproto.UserRemove
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad UserRemove: %w", err)
		}
		if m.Session != nil {
			if u, ok := c.state.RemoveUser(*m.Session); ok {
				c.emit(events.EventUserLeft, events.UserPayload{Session: u.Session, Name: u.Name})
			}
		}

	case mumbleproto.TypeUDPTunnel:
		// Tunnelled voice: identical framing to a decrypted UDP datagram.
		c.handleVoiceLocked(msg.Payload, now)

	case mumbleproto.TypeCryptSetup:
		var m mumbleproto.CryptSetup
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad CryptSetup: %w", err)
		}
		c.handleCryptSetupLocked(&m)

	case mumbleproto.TypeTextMessage:
		var m mumbleproto.TextMessage
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad TextMessage: %w", err)
		}
		c.handleTextMessageLocked(&m)

	case mumbleproto.TypePermissionDenied:
		var m mumbleproto.PermissionDenied
		if err := m.Unmarshal(msg.Payload); err != nil {
			return fmt.Errorf("bad PermissionDenied: %w", err)
		}
		reason := ""
		if m.Reason != nil {
			reason = *m.Reason
		}
		c.logger.Warn().Str("reason", reason).Msg("permission denied")
		c.emit(events.EventPermissionDenied, reason)

	default:
		c.logger.Trace().
			Uint16("type", msg.Type).
			Int("len", len(msg.Payload)).
			Msg("ignoring control message")
	}

	return nil
}

func (c *Client) handleChannelStateLocked(m *mumbleproto.ChannelState) {
	if m.ChannelID == nil {
		return
	}

	_, existed := c.state.Channels()[*m.ChannelID]
	ch := c.state.UpsertChannel(*m.ChannelID)
	if m.Parent != nil {
		ch.Parent = *m.Parent
	}
	if m.Name != nil {
		ch.Name = *m.Name
	}
	if m.Temporary != nil {
		ch.Temporary = *m.Temporary
	}

	if !existed {
		c.emit(events.EventChannelAdded, events.ChannelPayload{ID: ch.ID, Name: ch.Name, Temporary: ch.Temporary})
	}
}

func (c *Client) handleUserStateLocked(m *mumbleproto.UserState) {
	if m.Session == nil {
		return
	}

	existed := c.state.User(*m.Session) != nil
	u := c.state.UpsertUser(*m.Session)
	if m.Name != nil {
		u.Name = *m.Name
	}
	if m.UserID != nil {
		u.ServerID = *m.UserID
	}

	moved := false
	if m.ChannelID != nil && u.ChannelID != *m.ChannelID {
		u.ChannelID = *m.ChannelID
		moved = existed
	}

	channelName := ""
	if ch, ok := c.state.Channels()[u.ChannelID]; ok {
		channelName = ch.Name
	}

	if !existed {
		c.emit(events.EventUserJoined, events.UserPayload{Session: u.Session, Name: u.Name, Channel: channelName})
	} else if moved {
		c.emit(events.EventUserMoved, events.UserPayload{Session: u.Session, Name: u.Name, Channel: channelName})
	}
}

func (c *Client) handleCryptSetupLocked(m *mumbleproto.CryptSetup) {
	switch {
	case len(m.Key) > 0 && len(m.ClientNonce) > 0 && len(m.ServerNonce) > 0:
		if err := c.crypt.SetKey(m.Key, m.ClientNonce, m.ServerNonce); err != nil {
			c.logger.Warn().Err(err).Msg("rejecting crypt setup")
			return
		}
		c.logger.Debug().Msg("UDP crypt keys installed")

	case len(m.ServerNonce) > 0:
		if err := c.crypt.SetDecryptIV(m.ServerNonce); err != nil {
			c.logger.Warn().Err(err).Msg("rejecting crypt nonce update")
			return
		}
		c.logger.Debug().Msg("UDP crypt server nonce resynced")
		c.emit(events.EventCryptResync, nil)

	default:
		// The server lost track of our nonce and wants it back.
		if c.crypt.Initialized() {
			c.sendLocked(&mumbleproto.CryptSetup{ClientNonce: c.crypt.EncryptIV()})
		}
	}
}

func (c *Client) handleTextMessageLocked(m *mumbleproto.TextMessage) {
	sender := ""
	if m.Actor != nil {
		if u := c.state.User(*m.Actor); u != nil {
			sender = u.Name
		}
	}
	message := ""
	if m.Message != nil {
		message = *m.Message
	}
	c.emit(events.EventTextMessage, events.TextMessagePayload{Sender: sender, Message: message})
}

// markConnectedLocked resolves the pending Connect handle after ServerSync.
func (c *Client) markConnectedLocked() {
	c.emit(events.EventConnected, events.ConnectedPayload{
		Address:  c.info.Address,
		Username: c.info.Username,
		Session:  c.state.Session(),
	})

	if c.connectDone != nil {
		select {
		case c.connectDone <- c.info:
		default:
		}
		c.connectDone = nil
	}
}
