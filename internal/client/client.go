// Package client implements the Mumble protocol core: the TLS control
// connection and its lifecycle state machine, the encrypted UDP voice path
// with TCP-tunnel fallback, and the reconciliation loop that keeps the
// server's view in line with the desired channel, listen set, and voice
// targets.
package client

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/murmurlink-project/murmurlink/internal/audio"
	"github.com/murmurlink-project/murmurlink/internal/cryptstate"
	"github.com/murmurlink-project/murmurlink/internal/events"
	"github.com/murmurlink-project/murmurlink/internal/state"
	"github.com/murmurlink-project/murmurlink/internal/util"
)

const (
	// pingInterval is the cadence of control pings and UDP keepalive
	// datagrams.
	pingInterval = 1000 * time.Millisecond

	// reconcileInterval is the desired-vs-actual diff cadence. The first
	// tick fires only after the TLS session is active; firing earlier
	// causes spurious reconnects when the handshake takes longer.
	reconcileInterval = 500 * time.Millisecond

	// initialConnectDelay spaces the first dial attempt after Connect.
	initialConnectDelay = 50 * time.Millisecond

	// reconnectDelay is the fixed backoff between dial attempts. The
	// design assumes intermittent unreachability rather than overload, so
	// there is no exponential growth.
	reconnectDelay = 2500 * time.Millisecond

	// connectionGracePeriod suppresses ping-loss resets and UDP mode
	// switches while the session is young.
	connectionGracePeriod = 20 * time.Second

	// maxInFlightTCPPings is how many unanswered control pings we
	// tolerate before resetting the connection.
	maxInFlightTCPPings = 4

	// positionQueueSize bounds the lock-free hand-off of positional data
	// to the audio thread.
	positionQueueSize = 256
)

// PositionHook can override the positional coordinates received on the
// wire for a named user. It runs on the consumer's audio thread, never on
// the network loop.
type PositionHook func(userName string) ([3]float32, bool)

// VoiceTargetConfig describes one whisper/shout routing rule by name. The
// names are resolved against the server state when the rule is flushed.
type VoiceTargetConfig struct {
	Users    []string
	Channels []string
}

// ConnectionInfo describes the configured server and the current lifecycle
// flags.
type ConnectionInfo struct {
	Address      string
	Username     string
	IsConnecting bool
	IsConnected  bool
}

// Stats is a snapshot of the transport health counters.
type Stats struct {
	HasUDP bool `json:"has_udp"`

	TCPPingAvg float32 `json:"tcp_ping_avg_ms"`
	TCPPingVar float32 `json:"tcp_ping_var_ms"`
	TCPPackets uint32  `json:"tcp_packets"`
	UDPPingAvg float32 `json:"udp_ping_avg_ms"`
	UDPPingVar float32 `json:"udp_ping_var_ms"`
	UDPPackets uint32  `json:"udp_packets"`

	CryptGood   uint32 `json:"crypt_good"`
	CryptLate   uint32 `json:"crypt_late"`
	CryptLost   uint32 `json:"crypt_lost"`
	CryptResync uint32 `json:"crypt_resync"`

	RemoteGood   uint32 `json:"remote_good"`
	RemoteLate   uint32 `json:"remote_late"`
	RemoteLost   uint32 `json:"remote_lost"`
	RemoteResync uint32 `json:"remote_resync"`
}

// ChannelInfo is a read-only view of one channel for consumers.
type ChannelInfo struct {
	ID        uint32 `json:"id"`
	Parent    uint32 `json:"parent"`
	Name      string `json:"name"`
	Temporary bool   `json:"temporary"`
}

// UserInfo is a read-only view of one user for consumers.
type UserInfo struct {
	Session uint32 `json:"session"`
	Name    string `json:"name"`
	Channel string `json:"channel"`
}

type positionUpdate struct {
	session uint32
	pos     [3]float32
}

// Client is the protocol core. All fields below the mutex are protected by
// it; the network goroutines and external callers share no other state.
type Client struct {
	mu     sync.Mutex
	logger zerolog.Logger
	bus    *events.EventBus

	state  *state.Store
	crypt  *cryptstate.CryptState
	input  audio.Input
	output audio.Output

	tlsBase *tls.Config

	info      ConnectionInfo
	conn      net.Conn // active TLS control stream, nil when down
	tlsActive bool

	udp       *net.UDPConn
	udpRemote *net.UDPAddr
	hasUDP    bool

	tcpPings         pingWindow
	udpPings         pingWindow
	inFlightTCPPings int
	timeSinceJoin    time.Time
	nextPing         time.Time

	curManualChannel    string
	lastManualChannel   string
	curChannelListens   map[string]struct{}
	lastChannelListens  map[string]struct{}
	pendingVoiceTargets map[uint8]VoiceTargetConfig
	voiceTarget         uint8

	positionHook    PositionHook
	positionUpdates chan positionUpdate

	connectDone chan ConnectionInfo

	cancel      context.CancelFunc
	supervising bool

	now func() time.Time
}

// New creates a Client. The TLS config is used as a template for every
// dial; tlsBase may be nil for a default (verifying) client. The audio
// interfaces may be the Nop implementations when the embedder drives voice
// frames itself.
func New(bus *events.EventBus, input audio.Input, output audio.Output, tlsBase *tls.Config) *Client {
	if tlsBase == nil {
		tlsBase = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := &Client{
		logger:              util.ComponentLogger("mumble"),
		bus:                 bus,
		state:               state.NewStore(),
		crypt:               cryptstate.New(),
		input:               input,
		output:              output,
		tlsBase:             tlsBase,
		curChannelListens:   make(map[string]struct{}),
		lastChannelListens:  make(map[string]struct{}),
		pendingVoiceTargets: make(map[uint8]VoiceTargetConfig),
		positionUpdates:     make(chan positionUpdate, positionQueueSize),
		now:                 time.Now,
	}

	c.bindUDP()
	return c
}

// Connect arms the connection state machine towards address and returns a
// channel that delivers the connection info once the server has completed
// sync. If an attempt fails before sync, the handle stays pending while the
// supervisor retries and resolves on the first successful sync. Each call
// replaces the pending handle; a handle replaced by a later Connect is never
// resolved.
func (c *Client) Connect(address, username string) <-chan ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info.Address = address
	c.info.Username = username

	if c.curManualChannel == "" {
		c.curManualChannel = "Root"
	} else {
		c.lastManualChannel = "Root"
	}

	c.tcpPings.reset()
	c.udpPings.reset()
	c.state.SetUsername(username)

	done := make(chan ConnectionInfo, 1)
	c.connectDone = done

	if !c.supervising {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.supervising = true
		go c.supervise(ctx)
	}

	return done
}

// Disconnect tears the connection down gracefully and returns a channel
// closed once the control socket is gone. Pending reconnect timers are
// cancelled; desired state survives for the next Connect.
func (c *Client) Disconnect() <-chan struct{} {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.supervising = false
	conn := c.conn
	c.info = ConnectionInfo{}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}
		close(done)
	}()
	return done
}

// Close releases all resources, including the UDP socket.
func (c *Client) Close() {
	<-c.Disconnect()

	c.mu.Lock()
	udp := c.udp
	c.udp = nil
	c.mu.Unlock()

	if udp != nil {
		udp.Close()
	}
}

// SetChannel updates the desired channel. The reconciler picks the change
// up on its next tick. Identical names and calls while disconnected are
// no-ops.
func (c *Client) SetChannel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.info.IsConnected {
		return
	}
	if name == c.curManualChannel {
		return
	}
	c.curManualChannel = name
}

// AddListenChannel adds a channel name to the desired listen set.
func (c *Client) AddListenChannel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.curChannelListens[name] = struct{}{}
}

// RemoveListenChannel removes a channel name from the desired listen set.
func (c *Client) RemoveListenChannel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.curChannelListens, name)
}

// SetVoiceTarget selects the target id used for outgoing voice; 0 is
// normal talking.
func (c *Client) SetVoiceTarget(idx uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voiceTarget = idx
}

// VoiceTarget returns the currently selected target id.
func (c *Client) VoiceTarget() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceTarget
}

// UpdateVoiceTarget queues a rebuild of the given routing rule. It is
// flushed to the server on the next reconciler tick.
func (c *Client) UpdateVoiceTarget(idx uint8, config VoiceTargetConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingVoiceTargets[idx] = config
}

// SetPositionHook installs the positional override callback.
func (c *Client) SetPositionHook(hook PositionHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positionHook = hook
}

// GetConnectionInfo returns a copy of the connection info.
func (c *Client) GetConnectionInfo() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// GetStats returns a snapshot of transport health.
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		HasUDP:       c.hasUDP,
		TCPPingAvg:   c.tcpPings.average(),
		TCPPingVar:   c.tcpPings.variance(),
		TCPPackets:   c.tcpPings.count,
		UDPPingAvg:   c.udpPings.average(),
		UDPPingVar:   c.udpPings.variance(),
		UDPPackets:   c.udpPings.count,
		CryptGood:    c.crypt.LocalGood,
		CryptLate:    c.crypt.LocalLate,
		CryptLost:    c.crypt.LocalLost,
		CryptResync:  c.crypt.LocalResync,
		RemoteGood:   c.crypt.RemoteGood,
		RemoteLate:   c.crypt.RemoteLate,
		RemoteLost:   c.crypt.RemoteLost,
		RemoteResync: c.crypt.RemoteResync,
	}
}

// GetChannels returns a snapshot of the known channels.
func (c *Client) GetChannels() []ChannelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ChannelInfo, 0, len(c.state.Channels()))
	for _, ch := range c.state.Channels() {
		out = append(out, ChannelInfo{ID: ch.ID, Parent: ch.Parent, Name: ch.Name, Temporary: ch.Temporary})
	}
	return out
}

// GetUsers returns a snapshot of the known users.
func (c *Client) GetUsers() []UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]UserInfo, 0, c.state.UserCount())
	c.state.ForAllUsers(func(u *state.User) {
		info := UserInfo{Session: u.Session, Name: u.Name}
		if ch, ok := c.state.Channels()[u.ChannelID]; ok {
			info.Channel = ch.Name
		}
		out = append(out, info)
	})
	return out
}

// GetTalkers returns the display names of everyone currently talking,
// including ourselves when the input is live.
func (c *Client) GetTalkers() []string {
	sessions := c.output.Talkers()

	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for _, session := range sessions {
		if u := c.state.User(session); u != nil {
			names = append(names, u.Name)
		}
	}
	if c.input.IsTalking() {
		names = append(names, c.state.Username())
	}
	return names
}

// IsAnyoneTalking reports whether any remote user is talking.
func (c *Client) IsAnyoneTalking() bool {
	return len(c.output.Talkers()) > 0
}

// DoesChannelExist reports whether a channel with the given name is known.
func (c *Client) DoesChannelExist(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.state.ChannelByName(name)
	return ok
}

// PlayerNameFromServerID resolves a stable server id to a display name.
func (c *Client) PlayerNameFromServerID(serverID uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var name string
	c.state.ForAllUsers(func(u *state.User) {
		if name == "" && u.ServerID == serverID {
			name = u.Name
		}
	})
	return name
}

// VoiceChannelFromServerID resolves a stable server id to the name of the
// channel its user currently occupies.
func (c *Client) VoiceChannelFromServerID(serverID uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var channel string
	c.state.ForAllUsers(func(u *state.User) {
		if channel != "" || u.ServerID != serverID {
			return
		}
		if ch, ok := c.state.Channels()[u.ChannelID]; ok {
			channel = ch.Name
		}
	})
	return channel
}

// SetClientVolumeOverride adjusts the playback volume of a named user.
func (c *Client) SetClientVolumeOverride(name string, volume float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.ForAllUsers(func(u *state.User) {
		if u.Name == name {
			c.output.HandleVolumeOverride(u, volume)
		}
	})
}

// SetClientVolumeOverrideByServerID adjusts the playback volume of a user
// identified by stable server id.
func (c *Client) SetClientVolumeOverrideByServerID(serverID uint32, volume float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.ForAllUsers(func(u *state.User) {
		if u.ServerID == serverID {
			c.output.HandleVolumeOverride(u, volume)
		}
	})
}

// Audio forwarding. These touch no protocol state; they exist so embedders
// hold a single handle.

func (c *Client) SetActivationMode(mode audio.ActivationMode)     { c.input.SetActivationMode(mode) }
func (c *Client) SetActivationLikelihood(l audio.VoiceLikelihood) { c.input.SetActivationLikelihood(l) }
func (c *Client) SetPTTButtonState(pressed bool)                  { c.input.SetPTTButtonState(pressed) }
func (c *Client) SetActorPosition(pos [3]float32)                 { c.input.SetPosition(pos) }
func (c *Client) SetListenerMatrix(pos, front, up [3]float32)     { c.output.SetMatrix(pos, front, up) }
func (c *Client) SetOutputVolume(volume float32)                  { c.output.SetVolume(volume) }
func (c *Client) GetAudioDistance() float32                       { return c.output.Distance() }
func (c *Client) SetAudioInputDistance(distance float32)          { c.input.SetDistance(distance) }
func (c *Client) SetAudioOutputDistance(distance float32)         { c.output.SetDistance(distance) }

// SetAudioDistance sets the audible range on both ends.
func (c *Client) SetAudioDistance(distance float32) {
	c.input.SetDistance(distance)
	c.output.SetDistance(distance)
}

// emit publishes a bus event without holding up the caller. Safe to call
// with the client mutex held; handlers run on their own goroutines.
func (c *Client) emit(typ events.EventType, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(context.Background(), events.Event{Type: typ, Source: "mumble", Payload: payload})
}
