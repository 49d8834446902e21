package client

import (
	"context"
	"time"

	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
	"github.com/murmurlink-project/murmurlink/internal/state"
)

// reconcileLoop ticks the reconciler while the connection that spawned it
// is alive. It starts only after the TLS session is active.
func (c *Client) reconcileLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.reconcile(c.now())
		}
	}
}

// reconcile runs one tick: diff the desired channel, listen set, and voice
// targets against the server state, then handle the ping cadence. It never
// mutates the state store; only inbound dispatch does that.
func (c *Client) reconcile(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tlsActive || !c.info.IsConnected || c.conn == nil {
		return
	}

	// Self-channel tracking runs first: whatever channel the server has us
	// in is the baseline the desired channel is diffed against. Running it
	// after the diff would clobber a just-sent join and re-emit it on the
	// next tick even though the server already acknowledged.
	c.trackSelfChannelLocked()
	c.reconcileChannelLocked()
	c.reconcileListensLocked()
	c.flushVoiceTargetsLocked()
	c.pingTickLocked(now)
}

// reconcileChannelLocked moves us towards the desired channel: join it if
// the server knows it, otherwise ask for a temporary channel of that name
// and let a later tick perform the join once the server announces it.
func (c *Client) reconcileChannelLocked() {
	if c.curManualChannel == "" || c.curManualChannel == c.lastManualChannel || len(c.state.Channels()) == 0 {
		return
	}

	c.lastManualChannel = c.curManualChannel

	if id, ok := c.state.ChannelByName(c.curManualChannel); ok {
		c.sendLocked(&mumbleproto.UserState{
			Session:   mumbleproto.Uint32(c.state.Session()),
			ChannelID: mumbleproto.Uint32(id),
		})
		return
	}

	// The channel does not exist yet; create it (the server will verify
	// the name matches its rules, or reject).
	c.sendLocked(&mumbleproto.ChannelState{
		Parent:    mumbleproto.Uint32(0),
		Name:      mumbleproto.String(c.curManualChannel),
		Temporary: mumbleproto.Bool(true),
	})
}

// reconcileListensLocked diffs the desired listen set against what we last
// told the server, and sends one UserState carrying both delta lists.
// Names the server does not know yet stay pending on the add side and are
// retried next tick; unknown names on the remove side are simply dropped.
func (c *Client) reconcileListensLocked() {
	var removeIDs, addIDs []uint32

	for name := range c.lastChannelListens {
		if _, still := c.curChannelListens[name]; still {
			continue
		}
		if id, ok := c.state.ChannelByName(name); ok {
			removeIDs = append(removeIDs, id)
		}
		// Gone either way: we no longer listen to it.
		delete(c.lastChannelListens, name)
	}

	for name := range c.curChannelListens {
		if _, sent := c.lastChannelListens[name]; sent {
			continue
		}
		if id, ok := c.state.ChannelByName(name); ok {
			addIDs = append(addIDs, id)
			c.lastChannelListens[name] = struct{}{}
		}
	}

	if len(addIDs) == 0 && len(removeIDs) == 0 {
		return
	}

	c.sendLocked(&mumbleproto.UserState{
		Session:                mumbleproto.Uint32(c.state.Session()),
		ListeningChannelAdd:    addIDs,
		ListeningChannelRemove: removeIDs,
	})
}

// flushVoiceTargetsLocked sends every pending voice-target rebuild. All
// resolved users share one sub-target; channel targeting happens per
// channel, so each resolved channel gets its own sub-target. Unresolved
// names contribute nothing. The pending map is drained regardless.
func (c *Client) flushVoiceTargetsLocked() {
	for idx, config := range c.pendingVoiceTargets {
		target := &mumbleproto.VoiceTarget{ID: mumbleproto.Uint32(uint32(idx))}

		users := &mumbleproto.VoiceTargetTarget{}
		for _, userName := range config.Users {
			c.state.ForAllUsers(func(u *state.User) {
				if u.Name == userName {
					users.Session = append(users.Session, u.Session)
				}
			})
		}
		target.Targets = append(target.Targets, users)

		for _, channelName := range config.Channels {
			for id, ch := range c.state.Channels() {
				if ch.Name == channelName {
					target.Targets = append(target.Targets, &mumbleproto.VoiceTargetTarget{
						ChannelID: mumbleproto.Uint32(id),
					})
				}
			}
		}

		c.sendLocked(target)
	}

	if len(c.pendingVoiceTargets) > 0 {
		c.pendingVoiceTargets = make(map[uint8]VoiceTargetConfig)
	}
}

// trackSelfChannelLocked follows server-side moves: whatever channel our
// session ends up in becomes the new baseline, so external SetChannel
// calls stay idempotent.
func (c *Client) trackSelfChannelLocked() {
	self := c.state.User(c.state.Session())
	if self == nil {
		return
	}
	if ch, ok := c.state.Channels()[self.ChannelID]; ok && ch.Name != "" {
		c.lastManualChannel = ch.Name
	}
}

// pingTickLocked drives the 1 s ping cadence: reset the connection after
// too many unanswered control pings, then emit the control Ping and the
// UDP keepalive datagram.
func (c *Client) pingTickLocked(now time.Time) {
	if !c.nextPing.IsZero() && now.Before(c.nextPing) {
		return
	}

	// Reset the connection when we're at 4 or more unanswered pings and we
	// haven't just connected.
	if c.inFlightTCPPings >= maxInFlightTCPPings && now.Sub(c.timeSinceJoin) > connectionGracePeriod {
		c.logger.Warn().
			Int("in_flight", c.inFlightTCPPings).
			Msg("server is not responding to TCP pings, resetting connection")
		c.info.IsConnected = false
		c.info.IsConnecting = false
		if c.conn != nil {
			c.conn.Close()
		}
	}

	c.inFlightTCPPings++

	c.sendLocked(&mumbleproto.Ping{
		Timestamp:  mumbleproto.Uint64(uint64(now.UnixMilli())),
		Good:       mumbleproto.Uint32(c.crypt.LocalGood),
		Late:       mumbleproto.Uint32(c.crypt.LocalLate),
		Lost:       mumbleproto.Uint32(c.crypt.LocalLost),
		Resync:     mumbleproto.Uint32(c.crypt.LocalResync),
		TCPPackets: mumbleproto.Uint32(c.tcpPings.count),
		TCPPingAvg: mumbleproto.Float32(c.tcpPings.average()),
		TCPPingVar: mumbleproto.Float32(c.tcpPings.variance()),
		UDPPackets: mumbleproto.Uint32(c.udpPings.count),
		UDPPingAvg: mumbleproto.Float32(c.udpPings.average()),
		UDPPingVar: mumbleproto.Float32(c.udpPings.variance()),
	})

	// Send a UDP ping even when tunnelling: it is what eventually
	// re-punches the NAT path and reinitializes us on the server.
	c.sendUDPPingLocked(now)

	c.nextPing = now.Add(pingInterval)
}
