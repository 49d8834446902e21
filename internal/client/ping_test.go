package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
	"github.com/murmurlink-project/murmurlink/internal/protocol"
)

func TestPingWindowStats(t *testing.T) {
	var w pingWindow

	w.add(50)
	assert.Equal(t, uint32(1), w.count)
	assert.Equal(t, float32(50), w.average())
	assert.Equal(t, float32(0), w.variance())

	w.add(70)
	assert.Equal(t, float32(60), w.average())
	assert.Equal(t, float32(100), w.variance())
}

func TestPingWindowShiftsWhenFull(t *testing.T) {
	var w pingWindow

	for i := 0; i < pingWindowSize; i++ {
		w.add(10)
	}
	w.add(90)

	assert.Equal(t, uint32(pingWindowSize+1), w.count)
	assert.Equal(t, pingWindowSize, w.stored())
	assert.Equal(t, float32(15), w.average())
}

func TestUDPPingRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, nil)

	// The server loops our keepalive back 50 ms later.
	sent := t0.Add(-50 * time.Millisecond)
	var buf [9]byte
	ps := protocol.NewWriter(buf[:])
	ps.PutByte(udpPingHeader)
	ps.PutUint64(uint64(sent.UnixMilli()))
	require.True(t, ps.Ok())

	c.mu.Lock()
	c.handleVoiceLocked(ps.Data(), t0)
	c.mu.Unlock()

	stats := c.GetStats()
	assert.Equal(t, uint32(1), stats.UDPPackets)
	assert.InDelta(t, 50.0, stats.UDPPingAvg, 0.01)
	assert.Equal(t, float32(0), stats.UDPPingVar)
}

func TestPingReplyResetsInFlight(t *testing.T) {
	c, _ := newTestClient(t, nil)

	c.mu.Lock()
	c.inFlightTCPPings = 3
	c.handlePingLocked(&mumbleproto.Ping{}, t0)
	inFlight := c.inFlightTCPPings
	c.mu.Unlock()

	assert.Equal(t, 0, inFlight)
	assert.Equal(t, uint32(0), c.GetStats().TCPPackets, "no timestamp, no sample")
}

func TestPingReplyRecordsRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, nil)

	sent := t0.Add(-80 * time.Millisecond)
	c.mu.Lock()
	c.handlePingLocked(&mumbleproto.Ping{Timestamp: mumbleproto.Uint64(uint64(sent.UnixMilli()))}, t0)
	c.mu.Unlock()

	stats := c.GetStats()
	assert.Equal(t, uint32(1), stats.TCPPackets)
	assert.InDelta(t, 80.0, stats.TCPPingAvg, 0.01)
}

func TestUDPFallbackAndRecovery(t *testing.T) {
	c, _ := newTestClient(t, nil)
	installCrypt(t, c)

	c.mu.Lock()
	c.timeSinceJoin = t0.Add(-30 * time.Second)
	c.hasUDP = true
	c.crypt.LocalGood = 5
	c.mu.Unlock()

	dead := &mumbleproto.Ping{Good: mumbleproto.Uint32(0)}
	alive := &mumbleproto.Ping{Good: mumbleproto.Uint32(5)}

	// Server reports it never saw our UDP: fall back to the tunnel.
	c.mu.Lock()
	c.handlePingLocked(dead, t0)
	c.mu.Unlock()
	assert.False(t, c.GetStats().HasUDP)

	// Repeating the bad report doesn't flap anything.
	c.mu.Lock()
	c.handlePingLocked(dead, t0.Add(time.Second))
	c.mu.Unlock()
	assert.False(t, c.GetStats().HasUDP)

	// Both sides seeing traffic again flips us back exactly once.
	c.mu.Lock()
	c.handlePingLocked(alive, t0.Add(2*time.Second))
	c.mu.Unlock()
	assert.True(t, c.GetStats().HasUDP)
}

func TestUDPFallbackRespectsGracePeriod(t *testing.T) {
	c, _ := newTestClient(t, nil)
	installCrypt(t, c)

	// Young session: good==0 is expected while the path warms up.
	c.mu.Lock()
	c.timeSinceJoin = t0.Add(-5 * time.Second)
	c.hasUDP = true
	c.handlePingLocked(&mumbleproto.Ping{Good: mumbleproto.Uint32(0)}, t0)
	c.mu.Unlock()

	assert.True(t, c.GetStats().HasUDP)
}

func TestPingTimeoutResetsConnection(t *testing.T) {
	c, sink := newTestClient(t, nil)

	c.mu.Lock()
	c.timeSinceJoin = t0.Add(-30 * time.Second)
	c.mu.Unlock()

	// Four unanswered pings accumulate, the fifth tick pulls the plug.
	for i := 0; i < 5; i++ {
		c.reconcile(t0.Add(time.Duration(i) * time.Second))
	}
	sink.settle()

	assert.Len(t, sink.byType(mumbleproto.TypePing), 4)
	assert.False(t, c.GetConnectionInfo().IsConnected)

	// Further ticks are inert until the supervisor reconnects.
	c.reconcile(t0.Add(6 * time.Second))
	sink.settle()
	assert.Len(t, sink.byType(mumbleproto.TypePing), 4)
}
