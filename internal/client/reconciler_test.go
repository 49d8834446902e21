package client

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestReconcileJoinsExistingChannel(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root", 1: "Lobby"})

	c.SetChannel("Lobby")
	c.reconcile(t0)

	frames := sink.waitFrames(t, mumbleproto.TypeUserState, 1)
	var us mumbleproto.UserState
	require.NoError(t, us.Unmarshal(frames[0].Payload))
	assert.Equal(t, uint32(7), *us.Session)
	assert.Equal(t, uint32(1), *us.ChannelID)

	// Server acknowledges by moving us; the next tick must stay quiet.
	c.mu.Lock()
	c.state.User(7).ChannelID = 1
	c.mu.Unlock()

	c.reconcile(t0.Add(reconcileInterval))
	sink.settle()
	assert.Len(t, sink.byType(mumbleproto.TypeUserState), 1)

	c.mu.Lock()
	assert.Equal(t, "Lobby", c.lastManualChannel)
	c.mu.Unlock()
}

func TestReconcileCreatesMissingChannel(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root"})

	c.SetChannel("Squad7")
	c.reconcile(t0)

	frames := sink.waitFrames(t, mumbleproto.TypeChannelState, 1)
	var cs mumbleproto.ChannelState
	require.NoError(t, cs.Unmarshal(frames[0].Payload))
	assert.Equal(t, uint32(0), *cs.Parent)
	assert.Equal(t, "Squad7", *cs.Name)
	assert.True(t, *cs.Temporary)
	sink.settle()
	assert.Empty(t, sink.byType(mumbleproto.TypeUserState))

	// The server announces the created channel; the next tick joins it.
	c.mu.Lock()
	ch := c.state.UpsertChannel(42)
	ch.Name = "Squad7"
	ch.Temporary = true
	c.mu.Unlock()

	c.reconcile(t0.Add(reconcileInterval))

	joins := sink.waitFrames(t, mumbleproto.TypeUserState, 1)
	var us mumbleproto.UserState
	require.NoError(t, us.Unmarshal(joins[0].Payload))
	assert.Equal(t, uint32(42), *us.ChannelID)
}

func TestReconcileListenDiff(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root", 1: "A", 2: "B"})

	// Add A, add B, remove A before any tick: A must never hit the wire.
	c.AddListenChannel("A")
	c.AddListenChannel("B")
	c.RemoveListenChannel("A")

	c.reconcile(t0)

	frames := sink.waitFrames(t, mumbleproto.TypeUserState, 1)
	var us mumbleproto.UserState
	require.NoError(t, us.Unmarshal(frames[0].Payload))
	assert.Equal(t, []uint32{2}, us.ListeningChannelAdd)
	assert.Empty(t, us.ListeningChannelRemove)

	// Converged: a second tick emits no further listen deltas.
	c.reconcile(t0.Add(reconcileInterval))
	sink.settle()
	assert.Len(t, sink.byType(mumbleproto.TypeUserState), 1)

	// Removing B resolves and emits the remove side.
	c.RemoveListenChannel("B")
	c.reconcile(t0.Add(2 * reconcileInterval))

	frames = sink.waitFrames(t, mumbleproto.TypeUserState, 2)
	var us2 mumbleproto.UserState
	require.NoError(t, us2.Unmarshal(frames[1].Payload))
	assert.Empty(t, us2.ListeningChannelAdd)
	assert.Equal(t, []uint32{2}, us2.ListeningChannelRemove)
}

func TestReconcileListenUnresolvedStaysPending(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root"})

	c.AddListenChannel("Ghost")
	c.reconcile(t0)
	sink.settle()
	assert.Empty(t, sink.byType(mumbleproto.TypeUserState))

	// Once the server knows the channel, the pending add resolves.
	c.mu.Lock()
	c.state.UpsertChannel(9).Name = "Ghost"
	c.mu.Unlock()

	c.reconcile(t0.Add(reconcileInterval))

	frames := sink.waitFrames(t, mumbleproto.TypeUserState, 1)
	var us mumbleproto.UserState
	require.NoError(t, us.Unmarshal(frames[0].Payload))
	assert.Equal(t, []uint32{9}, us.ListeningChannelAdd)
}

func TestReconcileFlushesVoiceTargets(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root", 1: "A", 2: "B"})

	c.mu.Lock()
	c.state.UpsertUser(10).Name = "alice"
	c.state.UpsertUser(11).Name = "bob"
	c.mu.Unlock()

	c.UpdateVoiceTarget(3, VoiceTargetConfig{
		Users:    []string{"alice", "bob", "nobody"},
		Channels: []string{"A", "B", "Ghost"},
	})

	c.reconcile(t0)

	frames := sink.waitFrames(t, mumbleproto.TypeVoiceTarget, 1)
	var vt mumbleproto.VoiceTarget
	require.NoError(t, vt.Unmarshal(frames[0].Payload))
	assert.Equal(t, uint32(3), *vt.ID)

	// One sub-target aggregates the resolved users, then one per channel.
	require.Len(t, vt.Targets, 3)
	sessions := append([]uint32(nil), vt.Targets[0].Session...)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })
	assert.Equal(t, []uint32{10, 11}, sessions)

	var channelIDs []uint32
	for _, target := range vt.Targets[1:] {
		require.NotNil(t, target.ChannelID)
		channelIDs = append(channelIDs, *target.ChannelID)
	}
	sort.Slice(channelIDs, func(i, j int) bool { return channelIDs[i] < channelIDs[j] })
	assert.Equal(t, []uint32{1, 2}, channelIDs)

	// The pending map drains exactly once.
	c.reconcile(t0.Add(reconcileInterval))
	sink.settle()
	assert.Len(t, sink.byType(mumbleproto.TypeVoiceTarget), 1)
}

func TestReconcilePingCadence(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root"})

	c.reconcile(t0)
	sink.waitFrames(t, mumbleproto.TypePing, 1)

	// 500 ms later the gate is still closed.
	c.reconcile(t0.Add(reconcileInterval))
	sink.settle()
	assert.Len(t, sink.byType(mumbleproto.TypePing), 1)

	// At the full second it opens again.
	c.reconcile(t0.Add(pingInterval))
	sink.waitFrames(t, mumbleproto.TypePing, 2)

	frames := sink.byType(mumbleproto.TypePing)
	var ping mumbleproto.Ping
	require.NoError(t, ping.Unmarshal(frames[0].Payload))
	assert.Equal(t, uint64(t0.UnixMilli()), *ping.Timestamp)
	require.NotNil(t, ping.Good)
}

func TestReconcileIdleWhenDisconnected(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root", 1: "Lobby"})

	c.SetChannel("Lobby")

	c.mu.Lock()
	c.info.IsConnected = false
	c.mu.Unlock()

	c.reconcile(t0)
	sink.settle()
	assert.Empty(t, sink.all())
}

func TestReconcileSingleTickBudget(t *testing.T) {
	c, sink := newTestClient(t, nil)
	seedChannels(c, 7, map[uint32]string{0: "Root", 1: "Lobby", 2: "A"})

	c.SetChannel("Lobby")
	c.AddListenChannel("A")
	c.UpdateVoiceTarget(1, VoiceTargetConfig{Channels: []string{"A"}})

	c.reconcile(t0)
	sink.waitFrames(t, mumbleproto.TypePing, 1)
	sink.settle()

	// One channel move, one listen delta, one voice target, one ping.
	assert.Len(t, sink.byType(mumbleproto.TypeUserState), 2)
	assert.Len(t, sink.byType(mumbleproto.TypeVoiceTarget), 1)
	assert.Len(t, sink.byType(mumbleproto.TypePing), 1)
	assert.Len(t, sink.all(), 4)
}
