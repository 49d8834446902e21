package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUsers(t *testing.T) {
	s := NewStore()

	u := s.UpsertUser(42)
	u.Name = "alice"
	u.ChannelID = 3

	// Upserting the same session returns the same user.
	again := s.UpsertUser(42)
	assert.Equal(t, "alice", again.Name)
	assert.Equal(t, 1, s.UserCount())

	assert.Nil(t, s.User(7))

	removed, ok := s.RemoveUser(42)
	require.True(t, ok)
	assert.Equal(t, "alice", removed.Name)
	assert.Equal(t, 0, s.UserCount())

	_, ok = s.RemoveUser(42)
	assert.False(t, ok)
}

func TestStoreChannels(t *testing.T) {
	s := NewStore()

	root := s.UpsertChannel(0)
	root.Name = "Root"

	lobby := s.UpsertChannel(5)
	lobby.Name = "Lobby"
	lobby.Parent = 0
	lobby.Temporary = true

	id, ok := s.ChannelByName("Lobby")
	require.True(t, ok)
	assert.Equal(t, uint32(5), id)

	_, ok = s.ChannelByName("lobby")
	assert.False(t, ok, "channel lookup is exact-match")

	s.RemoveChannel(5)
	_, ok = s.ChannelByName("Lobby")
	assert.False(t, ok)
	assert.Len(t, s.Channels(), 1)
}

func TestStoreSessionAndReset(t *testing.T) {
	s := NewStore()
	s.SetUsername("alice")
	s.SetSession(42)
	s.UpsertUser(42)
	s.UpsertChannel(0)

	s.Reset()

	assert.Equal(t, uint32(0), s.Session())
	assert.Equal(t, 0, s.UserCount())
	assert.Empty(t, s.Channels())
	assert.Equal(t, "alice", s.Username(), "username survives reset")
}

func TestStoreForAllUsers(t *testing.T) {
	s := NewStore()
	s.UpsertUser(1).Name = "a"
	s.UpsertUser(2).Name = "b"

	seen := map[string]bool{}
	s.ForAllUsers(func(u *User) { seen[u.Name] = true })
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}
