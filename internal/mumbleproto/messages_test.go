package mumbleproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestVersionRoundTrip(t *testing.T) {
	in := &Version{
		Version:   Uint32(0x00010204),
		Release:   String("Murmurlink"),
		OS:        String("linux"),
		OSVersion: String("debian 12"),
	}

	var out Version
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, uint32(0x00010204), *out.Version)
	assert.Equal(t, "Murmurlink", *out.Release)
	assert.Equal(t, "linux", *out.OS)
	assert.Equal(t, "debian 12", *out.OSVersion)
}

func TestPingRoundTrip(t *testing.T) {
	in := &Ping{
		Timestamp:  Uint64(1234567890),
		Good:       Uint32(10),
		Late:       Uint32(1),
		Lost:       Uint32(2),
		Resync:     Uint32(0),
		TCPPackets: Uint32(7),
		TCPPingAvg: Float32(42.5),
		TCPPingVar: Float32(1.25),
		UDPPingAvg: Float32(13.0),
	}

	var out Ping
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, uint64(1234567890), *out.Timestamp)
	assert.Equal(t, uint32(10), *out.Good)
	assert.Equal(t, uint32(2), *out.Lost)
	assert.Equal(t, float32(42.5), *out.TCPPingAvg)
	assert.Equal(t, float32(13.0), *out.UDPPingAvg)
	assert.Nil(t, out.UDPPingVar)
}

func TestUserStateRoundTrip(t *testing.T) {
	in := &UserState{
		Session:                Uint32(42),
		Name:                   String("alice"),
		ChannelID:              Uint32(0), // root channel: zero must survive
		ListeningChannelAdd:    []uint32{3, 5},
		ListeningChannelRemove: []uint32{7},
	}

	var out UserState
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, uint32(42), *out.Session)
	assert.Equal(t, "alice", *out.Name)
	require.NotNil(t, out.ChannelID)
	assert.Equal(t, uint32(0), *out.ChannelID)
	assert.Equal(t, []uint32{3, 5}, out.ListeningChannelAdd)
	assert.Equal(t, []uint32{7}, out.ListeningChannelRemove)
	assert.Nil(t, out.UserID)
}

func TestUserStatePackedListens(t *testing.T) {
	// Some servers pack repeated varint fields; both forms must parse.
	var b []byte
	b = protowire.AppendTag(b, 21, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{3, 5, 9})

	var out UserState
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, []uint32{3, 5, 9}, out.ListeningChannelAdd)
}

func TestChannelStateRoundTrip(t *testing.T) {
	in := &ChannelState{
		ChannelID: Uint32(42),
		Parent:    Uint32(0),
		Name:      String("Squad7"),
		Temporary: Bool(true),
	}

	var out ChannelState
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, uint32(42), *out.ChannelID)
	assert.Equal(t, "Squad7", *out.Name)
	assert.True(t, *out.Temporary)
}

func TestCryptSetupRoundTrip(t *testing.T) {
	in := &CryptSetup{
		Key:         []byte{1, 2, 3},
		ClientNonce: []byte{4, 5},
		ServerNonce: []byte{6},
	}

	var out CryptSetup
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, []byte{1, 2, 3}, out.Key)
	assert.Equal(t, []byte{4, 5}, out.ClientNonce)
	assert.Equal(t, []byte{6}, out.ServerNonce)

	// An empty CryptSetup is a valid resync request.
	empty := &CryptSetup{}
	assert.Empty(t, empty.Marshal())
}

func TestVoiceTargetRoundTrip(t *testing.T) {
	in := &VoiceTarget{
		ID: Uint32(3),
		Targets: []*VoiceTargetTarget{
			{Session: []uint32{10, 11}},
			{ChannelID: Uint32(5)},
			{ChannelID: Uint32(9)},
		},
	}

	var out VoiceTarget
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, uint32(3), *out.ID)
	require.Len(t, out.Targets, 3)
	assert.Equal(t, []uint32{10, 11}, out.Targets[0].Session)
	assert.Nil(t, out.Targets[0].ChannelID)
	assert.Equal(t, uint32(5), *out.Targets[1].ChannelID)
	assert.Equal(t, uint32(9), *out.Targets[2].ChannelID)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	in := &ServerSync{Session: Uint32(7)}
	b := in.Marshal()

	// Append a field number this message does not define.
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future extension"))

	var out ServerSync
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, uint32(7), *out.Session)
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	in := &UserState{Session: Uint32(300), Name: String("bob")}
	b := in.Marshal()

	var out UserState
	assert.Error(t, out.Unmarshal(b[:len(b)-2]))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "UserState", TypeUserState.String())
	assert.Equal(t, "CryptSetup", TypeCryptSetup.String())
	assert.Equal(t, "Unknown", Type(200).String())
}
