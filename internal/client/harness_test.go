package client

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/murmurlink-project/murmurlink/internal/audio"
	"github.com/murmurlink-project/murmurlink/internal/cryptstate"
	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
	"github.com/murmurlink-project/murmurlink/internal/protocol"
	"github.com/murmurlink-project/murmurlink/internal/state"
)

// frameSink collects the framed control messages a test client writes, by
// playing the server end of a net.Pipe.
type frameSink struct {
	mu     sync.Mutex
	frames []protocol.Message
}

func newFrameSink(conn net.Conn) *frameSink {
	s := &frameSink{}
	go func() {
		for {
			msg, err := protocol.ReadMessage(conn)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.frames = append(s.frames, msg)
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *frameSink) all() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Message, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *frameSink) byType(typ mumbleproto.Type) []protocol.Message {
	var out []protocol.Message
	for _, msg := range s.all() {
		if mumbleproto.Type(msg.Type) == typ {
			out = append(out, msg)
		}
	}
	return out
}

// waitFrames polls until at least n frames of the given type arrived. The
// pipe write blocks until the sink has consumed the bytes, so the window
// between a reconcile call and the frame landing here is tiny.
func (s *frameSink) waitFrames(t *testing.T, typ mumbleproto.Type, n int) []protocol.Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if frames := s.byType(typ); len(frames) >= n {
			return frames
		}
		time.Sleep(time.Millisecond)
	}
	frames := s.byType(typ)
	require.GreaterOrEqual(t, len(frames), n, "timed out waiting for %s frames", typ)
	return frames
}

// settle gives in-flight frames a moment to land before counting.
func (s *frameSink) settle() {
	time.Sleep(10 * time.Millisecond)
}

// recordedVoice captures one HandleVoiceData call.
type recordedVoice struct {
	session    uint32
	sequence   uint64
	opus       []byte
	terminator bool
}

// recordingOutput is an audio.Output that remembers what it was handed.
type recordingOutput struct {
	mu        sync.Mutex
	voices    []recordedVoice
	positions map[uint32][3]float32
	distances []float32
	talkers   []uint32
}

func newRecordingOutput() *recordingOutput {
	return &recordingOutput{positions: make(map[uint32][3]float32)}
}

func (o *recordingOutput) HandleVoiceData(u *state.User, seq uint64, opus []byte, term bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.voices = append(o.voices, recordedVoice{session: u.Session, sequence: seq, opus: opus, terminator: term})
}

func (o *recordingOutput) HandlePosition(u *state.User, pos [3]float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.positions[u.Session] = pos
}

func (o *recordingOutput) HandleDistance(u *state.User, d float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.distances = append(o.distances, d)
}

func (o *recordingOutput) HandleVolumeOverride(*state.User, float32) {}
func (o *recordingOutput) SetMatrix(_, _, _ [3]float32)              {}
func (o *recordingOutput) SetVolume(float32)                         {}
func (o *recordingOutput) SetDistance(float32)                       {}
func (o *recordingOutput) Distance() float32                         { return 0 }

func (o *recordingOutput) Talkers() []uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.talkers
}

// newTestClient returns a client wired to an in-memory control stream, in
// the connected state, with a fixed clock.
func newTestClient(t *testing.T, output audio.Output) (*Client, *frameSink) {
	t.Helper()

	if output == nil {
		output = &audio.NopOutput{}
	}

	c := New(nil, audio.NopInput{}, output, nil)

	serverSide, clientSide := net.Pipe()
	sink := newFrameSink(serverSide)

	c.mu.Lock()
	c.conn = clientSide
	c.tlsActive = true
	c.info = ConnectionInfo{Address: "voice.example.com:64738", Username: "local", IsConnected: true}
	c.mu.Unlock()

	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
		if c.udp != nil {
			c.udp.Close()
		}
	})

	return c, sink
}

// installCrypt gives the client a working crypt state.
func installCrypt(t *testing.T, c *Client) {
	t.Helper()
	key := bytes.Repeat([]byte{0x11}, cryptstate.KeySize)
	clientNonce := bytes.Repeat([]byte{0x22}, cryptstate.NonceSize)
	serverNonce := bytes.Repeat([]byte{0x33}, cryptstate.NonceSize)
	require.NoError(t, c.crypt.SetKey(key, clientNonce, serverNonce))
}

// seedChannels fills the state store with named channels and puts our own
// session into the first one.
func seedChannels(c *Client, session uint32, channels map[uint32]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, name := range channels {
		ch := c.state.UpsertChannel(id)
		ch.Name = name
	}
	c.state.SetSession(session)
	self := c.state.UpsertUser(session)
	self.Name = "local"
	self.ChannelID = 0
}
