// Package audio defines the narrow contracts between the protocol core and
// the audio subsystems. Capture, encoding, playback, and positional mixing
// live behind these interfaces; the core only routes opaque opus payloads
// and positional data through them.
package audio

import "github.com/murmurlink-project/murmurlink/internal/state"

// ActivationMode selects how the input decides to transmit.
type ActivationMode int

const (
	ActivationVoiceActivity ActivationMode = iota
	ActivationPushToTalk
)

// VoiceLikelihood tunes the voice-activity detector.
type VoiceLikelihood int

const (
	LikelihoodVeryLow VoiceLikelihood = iota
	LikelihoodLow
	LikelihoodModerate
	LikelihoodHigh
)

// Input is the capture side: it produces encoded voice frames and hands
// them to the client for transmission.
type Input interface {
	IsTalking() bool
	SetActivationMode(mode ActivationMode)
	SetActivationLikelihood(likelihood VoiceLikelihood)
	SetPTTButtonState(pressed bool)
	SetPosition(pos [3]float32)
	SetDistance(distance float32)
}

// Output is the playback side: it receives per-user voice frames, position
// updates, and distance hints from the voice router.
type Output interface {
	HandleVoiceData(user *state.User, sequence uint64, opus []byte, hasTerminator bool)
	HandlePosition(user *state.User, pos [3]float32)
	HandleDistance(user *state.User, distance float32)
	HandleVolumeOverride(user *state.User, volume float32)
	SetMatrix(position, front, up [3]float32)
	SetVolume(volume float32)
	SetDistance(distance float32)
	Distance() float32
	Talkers() []uint32
}

// NopInput is an Input that never talks. It keeps the client usable when
// the embedder drives voice frames itself via SendVoice.
type NopInput struct{}

func (NopInput) IsTalking() bool                         { return false }
func (NopInput) SetActivationMode(ActivationMode)        {}
func (NopInput) SetActivationLikelihood(VoiceLikelihood) {}
func (NopInput) SetPTTButtonState(bool)                  {}
func (NopInput) SetPosition([3]float32)                  {}
func (NopInput) SetDistance(float32)                     {}

// NopOutput discards everything it is handed.
type NopOutput struct {
	distance float32
}

func (*NopOutput) HandleVoiceData(*state.User, uint64, []byte, bool) {}
func (*NopOutput) HandlePosition(*state.User, [3]float32)            {}
func (*NopOutput) HandleDistance(*state.User, float32)               {}
func (*NopOutput) HandleVolumeOverride(*state.User, float32)         {}
func (*NopOutput) SetMatrix(_, _, _ [3]float32)                      {}
func (*NopOutput) SetVolume(float32)                                 {}
func (o *NopOutput) SetDistance(d float32)                           { o.distance = d }
func (o *NopOutput) Distance() float32                               { return o.distance }
func (*NopOutput) Talkers() []uint32                                 { return nil }
