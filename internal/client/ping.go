package client

import (
	"time"

	"github.com/murmurlink-project/murmurlink/internal/events"
	"github.com/murmurlink-project/murmurlink/internal/mumbleproto"
)

// pingWindowSize is the number of round-trip samples kept per transport.
const pingWindowSize = 16

// pingWindow is a fixed-size ring of round-trip samples in milliseconds.
// It has a single writer (the network loop); snapshots are taken under the
// client mutex.
type pingWindow struct {
	samples [pingWindowSize]float64
	count   uint32
}

func (w *pingWindow) reset() {
	*w = pingWindow{}
}

// add records a sample, shifting the oldest one out once the window is
// full.
func (w *pingWindow) add(ms float64) {
	w.count++
	slot := int(w.count - 1)
	if slot >= pingWindowSize {
		copy(w.samples[:], w.samples[1:])
		slot = pingWindowSize - 1
	}
	w.samples[slot] = ms
}

func (w *pingWindow) stored() int {
	if w.count < pingWindowSize {
		return int(w.count)
	}
	return pingWindowSize
}

// average returns the mean over the stored samples.
func (w *pingWindow) average() float32 {
	n := w.stored()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return float32(sum / float64(n))
}

// variance returns the population variance over the stored samples.
func (w *pingWindow) variance() float32 {
	n := w.stored()
	if n == 0 {
		return 0
	}
	avg := float64(w.average())
	var sum float64
	for i := 0; i < n; i++ {
		d := w.samples[i] - avg
		sum += d * d
	}
	return float32(sum / float64(n))
}

// handlePingLocked processes a server Ping reply: it clears the in-flight
// counter, mirrors the server's crypt counters, drives the UDP<->TCP mode
// switch, and records the TCP round trip.
func (c *Client) handlePingLocked(ping *mumbleproto.Ping, now time.Time) {
	c.inFlightTCPPings = 0

	if c.crypt.Initialized() {
		// Mimic mumble's behavior for pings
		if ping.Good != nil {
			c.crypt.RemoteGood = *ping.Good
		}
		if ping.Late != nil {
			c.crypt.RemoteLate = *ping.Late
		}
		if ping.Lost != nil {
			c.crypt.RemoteLost = *ping.Lost
		}
		if ping.Resync != nil {
			c.crypt.RemoteResync = *ping.Resync
		}

		sessionAge := now.Sub(c.timeSinceJoin)

		if c.hasUDP && (c.crypt.RemoteGood == 0 || c.crypt.LocalGood == 0) && sessionAge > connectionGracePeriod {
			c.hasUDP = false
			var reason string
			switch {
			case c.crypt.RemoteGood == 0 && c.crypt.LocalGood == 0:
				reason = "the server couldn't send or receive our UDP packets"
			case c.crypt.RemoteGood == 0:
				reason = "our UDP packets are not being received by the server"
			default:
				reason = "we aren't receiving the server's UDP packets"
			}
			c.logger.Warn().Str("reason", reason).Msg("switching voice to TCP tunnel mode")
			c.emit(events.EventUDPModeChanged, events.UDPModePayload{HasUDP: false, Reason: reason})
		} else if !c.hasUDP && c.crypt.RemoteGood > 3 && c.crypt.LocalGood > 3 {
			c.hasUDP = true
			c.logger.Info().Msg("UDP packets can be received, switching voice to UDP mode")
			c.emit(events.EventUDPModeChanged, events.UDPModePayload{HasUDP: true, Reason: "udp recovered"})
		}
	}

	if ping.Timestamp != nil {
		delta := now.UnixMilli() - int64(*ping.Timestamp)
		c.tcpPings.add(float64(delta))
	}

	c.emit(events.EventPingUpdated, events.PingPayload{
		TCPAvg: c.tcpPings.average(),
		TCPVar: c.tcpPings.variance(),
		UDPAvg: c.udpPings.average(),
		UDPVar: c.udpPings.variance(),
	})
}
