// Package events defines event types and payloads for the Murmurlink event
// system.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle events
	EventConnecting   EventType = "connecting"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventRejected     EventType = "rejected"

	// Server state events
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventUserMoved      EventType = "user_moved"
	EventChannelAdded   EventType = "channel_added"
	EventChannelRemoved EventType = "channel_removed"

	// Voice transport events
	EventUDPModeChanged EventType = "udp_mode_changed"
	EventPingUpdated    EventType = "ping_updated"
	EventCryptResync    EventType = "crypt_resync"

	// Messaging events
	EventTextMessage      EventType = "text_message"
	EventPermissionDenied EventType = "permission_denied"

	// System events
	EventShutdown EventType = "shutdown"
)

// Event is a single occurrence published on the bus.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ConnectedPayload accompanies EventConnected.
type ConnectedPayload struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Session  uint32 `json:"session"`
}

// DisconnectedPayload accompanies EventDisconnected.
type DisconnectedPayload struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// UserPayload accompanies the user join/leave/move events.
type UserPayload struct {
	Session uint32 `json:"session"`
	Name    string `json:"name"`
	Channel string `json:"channel,omitempty"`
}

// ChannelPayload accompanies the channel add/remove events.
type ChannelPayload struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Temporary bool   `json:"temporary"`
}

// UDPModePayload accompanies EventUDPModeChanged.
type UDPModePayload struct {
	HasUDP bool   `json:"has_udp"`
	Reason string `json:"reason"`
}

// PingPayload accompanies EventPingUpdated.
type PingPayload struct {
	TCPAvg float32 `json:"tcp_avg_ms"`
	TCPVar float32 `json:"tcp_var_ms"`
	UDPAvg float32 `json:"udp_avg_ms"`
	UDPVar float32 `json:"udp_var_ms"`
}

// TextMessagePayload accompanies EventTextMessage.
type TextMessagePayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}
