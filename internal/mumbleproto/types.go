// Package mumbleproto models the Mumble control protocol messages. Payloads
// are protocol buffers; the messages here are hand-rolled against the
// upstream field numbers and marshalled with protowire, which keeps the
// dependency surface to the wire layer without a codegen step.
package mumbleproto

// Type identifies a control message on the TLS stream. The numeric values
// are fixed by the Mumble protocol.
type Type uint16

const (
	TypeVersion             Type = 0
	TypeUDPTunnel           Type = 1
	TypeAuthenticate        Type = 2
	TypePing                Type = 3
	TypeReject              Type = 4
	TypeServerSync          Type = 5
	TypeChannelRemove       Type = 6
	TypeChannelState        Type = 7
	TypeUserRemove          Type = 8
	TypeUserState           Type = 9
	TypeBanList             Type = 10
	TypeTextMessage         Type = 11
	TypePermissionDenied    Type = 12
	TypeACL                 Type = 13
	TypeQueryUsers          Type = 14
	TypeCryptSetup          Type = 15
	TypeContextActionModify Type = 16
	TypeContextAction       Type = 17
	TypeUserList            Type = 18
	TypeVoiceTarget         Type = 19
	TypePermissionQuery     Type = 20
	TypeCodecVersion        Type = 21
	TypeUserStats           Type = 22
	TypeRequestBlob         Type = 23
	TypeServerConfig        Type = 24
	TypeSuggestConfig       Type = 25
)

// String returns the protocol name of the message type.
func (t Type) String() string {
	names := map[Type]string{
		TypeVersion:             "Version",
		TypeUDPTunnel:           "UDPTunnel",
		TypeAuthenticate:        "Authenticate",
		TypePing:                "Ping",
		TypeReject:              "Reject",
		TypeServerSync:          "ServerSync",
		TypeChannelRemove:       "ChannelRemove",
		TypeChannelState:        "ChannelState",
		TypeUserRemove:          "UserRemove",
		TypeUserState:           "UserState",
		TypeBanList:             "BanList",
		TypeTextMessage:         "TextMessage",
		TypePermissionDenied:    "PermissionDenied",
		TypeACL:                 "ACL",
		TypeQueryUsers:          "QueryUsers",
		TypeCryptSetup:          "CryptSetup",
		TypeContextActionModify: "ContextActionModify",
		TypeContextAction:       "ContextAction",
		TypeUserList:            "UserList",
		TypeVoiceTarget:         "VoiceTarget",
		TypePermissionQuery:     "PermissionQuery",
		TypeCodecVersion:        "CodecVersion",
		TypeUserStats:           "UserStats",
		TypeRequestBlob:         "RequestBlob",
		TypeServerConfig:        "ServerConfig",
		TypeSuggestConfig:       "SuggestConfig",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return "Unknown"
}

// Pointer helpers, in the style of the protobuf generated API.

func Uint32(v uint32) *uint32    { return &v }
func Uint64(v uint64) *uint64    { return &v }
func Int32(v int32) *int32       { return &v }
func String(v string) *string    { return &v }
func Bool(v bool) *bool          { return &v }
func Float32(v float32) *float32 { return &v }
