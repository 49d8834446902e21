package mumbleproto

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is a control message payload that knows its wire type.
type Message interface {
	Type() Type
	Marshal() []byte
}

// Marshal helpers. Optional fields are emitted only when present; repeated
// varint fields are emitted unpacked, matching proto2 defaults.

func appendVarintOpt32(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendVarintOpt64(b []byte, num protowire.Number, v *uint64) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, *v)
}

func appendBoolOpt(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	if *v {
		return protowire.AppendVarint(b, 1)
	}
	return protowire.AppendVarint(b, 0)
}

func appendStringOpt(b []byte, num protowire.Number, v *string) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *v)
}

func appendBytesOpt(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendFloatOpt(b []byte, num protowire.Number, v *float32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(*v))
}

func appendVarintRep32(b []byte, num protowire.Number, vs []uint32) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func appendStringRep(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

// Unmarshal helpers.

func consumeVarint(data []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func consumeFixed32(data []byte) (uint32, []byte, error) {
	v, n := protowire.ConsumeFixed32(data)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func consumeBytes(data []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, nil, protowire.ParseError(n)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, data[n:], nil
}

func consumeString(data []byte) (string, []byte, error) {
	v, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

// consumeRep32 appends one repeated uint32 element, accepting both the
// unpacked varint form and the packed bytes form.
func consumeRep32(dst []uint32, typ protowire.Type, data []byte) ([]uint32, []byte, error) {
	if typ == protowire.BytesType {
		packed, rest, err := consumeBytes(data)
		if err != nil {
			return dst, nil, err
		}
		for len(packed) > 0 {
			v, n := protowire.ConsumeVarint(packed)
			if n < 0 {
				return dst, nil, protowire.ParseError(n)
			}
			dst = append(dst, uint32(v))
			packed = packed[n:]
		}
		return dst, rest, nil
	}
	v, rest, err := consumeVarint(data)
	if err != nil {
		return dst, nil, err
	}
	return append(dst, uint32(v)), rest, nil
}

func skipField(num protowire.Number, typ protowire.Type, data []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, data)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return data[n:], nil
}

// Version announces client capabilities and identity after the TLS
// handshake.
type Version struct {
	Version   *uint32
	Release   *string
	OS        *string
	OSVersion *string
}

func (m *Version) Type() Type { return TypeVersion }

func (m *Version) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.Version)
	b = appendStringOpt(b, 2, m.Release)
	b = appendStringOpt(b, 3, m.OS)
	b = appendStringOpt(b, 4, m.OSVersion)
	return b
}

func (m *Version) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Version = Uint32(uint32(v))
		case num == 2 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Release = String(s)
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.OS = String(s)
		case num == 4 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.OSVersion = String(s)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Authenticate carries the username and codec capabilities.
type Authenticate struct {
	Username *string
	Password *string
	Tokens   []string
	Opus     *bool
}

func (m *Authenticate) Type() Type { return TypeAuthenticate }

func (m *Authenticate) Marshal() []byte {
	var b []byte
	b = appendStringOpt(b, 1, m.Username)
	b = appendStringOpt(b, 2, m.Password)
	b = appendStringRep(b, 3, m.Tokens)
	b = appendBoolOpt(b, 5, m.Opus)
	return b
}

func (m *Authenticate) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Username = String(s)
		case num == 2 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Password = String(s)
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Tokens = append(m.Tokens, s)
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Opus = Bool(v != 0)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Ping carries keepalive timestamps, the OCB crypt counters, and the ping
// window statistics of both transports.
type Ping struct {
	Timestamp  *uint64
	Good       *uint32
	Late       *uint32
	Lost       *uint32
	Resync     *uint32
	UDPPackets *uint32
	TCPPackets *uint32
	UDPPingAvg *float32
	UDPPingVar *float32
	TCPPingAvg *float32
	TCPPingVar *float32
}

func (m *Ping) Type() Type { return TypePing }

func (m *Ping) Marshal() []byte {
	var b []byte
	b = appendVarintOpt64(b, 1, m.Timestamp)
	b = appendVarintOpt32(b, 2, m.Good)
	b = appendVarintOpt32(b, 3, m.Late)
	b = appendVarintOpt32(b, 4, m.Lost)
	b = appendVarintOpt32(b, 5, m.Resync)
	b = appendVarintOpt32(b, 6, m.UDPPackets)
	b = appendVarintOpt32(b, 7, m.TCPPackets)
	b = appendFloatOpt(b, 8, m.UDPPingAvg)
	b = appendFloatOpt(b, 9, m.UDPPingVar)
	b = appendFloatOpt(b, 10, m.TCPPingAvg)
	b = appendFloatOpt(b, 11, m.TCPPingVar)
	return b
}

func (m *Ping) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Timestamp = Uint64(v)
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Good = Uint32(uint32(v))
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Late = Uint32(uint32(v))
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Lost = Uint32(uint32(v))
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Resync = Uint32(uint32(v))
		case num == 6 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.UDPPackets = Uint32(uint32(v))
		case num == 7 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.TCPPackets = Uint32(uint32(v))
		case num == 8 && typ == protowire.Fixed32Type:
			var v uint32
			v, data, err = consumeFixed32(data)
			m.UDPPingAvg = Float32(math.Float32frombits(v))
		case num == 9 && typ == protowire.Fixed32Type:
			var v uint32
			v, data, err = consumeFixed32(data)
			m.UDPPingVar = Float32(math.Float32frombits(v))
		case num == 10 && typ == protowire.Fixed32Type:
			var v uint32
			v, data, err = consumeFixed32(data)
			m.TCPPingAvg = Float32(math.Float32frombits(v))
		case num == 11 && typ == protowire.Fixed32Type:
			var v uint32
			v, data, err = consumeFixed32(data)
			m.TCPPingVar = Float32(math.Float32frombits(v))
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reject is sent by the server when authentication fails.
type Reject struct {
	RejectType *uint32
	Reason     *string
}

func (m *Reject) Type() Type { return TypeReject }

func (m *Reject) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.RejectType)
	b = appendStringOpt(b, 2, m.Reason)
	return b
}

func (m *Reject) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.RejectType = Uint32(uint32(v))
		case num == 2 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Reason = String(s)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ServerSync completes the connection handshake and assigns our session id.
type ServerSync struct {
	Session      *uint32
	MaxBandwidth *uint32
	WelcomeText  *string
	Permissions  *uint64
}

func (m *ServerSync) Type() Type { return TypeServerSync }

func (m *ServerSync) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.Session)
	b = appendVarintOpt32(b, 2, m.MaxBandwidth)
	b = appendStringOpt(b, 3, m.WelcomeText)
	b = appendVarintOpt64(b, 4, m.Permissions)
	return b
}

func (m *ServerSync) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Session = Uint32(uint32(v))
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.MaxBandwidth = Uint32(uint32(v))
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.WelcomeText = String(s)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Permissions = Uint64(v)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ChannelRemove tears down a channel.
type ChannelRemove struct {
	ChannelID *uint32
}

func (m *ChannelRemove) Type() Type { return TypeChannelRemove }

func (m *ChannelRemove) Marshal() []byte {
	return appendVarintOpt32(nil, 1, m.ChannelID)
}

func (m *ChannelRemove) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.ChannelID = Uint32(uint32(v))
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ChannelState creates or updates a channel.
type ChannelState struct {
	ChannelID   *uint32
	Parent      *uint32
	Name        *string
	Description *string
	Temporary   *bool
	Position    *int32
}

func (m *ChannelState) Type() Type { return TypeChannelState }

func (m *ChannelState) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.ChannelID)
	b = appendVarintOpt32(b, 2, m.Parent)
	b = appendStringOpt(b, 3, m.Name)
	b = appendStringOpt(b, 5, m.Description)
	b = appendBoolOpt(b, 8, m.Temporary)
	if m.Position != nil {
		b = protowire.AppendTag(b, 9, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(*m.Position)))
	}
	return b
}

func (m *ChannelState) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.ChannelID = Uint32(uint32(v))
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Parent = Uint32(uint32(v))
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Name = String(s)
		case num == 5 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Description = String(s)
		case num == 8 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Temporary = Bool(v != 0)
		case num == 9 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Position = Int32(int32(uint32(v)))
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// UserRemove announces a user leaving (or being kicked/banned).
type UserRemove struct {
	Session *uint32
	Actor   *uint32
	Reason  *string
	Ban     *bool
}

func (m *UserRemove) Type() Type { return TypeUserRemove }

func (m *UserRemove) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.Session)
	b = appendVarintOpt32(b, 2, m.Actor)
	b = appendStringOpt(b, 3, m.Reason)
	b = appendBoolOpt(b, 4, m.Ban)
	return b
}

func (m *UserRemove) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Session = Uint32(uint32(v))
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Actor = Uint32(uint32(v))
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Reason = String(s)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Ban = Bool(v != 0)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// UserState creates or updates a user, including channel membership and the
// listening-channel delta lists.
type UserState struct {
	Session                *uint32
	Actor                  *uint32
	Name                   *string
	UserID                 *uint32
	ChannelID              *uint32
	Mute                   *bool
	Deaf                   *bool
	Suppress               *bool
	SelfMute               *bool
	SelfDeaf               *bool
	ListeningChannelAdd    []uint32
	ListeningChannelRemove []uint32
}

func (m *UserState) Type() Type { return TypeUserState }

func (m *UserState) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.Session)
	b = appendVarintOpt32(b, 2, m.Actor)
	b = appendStringOpt(b, 3, m.Name)
	b = appendVarintOpt32(b, 4, m.UserID)
	b = appendVarintOpt32(b, 5, m.ChannelID)
	b = appendBoolOpt(b, 6, m.Mute)
	b = appendBoolOpt(b, 7, m.Deaf)
	b = appendBoolOpt(b, 8, m.Suppress)
	b = appendBoolOpt(b, 9, m.SelfMute)
	b = appendBoolOpt(b, 10, m.SelfDeaf)
	b = appendVarintRep32(b, 21, m.ListeningChannelAdd)
	b = appendVarintRep32(b, 22, m.ListeningChannelRemove)
	return b
}

func (m *UserState) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Session = Uint32(uint32(v))
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Actor = Uint32(uint32(v))
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Name = String(s)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.UserID = Uint32(uint32(v))
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.ChannelID = Uint32(uint32(v))
		case num == 6 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Mute = Bool(v != 0)
		case num == 7 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Deaf = Bool(v != 0)
		case num == 8 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Suppress = Bool(v != 0)
		case num == 9 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.SelfMute = Bool(v != 0)
		case num == 10 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.SelfDeaf = Bool(v != 0)
		case num == 21:
			m.ListeningChannelAdd, data, err = consumeRep32(m.ListeningChannelAdd, typ, data)
		case num == 22:
			m.ListeningChannelRemove, data, err = consumeRep32(m.ListeningChannelRemove, typ, data)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// TextMessage is a chat message addressed to sessions, channels, or trees.
type TextMessage struct {
	Actor     *uint32
	Session   []uint32
	ChannelID []uint32
	TreeID    []uint32
	Message   *string
}

func (m *TextMessage) Type() Type { return TypeTextMessage }

func (m *TextMessage) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.Actor)
	b = appendVarintRep32(b, 2, m.Session)
	b = appendVarintRep32(b, 3, m.ChannelID)
	b = appendVarintRep32(b, 4, m.TreeID)
	b = appendStringOpt(b, 5, m.Message)
	return b
}

func (m *TextMessage) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Actor = Uint32(uint32(v))
		case num == 2:
			m.Session, data, err = consumeRep32(m.Session, typ, data)
		case num == 3:
			m.ChannelID, data, err = consumeRep32(m.ChannelID, typ, data)
		case num == 4:
			m.TreeID, data, err = consumeRep32(m.TreeID, typ, data)
		case num == 5 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Message = String(s)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// PermissionDenied reports a rejected operation.
type PermissionDenied struct {
	Permission *uint32
	ChannelID  *uint32
	Session    *uint32
	Reason     *string
	DenyType   *uint32
	Name       *string
}

func (m *PermissionDenied) Type() Type { return TypePermissionDenied }

func (m *PermissionDenied) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.Permission)
	b = appendVarintOpt32(b, 2, m.ChannelID)
	b = appendVarintOpt32(b, 3, m.Session)
	b = appendStringOpt(b, 4, m.Reason)
	b = appendVarintOpt32(b, 5, m.DenyType)
	b = appendStringOpt(b, 6, m.Name)
	return b
}

func (m *PermissionDenied) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Permission = Uint32(uint32(v))
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.ChannelID = Uint32(uint32(v))
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.Session = Uint32(uint32(v))
		case num == 4 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Reason = String(s)
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.DenyType = Uint32(uint32(v))
		case num == 6 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			m.Name = String(s)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CryptSetup installs or refreshes the UDP encryption keys. An empty
// message from either side requests the peer's nonce.
type CryptSetup struct {
	Key         []byte
	ClientNonce []byte
	ServerNonce []byte
}

func (m *CryptSetup) Type() Type { return TypeCryptSetup }

func (m *CryptSetup) Marshal() []byte {
	var b []byte
	b = appendBytesOpt(b, 1, m.Key)
	b = appendBytesOpt(b, 2, m.ClientNonce)
	b = appendBytesOpt(b, 3, m.ServerNonce)
	return b
}

func (m *CryptSetup) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.BytesType:
			m.Key, data, err = consumeBytes(data)
		case num == 2 && typ == protowire.BytesType:
			m.ClientNonce, data, err = consumeBytes(data)
		case num == 3 && typ == protowire.BytesType:
			m.ServerNonce, data, err = consumeBytes(data)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// VoiceTargetTarget is one sub-target of a whisper/shout rule: either a set
// of user sessions or a single channel.
type VoiceTargetTarget struct {
	Session   []uint32
	ChannelID *uint32
	Group     *string
	Links     *bool
	Children  *bool
}

func (t *VoiceTargetTarget) marshal() []byte {
	var b []byte
	b = appendVarintRep32(b, 1, t.Session)
	b = appendVarintOpt32(b, 2, t.ChannelID)
	b = appendStringOpt(b, 3, t.Group)
	b = appendBoolOpt(b, 4, t.Links)
	b = appendBoolOpt(b, 5, t.Children)
	return b
}

func (t *VoiceTargetTarget) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1:
			t.Session, data, err = consumeRep32(t.Session, typ, data)
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			t.ChannelID = Uint32(uint32(v))
		case num == 3 && typ == protowire.BytesType:
			var s string
			s, data, err = consumeString(data)
			t.Group = String(s)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			t.Links = Bool(v != 0)
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			t.Children = Bool(v != 0)
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// VoiceTarget registers a server-side voice routing rule (id 1..30).
type VoiceTarget struct {
	ID      *uint32
	Targets []*VoiceTargetTarget
}

func (m *VoiceTarget) Type() Type { return TypeVoiceTarget }

func (m *VoiceTarget) Marshal() []byte {
	var b []byte
	b = appendVarintOpt32(b, 1, m.ID)
	for _, t := range m.Targets {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, t.marshal())
	}
	return b
}

func (m *VoiceTarget) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var err error
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			v, data, err = consumeVarint(data)
			m.ID = Uint32(uint32(v))
		case num == 2 && typ == protowire.BytesType:
			var raw []byte
			raw, data, err = consumeBytes(data)
			if err == nil {
				t := &VoiceTargetTarget{}
				err = t.unmarshal(raw)
				m.Targets = append(m.Targets, t)
			}
		default:
			data, err = skipField(num, typ, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
