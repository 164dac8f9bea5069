package blip

import (
	"strings"

	"github.com/blip-io/blip/pkg/protocol"
)

// Message is the builder for an outgoing message. A builder is obtained
// from Engine.NewRequest or Request.Response, filled in, and handed to the
// engine with Send. A builder can be sent exactly once.
type Message struct {
	typ        protocol.MessageType
	responseTo protocol.MessageNo
	props      []property
	body       []byte
	compressed bool
	urgent     bool
	noReply    bool
	sent       bool
	send       func(*Message) (*MessageIn, error)
}

func newMessage(typ protocol.MessageType) *Message {
	return &Message{typ: typ}
}

// Type returns the message type the builder will send.
func (m *Message) Type() protocol.MessageType { return m.typ }

// SetProperty adds a property. Properties keep insertion order on the
// wire. Setting an existing key replaces its value in place.
//
// Keys and values must not contain NUL bytes; SetProperty panics on
// misuse, as this is a programmer error.
func (m *Message) SetProperty(key, value string) {
	if strings.IndexByte(key, 0) >= 0 || strings.IndexByte(value, 0) >= 0 {
		panic("blip: property key or value contains NUL")
	}
	for i := range m.props {
		if m.props[i].key == key {
			m.props[i].value = value
			return
		}
	}
	m.props = append(m.props, property{key, value})
}

// Property returns the value set for key, or "" if unset.
func (m *Message) Property(key string) string {
	for _, p := range m.props {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

// SetProfile sets the Profile property naming the request handler.
func (m *Message) SetProfile(profile string) {
	m.SetProperty(ProfileProperty, profile)
}

// Profile returns the Profile property.
func (m *Message) Profile() string {
	return m.Property(ProfileProperty)
}

// SetBody replaces the message body.
func (m *Message) SetBody(body []byte) { m.body = body }

// AppendBody appends to the message body.
func (m *Message) AppendBody(body []byte) {
	m.body = append(m.body, body...)
}

// Body returns the message body.
func (m *Message) Body() []byte { return m.body }

// SetCompressed marks the message for deflate compression on the wire.
func (m *Message) SetCompressed(compressed bool) { m.compressed = compressed }

// SetUrgent marks the message urgent. Urgent messages are sent in larger
// frames so they drain faster while still interleaving fairly.
func (m *Message) SetUrgent(urgent bool) { m.urgent = urgent }

// SetNoReply marks a request as expecting no response.
func (m *Message) SetNoReply(noReply bool) { m.noReply = noReply }

// NoReply reports whether the request expects no response.
func (m *Message) NoReply() bool { return m.noReply }

// Send hands the builder to the engine. For a request it returns the
// pending response (nil when noReply is set); for a response it returns
// nil. Sending the same builder twice fails with ErrAlreadySent.
func (m *Message) Send() (*MessageIn, error) {
	if m.sent {
		return nil, ErrAlreadySent
	}
	if m.send == nil {
		panic("blip: message not bound to an engine")
	}
	m.sent = true
	return m.send(m)
}

// flags renders the builder's frame flag byte (without MoreComing, which
// is per-frame).
func (m *Message) flags() protocol.FrameFlags {
	f := protocol.FrameFlags(0).WithType(m.typ)
	if m.compressed {
		f |= protocol.FlagCompressed
	}
	if m.urgent {
		f |= protocol.FlagUrgent
	}
	if m.noReply && m.typ == protocol.TypeRequest {
		f |= protocol.FlagNoReply
	}
	return f
}

// encodePayload renders the complete message payload: the property block
// with its varint length prefix followed by the body.
func (m *Message) encodePayload() []byte {
	props := encodeProperties(m.props)
	payload := make([]byte, 0, len(props)+len(m.body))
	payload = append(payload, props...)
	return append(payload, m.body...)
}
