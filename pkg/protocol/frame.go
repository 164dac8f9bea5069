package protocol

// MessageNo is the per-direction sequential identifier tying the frames of
// one message together. Request numbers start at 1 and are chosen by the
// sender; a response reuses its request's number.
type MessageNo uint64

// MessageType identifies the kind of message a frame belongs to.
// It occupies bits 0–2 of the frame flag byte.
type MessageType uint8

const (
	TypeRequest     MessageType = 0 // Application request
	TypeResponse    MessageType = 1 // Successful response
	TypeError       MessageType = 2 // Error response
	TypeAckRequest  MessageType = 4 // Ack of received request bytes
	TypeAckResponse MessageType = 5 // Ack of received response bytes
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "REQ"
	case TypeResponse:
		return "RES"
	case TypeError:
		return "ERR"
	case TypeAckRequest:
		return "ACK_REQ"
	case TypeAckResponse:
		return "ACK_RES"
	default:
		return "Unknown"
	}
}

// IsAck reports whether the type is an internal acknowledgment frame.
// ACKs are housekeeping frames and are never surfaced as messages.
func (t MessageType) IsAck() bool {
	return t >= TypeAckRequest
}

// Ack returns the acknowledgment type a receiver sends for a message of
// this type: TypeAckRequest for requests, TypeAckResponse for responses
// and errors.
func (t MessageType) Ack() MessageType {
	if t == TypeRequest {
		return TypeAckRequest
	}
	return TypeAckResponse
}

// Acked returns the message type an acknowledgment of this type refers to.
func (t MessageType) Acked() MessageType {
	if t == TypeAckRequest {
		return TypeRequest
	}
	return TypeResponse
}

// FrameFlags is the per-frame flag byte. Bits 0–2 carry the MessageType;
// bit 7 is reserved and always zero.
type FrameFlags uint8

const (
	flagTypeMask   FrameFlags = 0x07
	FlagCompressed FrameFlags = 0x08 // Payload is part of the deflate stream
	FlagUrgent     FrameFlags = 0x10 // Message wants larger frames
	FlagNoReply    FrameFlags = 0x20 // Request expects no response
	FlagMoreComing FrameFlags = 0x40 // More frames of this message follow
)

// Type extracts the message type from the flag byte.
func (f FrameFlags) Type() MessageType {
	return MessageType(f & flagTypeMask)
}

// WithType returns f with the type bits replaced by t.
func (f FrameFlags) WithType(t MessageType) FrameFlags {
	return (f &^ flagTypeMask) | FrameFlags(t)
}

// Has returns true if the flags contain the specified flag.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag != 0
}

// String returns a compact representation such as "REQ|compressed|more".
func (f FrameFlags) String() string {
	s := f.Type().String()
	if f.Has(FlagCompressed) {
		s += "|compressed"
	}
	if f.Has(FlagUrgent) {
		s += "|urgent"
	}
	if f.Has(FlagNoReply) {
		s += "|noreply"
	}
	if f.Has(FlagMoreComing) {
		s += "|more"
	}
	return s
}

// Flow-control thresholds and frame sizing.
const (
	// IncomingAckThreshold is the number of unacknowledged bytes of a
	// single incoming message after which the receiver emits an ACK frame.
	IncomingAckThreshold = 50_000

	// OutgoingAckThreshold is the number of sent-but-unacknowledged bytes
	// after which the sender freezes a message until an ACK arrives.
	OutgoingAckThreshold = 100_000

	// DefaultFrameSize is the frame budget for a regular message sharing
	// the connection with other queued messages.
	DefaultFrameSize = 4096

	// BigFrameSize is the frame budget for urgent messages and for any
	// message that is alone in the outbox.
	BigFrameSize = 32768
)

// SubprotocolName is the WebSocket subprotocol token for BLIP version 3.
const SubprotocolName = "BLIP_3"

// Subprotocol returns the WebSocket subprotocol token, optionally extended
// with an application subprotocol as "BLIP_3+<app>".
func Subprotocol(app string) string {
	if app == "" {
		return SubprotocolName
	}
	return SubprotocolName + "+" + app
}
