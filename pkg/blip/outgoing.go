package blip

import (
	"github.com/blip-io/blip/pkg/protocol"
)

// messageHeader holds the fields common to outgoing and incoming message
// state.
type messageHeader struct {
	number protocol.MessageNo
	flags  protocol.FrameFlags
}

// Number returns the message number.
func (h *messageHeader) Number() protocol.MessageNo { return h.number }

// Type returns the message type.
func (h *messageHeader) Type() protocol.MessageType { return h.flags.Type() }

// NoReply reports whether the message carries the noReply flag.
func (h *messageHeader) NoReply() bool { return h.flags.Has(protocol.FlagNoReply) }

// Urgent reports whether the message carries the urgent flag.
func (h *messageHeader) Urgent() bool { return h.flags.Has(protocol.FlagUrgent) }

// MessageOut is the sending-side state of a message: its remaining encoded
// payload and the byte accounting that drives ACK-based flow control.
//
// A MessageOut lives in the outbox while it has frames to send, or in the
// icebox while frozen awaiting an ACK. Its counters are mutated either by
// the send loop while the message is checked out of both containers, or by
// the receive loop under the owning container's lock, never concurrently.
type MessageOut struct {
	messageHeader
	payload      *protocol.Buffer
	bytesSent    uint64
	unackedBytes uint64
}

func newMessageOut(number protocol.MessageNo, flags protocol.FrameFlags, payload []byte) *MessageOut {
	return &MessageOut{
		messageHeader: messageHeader{number: number, flags: flags},
		payload:       protocol.BufferOf(payload),
	}
}

// newAck builds the internal acknowledgment message for a message of type
// acked that has received total bytes so far. ACKs are urgent so they take
// a bigger frame budget, and they never expect replies.
func newAck(number protocol.MessageNo, acked protocol.MessageType, total uint64) *MessageOut {
	flags := protocol.FrameFlags(0).WithType(acked.Ack()) |
		protocol.FlagUrgent | protocol.FlagNoReply
	return newMessageOut(number, flags, protocol.AppendUvarint(nil, total))
}

// finished reports whether the entire payload has been framed.
func (m *MessageOut) finished() bool { return m.payload.Empty() }

// needsAck reports whether the message must freeze until the peer
// acknowledges some of its bytes.
func (m *MessageOut) needsAck() bool {
	return m.unackedBytes >= protocol.OutgoingAckThreshold
}

// nextFrame assembles the message's next frame into frame, consuming
// payload through the codec. The frame buffer's capacity is the frame
// budget; the codec consumes as much payload as fits.
func (m *MessageOut) nextFrame(frame *protocol.Buffer, codec *protocol.Deflater) error {
	frame.Clear()
	frame.AddUvarint(uint64(m.number))
	flagPos := frame.Len()
	frame.AddByte(0)

	if m.flags.Type().IsAck() {
		// ACK payload goes out verbatim in one frame, no trailer.
		frame.Add(m.payload.Bytes())
		m.payload.MoveStart(m.payload.Len())
		frame.SetAt(flagPos, byte(m.flags))
		return nil
	}

	mode := protocol.ModeRaw
	if m.flags.Has(protocol.FlagCompressed) {
		mode = protocol.ModeSyncFlush
	}
	start := frame.Len()
	if err := codec.Write(m.payload, frame, mode); err != nil {
		return err
	}

	flags := m.flags
	if !m.payload.Empty() {
		flags |= protocol.FlagMoreComing
	}
	frame.SetAt(flagPos, byte(flags))

	produced := uint64(frame.Len() - start)
	m.bytesSent += produced
	m.unackedBytes += produced
	return nil
}

// handleAck applies a peer acknowledgment carrying the count of payload
// bytes it has received. Acknowledged bytes no longer count against the
// freeze threshold.
func (m *MessageOut) handleAck(body []byte) {
	acked, _, err := protocol.DecodeUvarint(body)
	if err != nil {
		return
	}
	if acked >= m.bytesSent {
		m.unackedBytes = 0
		return
	}
	if remaining := m.bytesSent - acked; remaining < m.unackedBytes {
		m.unackedBytes = remaining
	}
}
