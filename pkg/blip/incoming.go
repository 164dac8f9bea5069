package blip

import (
	"errors"
	"strconv"

	"github.com/blip-io/blip/pkg/protocol"
)

// maxPropertiesSize caps the declared property-block length of an incoming
// message, guarding against hostile length prefixes.
const maxPropertiesSize = 4 << 20

// ErrPropertiesTooLarge is a protocol error for a property block whose
// declared length exceeds maxPropertiesSize.
var ErrPropertiesTooLarge = errors.New("blip: property block exceeds limit")

// inState tracks how much of an incoming message has been assembled.
type inState uint8

const (
	stateStart        inState = iota // nothing received yet
	stateReadingProps                // inside the property block
	stateReadingBody                 // properties done, accumulating body
	stateComplete                    // final frame processed
)

// MessageIn is the receiving-side state of a message: either a request
// being assembled from incoming frames, or the pending response of a sent
// request. The Done channel closes when the message is complete.
type MessageIn struct {
	messageHeader
	state inState

	varintBuf      []byte // partial property-length varint spanning frames
	propertyBuf    []byte // property block, filled as frames arrive
	propsRemaining int

	body             []byte
	rawBytesReceived uint64
	unackedBytes     uint64

	done chan struct{}
}

func newMessageIn(number protocol.MessageNo, typ protocol.MessageType) *MessageIn {
	return &MessageIn{
		messageHeader: messageHeader{
			number: number,
			flags:  protocol.FrameFlags(0).WithType(typ),
		},
		done: make(chan struct{}),
	}
}

// Done returns a channel that closes once the message is complete. For a
// pending response this is the completion notifier; reading any other
// accessor before Done closes is a race.
func (m *MessageIn) Done() <-chan struct{} { return m.done }

// Complete reports whether the final frame has been processed.
func (m *MessageIn) Complete() bool { return m.state == stateComplete }

// Body returns the accumulated message body.
func (m *MessageIn) Body() []byte { return m.body }

// Properties returns the ordered property pairs.
func (m *MessageIn) Properties() [][2]string {
	var props [][2]string
	forEachProperty(m.propertyBuf, func(key, value string) bool {
		props = append(props, [2]string{key, value})
		return true
	})
	return props
}

// Property returns the value of the named property, or "" if absent.
func (m *MessageIn) Property(key string) string {
	return m.PropertyDefault(key, "")
}

// PropertyDefault returns the value of the named property, or def if
// absent.
func (m *MessageIn) PropertyDefault(key, def string) string {
	value := def
	forEachProperty(m.propertyBuf, func(k, v string) bool {
		if k == key {
			value = v
			return false
		}
		return true
	})
	return value
}

// IntProperty returns the named property parsed as an integer, or def if
// the property is absent or not numeric.
func (m *MessageIn) IntProperty(key string, def int) int {
	s := m.Property(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Profile returns the Profile property.
func (m *MessageIn) Profile() string {
	return m.Property(ProfileProperty)
}

// Error returns the remote error carried by an ERR message, or nil for
// other message types.
func (m *MessageIn) Error() *RemoteError {
	if m.Type() != protocol.TypeError {
		return nil
	}
	return &RemoteError{
		Domain:  m.PropertyDefault(ErrorDomainProperty, DomainBLIP),
		Code:    m.IntProperty(ErrorCodeProperty, 0),
		Message: string(m.body),
	}
}

// addFrame feeds one frame's payload into the message. The payload runs
// through the codec (which validates the CRC trailer in both raw and
// compressed modes) and the recovered plaintext through the property/body
// state machine.
//
// When the message crosses the incoming ACK threshold, addFrame returns
// the ACK message the engine should queue.
func (m *MessageIn) addFrame(flags protocol.FrameFlags, payload []byte, decodeBuf *protocol.Buffer, codec *protocol.Inflater) (*MessageOut, error) {
	m.rawBytesReceived += uint64(len(payload))
	m.unackedBytes += uint64(len(payload))

	if typ := flags.Type(); typ != m.flags.Type() {
		if typ != protocol.TypeError {
			return nil, ErrInconsistentType
		}
		// An error frame replaces whatever has accumulated so far.
		m.state = stateStart
		m.varintBuf = nil
		m.propertyBuf = nil
		m.propsRemaining = 0
		m.body = nil
	}
	m.flags = flags &^ protocol.FlagMoreComing

	mode := protocol.ModeRaw
	if flags.Has(protocol.FlagCompressed) {
		mode = protocol.ModeSyncFlush
	}
	decodeBuf.Clear()
	if err := codec.Write(protocol.BufferOf(payload), decodeBuf, mode); err != nil {
		return nil, err
	}
	if err := m.addBytes(decodeBuf.Bytes()); err != nil {
		return nil, err
	}

	if !flags.Has(protocol.FlagMoreComing) {
		if m.state < stateReadingBody {
			return nil, ErrIncompleteProperties
		}
		m.complete()
		return nil, nil
	}
	if m.unackedBytes >= protocol.IncomingAckThreshold {
		m.unackedBytes = 0
		return newAck(m.number, m.flags.Type(), m.rawBytesReceived), nil
	}
	return nil, nil
}

// addBytes runs recovered plaintext through the assembly state machine:
// the property-length varint, then the property block, then the body.
func (m *MessageIn) addBytes(plain []byte) error {
	for len(plain) > 0 {
		switch m.state {
		case stateStart:
			m.varintBuf = append(m.varintBuf, plain[0])
			plain = plain[1:]
			if m.varintBuf[len(m.varintBuf)-1] >= 0x80 {
				if len(m.varintBuf) >= protocol.MaxVarintLen {
					return protocol.ErrTruncatedVarint
				}
				continue
			}
			size, _, err := protocol.DecodeUvarint(m.varintBuf)
			if err != nil {
				return err
			}
			if size > maxPropertiesSize {
				return ErrPropertiesTooLarge
			}
			m.varintBuf = nil
			m.propsRemaining = int(size)
			m.propertyBuf = make([]byte, 0, size)
			if m.propsRemaining == 0 {
				m.state = stateReadingBody
			} else {
				m.state = stateReadingProps
			}

		case stateReadingProps:
			n := m.propsRemaining
			if n > len(plain) {
				n = len(plain)
			}
			m.propertyBuf = append(m.propertyBuf, plain[:n]...)
			m.propsRemaining -= n
			plain = plain[n:]
			if m.propsRemaining == 0 {
				m.state = stateReadingBody
			}

		case stateReadingBody:
			m.body = append(m.body, plain...)
			plain = nil

		case stateComplete:
			return ErrTruncatedFrame
		}
	}
	return nil
}

// complete marks the message done and wakes any waiter.
func (m *MessageIn) complete() {
	if m.state == stateComplete {
		return
	}
	m.state = stateComplete
	close(m.done)
}

// cancel completes a pending response with a synthetic error, used when
// the connection ends before the real response arrives.
func (m *MessageIn) cancel(domain string, code int, message string) {
	if m.state == stateComplete {
		return
	}
	m.flags = m.flags.WithType(protocol.TypeError)
	props := []property{{ErrorCodeProperty, strconv.Itoa(code)}}
	if domain != DomainBLIP {
		props = append(props, property{ErrorDomainProperty, domain})
	}
	m.propertyBuf = encodePropertyBlock(props)
	m.body = []byte(message)
	m.complete()
}
