package blip

import (
	"context"
	"sync"

	"github.com/blip-io/blip/pkg/protocol"
)

// outbox is the queue of messages with frames left to send. Non-ACK
// messages are appended at the tail; ACK messages jump to the head so
// they overtake queued data frames. The send loop is the only popper.
type outbox struct {
	mu     sync.Mutex
	queue  []*MessageOut
	waiter chan *MessageOut
	closed bool

	// checkedOut is set while the send loop holds a popped message, so
	// the idle check cannot fire mid-send.
	checkedOut bool
}

func newOutbox() *outbox {
	return &outbox{}
}

// push enqueues a message, or hands it directly to a parked pop waiter.
// Pushing on a closed outbox fails with ErrConnectionClosed.
func (o *outbox) push(msg *MessageOut) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrConnectionClosed
	}
	if o.waiter != nil {
		w := o.waiter
		o.waiter = nil
		o.checkedOut = true
		w <- msg
		return nil
	}
	if msg.flags.Type().IsAck() {
		o.queue = append([]*MessageOut{msg}, o.queue...)
	} else {
		o.queue = append(o.queue, msg)
	}
	return nil
}

// pop removes and returns the head message, parking until one arrives.
// It returns nil when the outbox closes or ctx is done. At most one
// goroutine may be parked at a time.
func (o *outbox) pop(ctx context.Context) *MessageOut {
	o.mu.Lock()
	if len(o.queue) > 0 {
		msg := o.queue[0]
		o.queue = o.queue[1:]
		o.checkedOut = true
		o.mu.Unlock()
		return msg
	}
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	w := make(chan *MessageOut, 1)
	o.waiter = w
	o.mu.Unlock()

	select {
	case msg := <-w:
		return msg
	case <-ctx.Done():
		o.mu.Lock()
		if o.waiter == w {
			o.waiter = nil
		}
		o.mu.Unlock()
		// A push may have won the race; drain it rather than lose it.
		select {
		case msg := <-w:
			return msg
		default:
			return nil
		}
	}
}

// doneSending clears the checked-out mark once the send loop has
// finished with a popped message.
func (o *outbox) doneSending() {
	o.mu.Lock()
	o.checkedOut = false
	o.mu.Unlock()
}

// empty reports whether the queue currently holds no messages. A popped
// message in flight does not count; see idle.
func (o *outbox) empty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue) == 0
}

// idle reports whether the queue is empty and no popped message is still
// being sent.
func (o *outbox) idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue) == 0 && !o.checkedOut
}

// ack locates the queued message of the given type and number and applies
// the acknowledgment under the queue lock, so the counters never race
// with a concurrent push or pop.
func (o *outbox) ack(typ protocol.MessageType, number protocol.MessageNo, body []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, msg := range o.queue {
		if msg.flags.Type() == typ && msg.number == number {
			msg.handleAck(body)
			return true
		}
	}
	return false
}

// close marks the outbox closed, drains the queue, and releases a parked
// waiter with nil. Idempotent.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.queue = nil
	if o.waiter != nil {
		close(o.waiter)
		o.waiter = nil
	}
}

// icebox is the unordered set of outgoing messages frozen awaiting ACKs.
type icebox struct {
	mu     sync.Mutex
	frozen []*MessageOut
}

func newIcebox() *icebox {
	return &icebox{}
}

// add freezes a message.
func (i *icebox) add(msg *MessageOut) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.frozen = append(i.frozen, msg)
}

// ack locates the frozen message of the given type and number and applies
// the acknowledgment. If the message no longer needs an ACK it is removed
// and returned for requeueing (thawed).
func (i *icebox) ack(typ protocol.MessageType, number protocol.MessageNo, body []byte) (msg *MessageOut, thawed bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for n, frozen := range i.frozen {
		if frozen.flags.Type() != typ || frozen.number != number {
			continue
		}
		frozen.handleAck(body)
		if frozen.needsAck() {
			return frozen, false
		}
		i.frozen = append(i.frozen[:n], i.frozen[n+1:]...)
		return frozen, true
	}
	return nil, false
}

// empty reports whether no messages are frozen.
func (i *icebox) empty() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.frozen) == 0
}

// size returns the number of frozen messages.
func (i *icebox) size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.frozen)
}
