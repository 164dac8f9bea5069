package blip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/blip-io/blip/pkg/protocol"
)

// Engine multiplexes BLIP messages over a single Transport. It runs one
// send loop and one receive loop; outgoing messages are interleaved one
// frame at a time, incoming frames are reassembled into messages, and
// completed requests are dispatched to registered handlers.
type Engine struct {
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer

	outbox *outbox
	icebox *icebox

	mu                sync.Mutex
	outNumber         protocol.MessageNo
	inNumber          protocol.MessageNo
	incomingRequests  map[protocol.MessageNo]*MessageIn
	incomingResponses map[protocol.MessageNo]*MessageIn

	outCodec  *protocol.Deflater
	inCodec   *protocol.Inflater
	frameBuf  *protocol.Buffer
	decodeBuf *protocol.Buffer

	handlerMu      sync.RWMutex
	handlers       map[string]Handler
	defaultHandler Handler

	compressionEnabled bool
	closeWhenIdle      atomic.Bool
	closed             atomic.Bool
	shutdownOnce       sync.Once
}

// NewEngine returns an engine running over transport. The engine does
// nothing until Run is called.
func NewEngine(transport Transport, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	outCodec, err := protocol.NewDeflater(cfg.compressionLevel)
	if err != nil {
		return nil, err
	}
	return &Engine{
		transport:          transport,
		logger:             cfg.logger,
		metrics:            cfg.metrics,
		tracer:             cfg.tracer,
		outbox:             newOutbox(),
		icebox:             newIcebox(),
		incomingRequests:   make(map[protocol.MessageNo]*MessageIn),
		incomingResponses:  make(map[protocol.MessageNo]*MessageIn),
		outCodec:           outCodec,
		inCodec:            protocol.NewInflater(),
		frameBuf:           protocol.NewBuffer(protocol.BigFrameSize),
		decodeBuf:          protocol.NewBuffer(protocol.BigFrameSize),
		handlers:           make(map[string]Handler),
		compressionEnabled: cfg.compressionEnabled,
	}, nil
}

// NewRequest returns a request builder bound to this engine.
func (e *Engine) NewRequest() *Message {
	m := newMessage(protocol.TypeRequest)
	m.send = e.sendRequest
	return m
}

// sendRequest is the send action behind request builders: it assigns the
// next message number, pre-registers the pending response, and queues the
// message.
func (e *Engine) sendRequest(m *Message) (*MessageIn, error) {
	if m.typ != protocol.TypeRequest {
		panic("blip: sendRequest on non-request message")
	}
	if !e.compressionEnabled {
		m.compressed = false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	number := e.outNumber + 1
	out := newMessageOut(number, m.flags(), m.encodePayload())

	var pending *MessageIn
	if !m.noReply {
		pending = newMessageIn(number, protocol.TypeResponse)
		e.incomingResponses[number] = pending
	}
	if err := e.outbox.push(out); err != nil {
		delete(e.incomingResponses, number)
		return nil, err
	}
	e.outNumber = number
	if e.metrics != nil {
		e.metrics.requestsSent.Inc()
	}
	return pending, nil
}

// sendResponse is the send action behind response builders.
func (e *Engine) sendResponse(m *Message) error {
	if m.typ == protocol.TypeRequest {
		panic("blip: sendResponse on request message")
	}
	if m.responseTo == 0 {
		panic("blip: response has no message number")
	}
	if !e.compressionEnabled {
		m.compressed = false
	}
	return e.outbox.push(newMessageOut(m.responseTo, m.flags(), m.encodePayload()))
}

// Run drives the send and receive loops until the connection ends. It
// returns nil on a clean shutdown and the first loop error otherwise.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- e.sendLoop(ctx) }()
	go func() { errc <- e.receiveLoop(ctx) }()

	err := <-errc
	if second := <-errc; err == nil {
		err = second
	}
	return err
}

// CloseWhenIdle requests a graceful shutdown: once nothing is in flight
// in either direction, the engine closes the outbox and the transport.
func (e *Engine) CloseWhenIdle() {
	e.closeWhenIdle.Store(true)
	if e.isIdle() {
		e.shutdown(context.Background())
	}
}

// Close tears the connection down without waiting for in-flight messages.
func (e *Engine) Close() {
	e.closed.Store(true)
	e.outbox.close()
	e.transport.Disconnect()
}

// isIdle reports whether no messages are in flight in either direction.
func (e *Engine) isIdle() bool {
	e.mu.Lock()
	tracking := len(e.incomingRequests) > 0 || len(e.incomingResponses) > 0
	e.mu.Unlock()
	return !tracking && e.outbox.idle() && e.icebox.empty()
}

// checkIdleClose performs the idle shutdown if it has been requested and
// the engine is idle. Both loops call it once per iteration.
func (e *Engine) checkIdleClose(ctx context.Context) bool {
	if !e.closeWhenIdle.Load() || !e.isIdle() {
		return false
	}
	e.shutdown(ctx)
	return true
}

func (e *Engine) shutdown(ctx context.Context) {
	e.shutdownOnce.Do(func() {
		e.logger.Info("closing connection")
		e.closed.Store(true)
		e.outbox.close()
		if err := e.transport.Close(ctx); err != nil {
			e.logger.Debug("transport close", "error", err)
		}
	})
}

// sendLoop pops one message at a time, sends its next frame, and requeues
// or freezes it until its payload drains.
func (e *Engine) sendLoop(ctx context.Context) error {
	for {
		if e.checkIdleClose(ctx) {
			return nil
		}
		msg := e.outbox.pop(ctx)
		if msg == nil {
			return ctx.Err()
		}

		// A message alone in the outbox, or an urgent one, gets the big
		// frame budget so it drains faster.
		// TODO: decide whether urgent messages should also be requeued
		// ahead of normal ones (behind in-flight ACKs); today urgency
		// only selects the frame budget.
		frameSize := protocol.DefaultFrameSize
		if msg.Urgent() || e.outbox.empty() {
			frameSize = protocol.BigFrameSize
		}
		frame := e.frameBuf.Window(frameSize)
		if err := msg.nextFrame(frame, e.outCodec); err != nil {
			e.outbox.doneSending()
			e.logger.Error("frame assembly failed", "number", msg.number, "error", err)
			e.transport.Disconnect()
			return err
		}

		if !msg.finished() {
			if msg.needsAck() {
				e.logger.Debug("freezing message", "number", msg.number, "unacked", msg.unackedBytes)
				e.icebox.add(msg)
				if e.metrics != nil {
					e.metrics.frozenMessages.Set(float64(e.icebox.size()))
				}
			} else if err := e.outbox.push(msg); err != nil {
				e.outbox.doneSending()
				return nil
			}
		}

		if !e.transport.CanSend() {
			e.outbox.doneSending()
			return nil
		}
		e.logger.Debug("sending frame", "number", msg.number, "bytes", frame.Len())
		err := e.transport.Send(ctx, frame.Bytes())
		e.outbox.doneSending()
		if err != nil {
			e.logger.Error("transport send failed", "error", err)
			return nil
		}
		if e.metrics != nil {
			e.metrics.framesSent.Inc()
			e.metrics.bytesSent.Add(float64(frame.Len()))
		}
	}
}

// receiveLoop reads frames off the transport and feeds them through
// handleFrame until the connection ends. Protocol and codec errors are
// fatal: the transport is closed and the loop exits. On exit, every
// pending response waiter is completed with a BLIP/502 error.
func (e *Engine) receiveLoop(ctx context.Context) error {
	defer e.outbox.close()
	defer e.cancelPendingResponses()

	for {
		if e.checkIdleClose(ctx) {
			return nil
		}
		if !e.transport.CanReceive() {
			return nil
		}
		frame, err := e.transport.Receive(ctx)
		if err != nil {
			// A receive failing after we initiated the shutdown is the
			// expected end of the loop, not a transport fault.
			if errors.Is(err, io.EOF) || ctx.Err() != nil || e.closed.Load() {
				return nil
			}
			e.logger.Error("transport receive failed", "error", err)
			return err
		}
		if len(frame) == 0 {
			// Clean close by the peer.
			return nil
		}
		if e.metrics != nil {
			e.metrics.framesReceived.Inc()
			e.metrics.bytesReceived.Add(float64(len(frame)))
		}
		if err := e.handleFrame(ctx, frame); err != nil {
			e.logger.Error("protocol error", "error", err)
			if cerr := e.transport.Close(ctx); cerr != nil {
				e.logger.Debug("transport close", "error", cerr)
			}
			return err
		}
	}
}

// handleFrame parses one frame and routes it: data frames to the incoming
// message they belong to, ACK frames to the outgoing message they thaw.
func (e *Engine) handleFrame(ctx context.Context, frame []byte) error {
	num, n, err := protocol.DecodeUvarint(frame)
	if err != nil {
		return err
	}
	if len(frame) <= n {
		return ErrTruncatedFrame
	}
	number := protocol.MessageNo(num)
	flags := protocol.FrameFlags(frame[n])
	payload := frame[n+1:]

	e.logger.Debug("received frame", "number", number, "flags", flags.String(), "bytes", len(payload))

	switch typ := flags.Type(); typ {
	case protocol.TypeRequest, protocol.TypeResponse, protocol.TypeError:
		final := !flags.Has(protocol.FlagMoreComing)

		var msg *MessageIn
		if typ == protocol.TypeRequest {
			msg, err = e.pendingRequest(flags, number)
			if err != nil {
				return err
			}
		} else {
			e.mu.Lock()
			msg = e.incomingResponses[number]
			if msg != nil && final {
				delete(e.incomingResponses, number)
			}
			e.mu.Unlock()
			if msg == nil {
				return fmt.Errorf("%w: %d", ErrUnknownResponseNumber, number)
			}
		}

		ack, err := msg.addFrame(flags, payload, e.decodeBuf, e.inCodec)
		if err != nil {
			return err
		}
		if ack != nil {
			if e.metrics != nil {
				e.metrics.acksSent.Inc()
			}
			if err := e.outbox.push(ack); err != nil {
				e.logger.Debug("dropping ack on closed outbox", "number", number)
			}
		}
		if final && typ == protocol.TypeRequest {
			e.dispatch(ctx, msg)
		}
		return nil

	case protocol.TypeAckRequest, protocol.TypeAckResponse:
		e.handleAck(typ, number, payload)
		return nil

	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, flags.Type())
	}
}

// pendingRequest locates or creates the incoming request a frame belongs
// to. A new request must carry the next sequential number; a lower number
// must match a tracked multi-frame request; anything higher is a protocol
// error.
func (e *Engine) pendingRequest(flags protocol.FrameFlags, number protocol.MessageNo) (*MessageIn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case number == e.inNumber+1:
		e.inNumber = number
		msg := newMessageIn(number, protocol.TypeRequest)
		if flags.Has(protocol.FlagMoreComing) {
			e.incomingRequests[number] = msg
		}
		return msg, nil

	case number <= e.inNumber:
		msg := e.incomingRequests[number]
		if msg == nil {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateMessageNumber, number)
		}
		if !flags.Has(protocol.FlagMoreComing) {
			delete(e.incomingRequests, number)
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %d after %d", ErrNumberOutOfOrder, number, e.inNumber)
	}
}

// handleAck routes an incoming acknowledgment to the outgoing message it
// refers to: first the outbox, then the icebox (thawing the message if it
// dropped below the freeze threshold). An ACK for a message that has
// already drained is benign.
func (e *Engine) handleAck(typ protocol.MessageType, number protocol.MessageNo, body []byte) {
	if e.metrics != nil {
		e.metrics.acksReceived.Inc()
	}
	ackedType := typ.Acked()
	if e.outbox.ack(ackedType, number, body) {
		return
	}
	if msg, thawed := e.icebox.ack(ackedType, number, body); msg != nil {
		if thawed {
			e.logger.Debug("thawing message", "number", number)
			if e.metrics != nil {
				e.metrics.frozenMessages.Set(float64(e.icebox.size()))
			}
			if err := e.outbox.push(msg); err != nil {
				e.logger.Debug("dropping thawed message on closed outbox", "number", number)
			}
		}
		return
	}
	e.logger.Warn("ack for unknown message", "type", ackedType.String(), "number", number)
}

// cancelPendingResponses completes every outstanding response waiter with
// a synthetic BLIP/502 error.
func (e *Engine) cancelPendingResponses() {
	e.mu.Lock()
	pending := e.incomingResponses
	e.incomingResponses = make(map[protocol.MessageNo]*MessageIn)
	e.mu.Unlock()

	for _, msg := range pending {
		msg.cancel(DomainBLIP, CodeDisconnected, "Disconnected")
	}
	if len(pending) > 0 {
		e.logger.Info("cancelled pending responses", "count", len(pending))
	}
}
