package blip

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blip-io/blip/pkg/protocol"
)

// Handler processes one completed incoming request. Handlers run inline
// on the receive loop; a handler that must block should hand the work to
// another goroutine and respond from there.
//
// Returning an error (or panicking) sends a BLIP/501 error response to
// the requester unless the request was noReply.
type Handler func(r *Request) error

// Request pairs a completed incoming request with the engine it arrived
// on, so handlers can build responses.
type Request struct {
	*MessageIn
	engine    *Engine
	responded bool
}

// Response returns a response builder addressed to this request, or nil
// if the request was sent noReply.
func (r *Request) Response() *Message {
	if r.NoReply() {
		return nil
	}
	m := newMessage(protocol.TypeResponse)
	m.responseTo = r.number
	m.send = r.sendResponse
	return m
}

func (r *Request) sendResponse(m *Message) (*MessageIn, error) {
	err := r.engine.sendResponse(m)
	if err == nil {
		r.responded = true
	}
	return nil, err
}

// ErrorResponse returns an error-response builder carrying the given
// domain, code, and message text, or nil if the request was noReply. The
// domain property is omitted when it is the default BLIP domain.
func (r *Request) ErrorResponse(domain string, code int, message string) *Message {
	if r.NoReply() {
		return nil
	}
	m := newMessage(protocol.TypeError)
	m.responseTo = r.number
	m.SetProperty(ErrorCodeProperty, strconv.Itoa(code))
	if domain != DomainBLIP {
		m.SetProperty(ErrorDomainProperty, domain)
	}
	m.SetBody([]byte(message))
	m.send = r.sendResponse
	return m
}

// Handle registers a handler for requests whose Profile property equals
// profile.
func (e *Engine) Handle(profile string, h Handler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.handlers[profile] = h
}

// HandleDefault registers the handler for requests whose profile matches
// nothing else.
func (e *Engine) HandleDefault(h Handler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.defaultHandler = h
}

func (e *Engine) lookupHandler(profile string) Handler {
	e.handlerMu.RLock()
	defer e.handlerMu.RUnlock()
	if h, ok := e.handlers[profile]; ok {
		return h
	}
	return e.defaultHandler
}

// dispatch routes one completed request to its handler. A request is
// dispatched exactly once, on the frame that clears the moreComing bit.
func (e *Engine) dispatch(ctx context.Context, msg *MessageIn) {
	profile := msg.Profile()
	req := &Request{MessageIn: msg, engine: e}

	handler := e.lookupHandler(profile)
	if handler == nil {
		e.logger.Info("no handler for request", "profile", profile, "number", msg.number)
		e.observeDispatch(profile, "no_handler", 0)
		if !msg.NoReply() {
			if _, err := req.ErrorResponse(DomainBLIP, CodeNoHandler, "No handler").Send(); err != nil {
				e.logger.Debug("dropping error response", "number", msg.number, "error", err)
			}
		}
		return
	}

	start := time.Now()
	err := e.invoke(ctx, profile, handler, req)
	status := "ok"
	if err != nil {
		status = "error"
		e.logger.Error("handler failed", "profile", profile, "number", msg.number, "error", err)
		// A failing handler that already sent its response must not get a
		// second response on the same number.
		if !msg.NoReply() && !req.responded {
			if _, serr := req.ErrorResponse(DomainBLIP, CodeHandlerFailed, err.Error()).Send(); serr != nil {
				e.logger.Debug("dropping error response", "number", msg.number, "error", serr)
			}
		}
	}
	e.observeDispatch(profile, status, time.Since(start))
}

// invoke runs a handler with panic recovery, wrapped in a tracing span
// when tracing is enabled.
func (e *Engine) invoke(ctx context.Context, profile string, handler Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			e.logger.Error("handler panic", "profile", profile, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if e.tracer == nil {
		return handler(req)
	}

	_, span := e.tracer.Start(ctx, "blip.request",
		trace.WithAttributes(
			attribute.String("blip.profile", profile),
			attribute.Int64("blip.message_number", int64(req.number)),
		))
	defer span.End()

	if err := handler(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (e *Engine) observeDispatch(profile, status string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.requestsDispatched.WithLabelValues(profile, status).Inc()
	if d > 0 {
		e.metrics.dispatchDuration.WithLabelValues(profile).Observe(d.Seconds())
	}
}
