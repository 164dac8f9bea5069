// Package blip implements the BLIP message-multiplexing engine.
//
// BLIP provides request/response semantics with per-message property
// headers, streaming message bodies, interleaved delivery of concurrent
// messages, optional per-message compression, and flow control via
// acknowledgments — all over a single bidirectional binary-message
// transport such as a WebSocket connection.
//
// # Engine
//
// The core type is the Engine. An Engine owns one Transport and runs two
// loops: a send loop draining the outbox one frame at a time, and a
// receive loop assembling incoming frames into messages and dispatching
// completed requests to registered handlers.
//
//	engine, err := blip.NewEngine(transport)
//	if err != nil {
//	    // Handle error
//	}
//	engine.Handle("Echo", func(r *blip.Request) error {
//	    resp := r.Response()
//	    resp.SetBody(r.Body())
//	    _, err := resp.Send()
//	    return err
//	})
//	err = engine.Run(ctx)
//
// # Requests and responses
//
// Outgoing messages are built with the Message builder and handed to the
// engine by Send. Sending a request returns a pending *MessageIn whose
// Done channel closes when the response (or an error) arrives:
//
//	req := engine.NewRequest()
//	req.SetProfile("Echo")
//	req.SetBody([]byte("hello"))
//	resp, err := req.Send()
//	if err != nil {
//	    // Handle error
//	}
//	<-resp.Done()
//	if remote := resp.Error(); remote != nil {
//	    // Peer replied with an error
//	}
//
// # Flow control
//
// Large messages are split into frames and interleaved with other queued
// messages. A receiver acknowledges every 50,000 unacknowledged bytes of
// a message; a sender that has 100,000 bytes outstanding freezes the
// message in the icebox until an ACK thaws it. ACK frames jump to the
// head of the outbox so they overtake queued data frames.
//
// # Shutdown
//
// CloseWhenIdle requests a graceful shutdown: once no requests or
// responses are in flight and the outbox and icebox are empty, the engine
// closes the outbox and the transport. Pending response waiters are
// completed with a BLIP/502 "Disconnected" error when the connection ends
// before their response arrives.
package blip
