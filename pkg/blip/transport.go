package blip

import "context"

// Transport is the framed binary channel an Engine runs over. It sends
// and receives opaque byte frames; ordering is the transport's problem,
// framing is the engine's.
//
// The engine calls Send from its send loop and Receive from its receive
// loop, one call at a time per direction. Implementations must allow one
// concurrent sender and one concurrent receiver.
type Transport interface {
	// CanSend reports whether Send may still be called.
	CanSend() bool

	// CanReceive reports whether Receive may still be called.
	CanReceive() bool

	// Send transmits one frame. The frame slice is reused by the caller
	// after Send returns; implementations that queue it must copy.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks for the next frame. A clean close by the peer is
	// reported as an empty frame with a nil error, or as io.EOF; the
	// engine treats both as a graceful end of its loops.
	Receive(ctx context.Context) ([]byte, error)

	// Close shuts the transport down cleanly, notifying the peer.
	Close(ctx context.Context) error

	// Disconnect tears the transport down without ceremony.
	Disconnect()
}
