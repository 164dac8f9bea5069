package wstransport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a WebSocket connection to the blip.Transport contract.
// One goroutine may send while another receives; gorilla/websocket
// supports exactly that split.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeTimeout time.Duration
	readTimeout  time.Duration

	sendClosed atomic.Bool
	recvClosed atomic.Bool
	closeOnce  sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// WithWriteTimeout bounds each frame write. Default 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.writeTimeout = d
	}
}

// WithReadTimeout bounds the wait for each incoming frame. Zero (the
// default) waits indefinitely.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.readTimeout = d
	}
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn, opts ...Option) *Conn {
	c := &Conn{
		ws:           ws,
		logger:       slog.Default(),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subprotocol returns the negotiated WebSocket subprotocol token.
func (c *Conn) Subprotocol() string {
	return c.ws.Subprotocol()
}

// CanSend reports whether Send may still be called.
func (c *Conn) CanSend() bool { return !c.sendClosed.Load() }

// CanReceive reports whether Receive may still be called.
func (c *Conn) CanReceive() bool { return !c.recvClosed.Load() }

// Send writes one frame as a binary WebSocket message. The write deadline
// comes from ctx when it has one, else from the configured write timeout.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	c.ws.SetWriteDeadline(deadline)

	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.sendClosed.Store(true)
		return fmt.Errorf("wstransport: send: %w", err)
	}
	return nil
}

// Receive blocks for the next binary message. A clean close by the peer
// is reported as io.EOF. Non-binary messages are skipped.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	for {
		deadline := time.Time{}
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		} else if c.readTimeout > 0 {
			deadline = time.Now().Add(c.readTimeout)
		}
		c.ws.SetReadDeadline(deadline)

		messageType, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.recvClosed.Store(true)
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("wstransport: receive: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			c.logger.Warn("ignoring non-binary message", "type", messageType)
			continue
		}
		return frame, nil
	}
}

// Close performs the WebSocket closing handshake and tears the
// connection down. Idempotent.
func (c *Conn) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.sendClosed.Store(true)
		deadline := time.Now().Add(c.writeTimeout)
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		}
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteControl(websocket.CloseMessage, message, deadline); werr != nil {
			c.logger.Debug("close message", "error", werr)
		}
		err = c.ws.Close()
	})
	return err
}

// Disconnect tears the connection down without the closing handshake.
func (c *Conn) Disconnect() {
	c.sendClosed.Store(true)
	c.recvClosed.Store(true)
	if err := c.ws.Close(); err != nil {
		c.logger.Debug("disconnect", "error", err)
	}
}
