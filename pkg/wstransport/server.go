package wstransport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/blip-io/blip/pkg/blip"
	"github.com/blip-io/blip/pkg/protocol"
)

// Upgrader upgrades HTTP requests to BLIP WebSocket connections,
// negotiating the BLIP_3 subprotocol.
type Upgrader struct {
	// AppProtocol is the optional application subprotocol layered on
	// BLIP, producing the token "BLIP_3+<app>".
	AppProtocol string

	// CheckOrigin overrides the default same-origin check.
	CheckOrigin func(r *http.Request) bool

	// ConnOptions are applied to every upgraded connection.
	ConnOptions []Option
}

// Upgrade performs the WebSocket handshake. It fails if the handshake
// fails, in which case an HTTP error has already been written, or if the
// client did not offer the expected BLIP subprotocol, in which case the
// handshake has completed and the connection is closed.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	token := protocol.Subprotocol(u.AppProtocol)
	upgrader := websocket.Upgrader{
		Subprotocols: []string{token},
		CheckOrigin:  u.CheckOrigin,
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wstransport: upgrade: %w", err)
	}
	if ws.Subprotocol() != token {
		ws.Close()
		return nil, fmt.Errorf("wstransport: peer did not offer subprotocol %q", token)
	}
	return NewConn(ws, u.ConnOptions...), nil
}

// Handler returns an http.Handler that upgrades each request and runs a
// BLIP engine over it until the connection ends. setup registers handlers
// on the fresh engine before it starts.
func Handler(upgrader *Upgrader, setup func(*blip.Engine), opts ...blip.Option) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r)
		if err != nil {
			slog.Warn("blip upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		engine, err := blip.NewEngine(conn, opts...)
		if err != nil {
			slog.Error("engine setup failed", "error", err)
			conn.Disconnect()
			return
		}
		setup(engine)
		if err := engine.Run(r.Context()); err != nil {
			slog.Warn("blip connection ended", "remote", r.RemoteAddr, "error", err)
		}
	})
}
