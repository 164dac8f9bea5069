package wstransport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/blip-io/blip/pkg/protocol"
)

// Dial connects to a BLIP WebSocket endpoint, negotiating the BLIP_3
// subprotocol (extended with appProtocol when non-empty).
func Dial(ctx context.Context, url, appProtocol string, opts ...Option) (*Conn, error) {
	return DialHeader(ctx, url, appProtocol, nil, opts...)
}

// DialHeader is Dial with extra handshake request headers.
func DialHeader(ctx context.Context, url, appProtocol string, header http.Header, opts ...Option) (*Conn, error) {
	token := protocol.Subprotocol(appProtocol)
	dialer := websocket.Dialer{
		Subprotocols: []string{token},
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wstransport: dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("wstransport: dial %s: %w", url, err)
	}
	if ws.Subprotocol() != token {
		ws.Close()
		return nil, fmt.Errorf("wstransport: server did not accept subprotocol %q", token)
	}
	return NewConn(ws, opts...), nil
}
