package blip

import (
	"errors"
	"fmt"
)

// Protocol errors. All of them are fatal for the connection: the receive
// loop closes the transport when one surfaces.
var (
	ErrTruncatedFrame         = errors.New("blip: truncated frame")
	ErrUnknownMessageType     = errors.New("blip: unknown message type")
	ErrUnknownResponseNumber  = errors.New("blip: response number matches no outstanding request")
	ErrDuplicateMessageNumber = errors.New("blip: duplicate message number")
	ErrNumberOutOfOrder       = errors.New("blip: message number out of order")
	ErrInconsistentType       = errors.New("blip: frame type changed mid-message")
	ErrIncompleteProperties   = errors.New("blip: message ended before properties were complete")
)

// Local-usage errors.
var (
	// ErrConnectionClosed is returned when a message is sent on an engine
	// whose outbox has been closed.
	ErrConnectionClosed = errors.New("blip: connection closed")

	// ErrAlreadySent is returned when Send is called twice on one builder.
	ErrAlreadySent = errors.New("blip: message already sent")
)

// Reserved error domains.
const (
	DomainBLIP = "BLIP"
	DomainHTTP = "HTTP"
)

// BLIP-domain error codes.
const (
	CodeNoHandler     = 404 // No handler registered for the request profile
	CodeHandlerFailed = 501 // Handler returned an error or panicked
	CodeDisconnected  = 502 // Connection closed before the response arrived
)

// RemoteError is an error response received from the peer, carried by an
// ERR message's Error-Domain and Error-Code properties and its body.
type RemoteError struct {
	Domain  string
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s/%d", e.Domain, e.Code)
	}
	return fmt.Sprintf("%s/%d: %s", e.Domain, e.Code, e.Message)
}
