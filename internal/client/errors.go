package client

import (
	"errors"
	"fmt"
)

var (
	ErrDialerRequired   = errors.New("client: dialer required")
	ErrAddressRequired  = errors.New("client: server address required")
	ErrAlreadyConnected = errors.New("client: connect already attempted")
	ErrNotConnected     = errors.New("client: connection not ready")
	// ErrClosed is returned by every operation after Close or a heartbeat failure.
	ErrClosed = errors.New("client: connection closed")
)

const (
	OpDial      = "dial"
	OpHandshake = "handshake"
	OpRead      = "read"
	OpWrite     = "write"
	OpClose     = "close"
)

// TransportError wraps an I/O failure on the underlying stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
