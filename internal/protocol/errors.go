package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedGreeting = errors.New("protocol: unexpected greeting")
	ErrHandshakeRejected  = errors.New("protocol: handshake rejected")
	ErrMalformedPayload   = errors.New("protocol: malformed payload")
	ErrNoPayload          = errors.New("protocol: message has no payload")
)

// Stage names the handshake step that was in progress when a protocol error occurred.
type Stage string

const (
	StageGreeting Stage = "greeting"
	StageHello    Stage = "hello"
	StageAck      Stage = "ack"
)

// ProtocolError reports a verb or payload the handshake did not accept.
type ProtocolError struct {
	Stage  Stage
	Want   Verb
	Got    Verb
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%v: stage=%s want=%s got=%s", e.Err, e.Stage, e.Want, e.Got)
	if e.Detail != "" {
		msg += fmt.Sprintf(" detail=%q", e.Detail)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err carries a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
