package client

import (
	"context"

	"github.com/danmuck/faktorykit/internal/protocol"
	"github.com/danmuck/faktorykit/internal/protocol/session"
)

// handshake runs the two round trips: HI -> HELLO -> OK. Any deviation is fatal.
func (c *Conn) handshake(ctx context.Context) error {
	msg, err := c.readMessage(ctx)
	if err != nil {
		return err
	}
	if msg.Verb != protocol.VerbHi {
		return &protocol.ProtocolError{
			Stage:  protocol.StageGreeting,
			Want:   protocol.VerbHi,
			Got:    msg.Verb,
			Detail: msg.Payload,
			Err:    protocol.ErrUnexpectedGreeting,
		}
	}
	c.setState(StateChallengeReceived)

	challenge, err := session.ParseChallenge(msg)
	if err != nil {
		return &protocol.ProtocolError{
			Stage: protocol.StageGreeting,
			Want:  protocol.VerbHi,
			Got:   msg.Verb,
			Err:   err,
		}
	}
	if challenge.Version != session.ProtocolVersion {
		c.log.Warn().
			Int("server_version", challenge.Version).
			Int("client_version", session.ProtocolVersion).
			Msg("protocol version mismatch")
	}
	if challenge.RequiresPassword() {
		hash := session.PasswordHash(c.cfg.Password, challenge.Nonce, challenge.Iterations)
		c.mu.Lock()
		c.cfg.Identity.PasswordHash = hash
		c.mu.Unlock()
	}
	c.log.Debug().
		Int("version", challenge.Version).
		Bool("auth", challenge.RequiresPassword()).
		Msg("challenge received")

	hello, err := protocol.NewMessage(protocol.VerbHello, session.NewHello(c.cfg.Identity))
	if err != nil {
		return err
	}
	if err := c.writeMessage(ctx, hello); err != nil {
		return err
	}
	c.setState(StateHelloSent)

	msg, err = c.readMessage(ctx)
	if err != nil {
		return err
	}
	if msg.Verb != protocol.VerbOk {
		return &protocol.ProtocolError{
			Stage:  protocol.StageAck,
			Want:   protocol.VerbOk,
			Got:    msg.Verb,
			Detail: msg.Payload,
			Err:    protocol.ErrHandshakeRejected,
		}
	}
	c.log.Debug().Msg("hello acknowledged")
	return nil
}
