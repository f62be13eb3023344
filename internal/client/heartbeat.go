package client

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/faktorykit/internal/observability"
	"github.com/danmuck/faktorykit/internal/protocol"
	"github.com/danmuck/faktorykit/internal/protocol/session"
)

// runHeartbeat sends BEAT, waits one period, and repeats until the connection closes.
// A failed send tears the connection down; replies are left for the next Receive.
func (c *Conn) runHeartbeat() {
	defer c.heartbeat.Done()

	period := c.cfg.Session.HeartbeatPeriod
	timer := time.NewTimer(period)
	timer.Stop()
	defer timer.Stop()

	for {
		if err := c.beat(); err != nil {
			if c.isClosing() {
				return
			}
			observability.RecordHeartbeat(observability.ResultFailed)
			c.log.Warn().Err(err).Msg("heartbeat failed")
			c.shutdown(fmt.Errorf("client: heartbeat: %w", err))
			return
		}
		observability.RecordHeartbeat(observability.ResultOK)

		timer.Reset(period)
		select {
		case <-c.closing:
			return
		case <-timer.C:
		}
	}
}

func (c *Conn) beat() error {
	msg, err := protocol.NewMessage(protocol.VerbBeat, session.NewBeat(c.cfg.Identity))
	if err != nil {
		return err
	}
	return c.writeMessage(context.Background(), msg)
}
