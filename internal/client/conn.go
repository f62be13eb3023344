package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/faktorykit/internal/logging"
	"github.com/danmuck/faktorykit/internal/observability"
	"github.com/danmuck/faktorykit/internal/protocol"
	"github.com/danmuck/faktorykit/internal/protocol/resp"
	"github.com/danmuck/faktorykit/internal/protocol/session"
	"github.com/rs/zerolog"
)

// endWriteTimeout bounds the best-effort END frame written during Close.
const endWriteTimeout = 250 * time.Millisecond

// Config is supplied once at construction.
type Config struct {
	Dialer   Dialer
	Identity session.ClientIdentity
	Password string
	Session  session.Config
	Logger   *zerolog.Logger
}

// Conn is one job-server connection: handshake, heartbeat, and framed send/receive.
type Conn struct {
	cfg Config
	log zerolog.Logger

	state     atomic.Int32
	attempted atomic.Bool

	// mu guards transport attachment against concurrent close, and the derived password hash.
	mu        sync.Mutex
	transport io.ReadWriteCloser
	reader    *resp.Reader
	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error

	writeMu sync.Mutex
	writer  *resp.Writer

	errMu sync.Mutex
	err   error

	heartbeat sync.WaitGroup
}

// New validates cfg and fills identity and session defaults.
func New(cfg Config) (*Conn, error) {
	if cfg.Dialer == nil {
		return nil, ErrDialerRequired
	}
	if cfg.Identity.WID == "" {
		def := session.NewIdentity(cfg.Identity.Labels...)
		if cfg.Identity.Hostname == "" {
			cfg.Identity.Hostname = def.Hostname
		}
		if cfg.Identity.PID == 0 {
			cfg.Identity.PID = def.PID
		}
		cfg.Identity.WID = def.WID
		cfg.Identity.Labels = def.Labels
	}
	cfg.Identity.Labels = session.NormalizeLabels(cfg.Identity.Labels)
	cfg.Session = cfg.Session.WithDefaults()

	logger := logging.Component("client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Conn{
		cfg:     cfg,
		log:     logger.With().Str("wid", cfg.Identity.WID).Logger(),
		closing: make(chan struct{}),
	}, nil
}

// State returns the current lifecycle position.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Identity returns a copy of the identity, including any derived password hash.
func (c *Conn) Identity() session.ClientIdentity {
	c.mu.Lock()
	id := c.cfg.Identity
	c.mu.Unlock()
	id.Labels = append([]string(nil), id.Labels...)
	return id
}

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.closing
}

// Err returns the failure that tore the connection down, or nil.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Connect dials, runs the handshake, and starts the heartbeat.
// It may be called once; the handshake is bounded by ctx and the session handshake timeout.
func (c *Conn) Connect(ctx context.Context) error {
	if c.isClosing() {
		return c.closedErr()
	}
	if !c.attempted.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: state=%s", ErrAlreadyConnected, c.State())
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.cfg.Session.ConnectTimeout)
	transport, err := c.cfg.Dialer.Dial(dialCtx)
	cancelDial()
	if err != nil {
		observability.RecordHandshake(observability.ResultFailed)
		c.log.Warn().Err(err).Msg("dial failed")
		err = &TransportError{Op: OpDial, Err: err}
		c.shutdown(err)
		return err
	}
	if !c.attach(transport) {
		_ = transport.Close()
		return c.closedErr()
	}
	c.setState(StateAwaitingChallenge)

	hsCtx, cancelHandshake := context.WithTimeout(ctx, c.cfg.Session.HandshakeTimeout)
	defer cancelHandshake()
	stop := context.AfterFunc(hsCtx, func() { _ = transport.Close() })
	err = c.handshake(hsCtx)
	if !stop() && err == nil {
		err = &TransportError{Op: OpHandshake, Err: contextErr(hsCtx)}
	}
	if err != nil {
		if c.isClosing() {
			err = c.closedErr()
		} else if ctxErr := contextErr(hsCtx); ctxErr != nil && !protocol.IsProtocolError(err) {
			err = &TransportError{Op: OpHandshake, Err: ctxErr}
		}
		result := observability.ResultFailed
		if protocol.IsProtocolError(err) {
			result = observability.ResultRejected
		}
		observability.RecordHandshake(result)
		c.log.Warn().Err(err).Str("state", c.State().String()).Msg("handshake failed")
		c.shutdown(err)
		return err
	}

	if !c.startHeartbeat() {
		return c.closedErr()
	}
	observability.RecordHandshake(observability.ResultOK)
	observability.ConnectionOpened()
	c.log.Info().Dur("heartbeat", c.cfg.Session.HeartbeatPeriod).Msg("connection ready")
	return nil
}

func (c *Conn) attach(transport io.ReadWriteCloser) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosing() {
		return false
	}
	c.transport = transport
	c.reader = resp.NewReader(transport, c.cfg.Session.Limits)
	c.writer = resp.NewWriter(transport)
	return true
}

// startHeartbeat enters Ready and launches the heartbeat under mu so Close either
// observes the goroutine in the wait group or prevents it from starting.
func (c *Conn) startHeartbeat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosing() {
		return false
	}
	c.setState(StateReady)
	c.heartbeat.Add(1)
	go c.runHeartbeat()
	return true
}

// Send writes one message frame. Concurrent callers never interleave frames.
func (c *Conn) Send(ctx context.Context, msg protocol.Message) error {
	if c.isClosing() {
		return c.closedErr()
	}
	if c.State() != StateReady {
		return fmt.Errorf("%w: state=%s", ErrNotConnected, c.State())
	}
	return c.writeMessage(ctx, msg)
}

// Receive reads and decodes one inbound frame. Only one goroutine may receive at a time.
// Cancellation of ctx interrupts the read only when the transport supports deadlines.
func (c *Conn) Receive(ctx context.Context) (protocol.Message, error) {
	if c.isClosing() {
		return protocol.Message{}, c.closedErr()
	}
	if c.State() != StateReady {
		return protocol.Message{}, fmt.Errorf("%w: state=%s", ErrNotConnected, c.State())
	}
	return c.readMessage(ctx)
}

// Close stops the heartbeat and releases the transport exactly once. It is safe to call repeatedly.
func (c *Conn) Close() error {
	c.shutdown(nil)
	c.heartbeat.Wait()
	return c.closeErr
}

func (c *Conn) writeMessage(ctx context.Context, msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosing() {
		return c.closedErr()
	}
	c.setWriteDeadline(ctx, c.cfg.Session.WriteTimeout)
	if err := c.writer.WriteFrame(msg.Frame()); err != nil {
		return c.ioErr(OpWrite, err)
	}
	if err := c.writer.Flush(); err != nil {
		return c.ioErr(OpWrite, err)
	}
	observability.RecordFrame(observability.DirectionOut, msg.Verb.String())
	return nil
}

func (c *Conn) readMessage(ctx context.Context) (protocol.Message, error) {
	stop := c.watchRead(ctx)
	f, err := c.reader.ReadFrame()
	stop()
	if err != nil {
		if ctxErr := contextErr(ctx); ctxErr != nil && !c.isClosing() {
			return protocol.Message{}, &TransportError{Op: OpRead, Err: ctxErr}
		}
		return protocol.Message{}, c.ioErr(OpRead, err)
	}
	msg := protocol.FromFrame(f)
	observability.RecordFrame(observability.DirectionIn, msg.Verb.String())
	return msg, nil
}

// shutdown performs the one-time teardown. A non-nil cause marks the connection failed.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.State()
		if cause != nil {
			c.errMu.Lock()
			c.err = cause
			c.errMu.Unlock()
			c.setState(StateFailed)
		} else {
			c.setState(StateClosed)
		}
		close(c.closing)
		transport := c.transport
		c.mu.Unlock()

		if transport == nil {
			return
		}
		if prev == StateReady {
			observability.ConnectionClosed()
			if cause == nil {
				c.sendEnd()
			}
		}
		if err := transport.Close(); err != nil {
			c.closeErr = &TransportError{Op: OpClose, Err: err}
		}
		c.log.Info().Str("state", c.State().String()).Msg("connection closed")
	})
}

// sendEnd writes END if no other frame is mid-write.
func (c *Conn) sendEnd() {
	if !c.writeMu.TryLock() {
		return
	}
	defer c.writeMu.Unlock()
	c.setWriteDeadline(context.Background(), endWriteTimeout)
	if err := c.writer.WriteFrame(protocol.Message{Verb: protocol.VerbEnd}.Frame()); err != nil {
		return
	}
	if err := c.writer.Flush(); err == nil {
		observability.RecordFrame(observability.DirectionOut, protocol.VerbEnd.String())
	}
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Conn) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return ErrClosed
}

func (c *Conn) ioErr(op string, err error) error {
	if c.isClosing() {
		return c.closedErr()
	}
	if errors.Is(err, resp.ErrLineBreak) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

func (c *Conn) setWriteDeadline(ctx context.Context, timeout time.Duration) {
	d, ok := c.transport.(writeDeadliner)
	if !ok {
		return
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = d.SetWriteDeadline(deadline)
}

// watchRead applies ctx's deadline to the read and expires it early on cancellation.
func (c *Conn) watchRead(ctx context.Context) func() {
	d, ok := c.transport.(readDeadliner)
	if !ok {
		return func() {}
	}
	deadline, _ := ctx.Deadline()
	_ = d.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = d.SetReadDeadline(time.Now()) })
	return func() { stop() }
}

// contextErr reports ctx's error, treating an elapsed deadline as expired even
// before the context's own timer has fired.
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}
