package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/faktorykit/internal/client"
	"github.com/danmuck/faktorykit/internal/logging"
	"github.com/danmuck/faktorykit/internal/protocol"
	"github.com/danmuck/faktorykit/internal/protocol/session"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// errTerminate ends the supervise loop when the server asks the worker to stop.
var errTerminate = errors.New("agent: server requested terminate")

// ServiceConfig is the resolved runtime configuration of one agent.
type ServiceConfig struct {
	Address            string
	Password           string
	Identity           session.ClientIdentity
	Session            session.Config
	MetricsListen      string
	MaxConnectAttempts int
	// StableAfter is the uptime that resets reconnect backoff; zero means one heartbeat period.
	StableAfter time.Duration
	// Dialer overrides the TCP/TLS dialer built from Address.
	Dialer client.Dialer
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Address: "localhost:" + client.DefaultPort,
		Session: session.DefaultConfig(),
	}
}

// Service supervises reconnects for one worker identity.
type Service struct {
	cfg     ServiceConfig
	log     zerolog.Logger
	dialer  client.Dialer
	rng     *rand.Rand
	started time.Time

	connMu sync.Mutex
	conn   *client.Conn

	connects atomic.Int64
	quiet    atomic.Bool
}

func NewService(cfg ServiceConfig) *Service {
	if strings.TrimSpace(cfg.Address) == "" {
		cfg.Address = DefaultServiceConfig().Address
	}
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Identity.WID == "" {
		def := session.NewIdentity(cfg.Identity.Labels...)
		if cfg.Identity.Hostname == "" {
			cfg.Identity.Hostname = def.Hostname
		}
		if cfg.Identity.PID == 0 {
			cfg.Identity.PID = def.PID
		}
		cfg.Identity.WID = def.WID
	}
	cfg.Identity.Labels = session.NormalizeLabels(cfg.Identity.Labels)

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = client.NetDialer{Address: cfg.Address, Session: cfg.Session}
	}
	return &Service{
		cfg:     cfg,
		log:     logging.Component("agent").With().Str("addr", cfg.Address).Str("wid", cfg.Identity.WID).Logger(),
		dialer:  dialer,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		started: time.Now(),
	}
}

// Identity returns the worker identity shared by every reconnect.
func (s *Service) Identity() session.ClientIdentity {
	return s.cfg.Identity
}

// Connects returns how many handshakes have completed.
func (s *Service) Connects() int64 {
	return s.connects.Load()
}

// Quiet reports whether the server has asked this worker to stop fetching.
func (s *Service) Quiet() bool {
	return s.quiet.Load()
}

// State returns the current connection state, idle between connections.
func (s *Service) State() client.State {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return client.StateIdle
	}
	return s.conn.State()
}

// Run blocks until SIGINT or SIGTERM, or until the supervise loop gives up.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext supervises the connection and the optional admin listener until ctx ends.
// The admin listener stops as soon as the supervise loop returns.
func (s *Service) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return s.supervise(gctx)
	})
	if addr := strings.TrimSpace(s.cfg.MetricsListen); addr != "" {
		g.Go(func() error {
			return s.serveAdmin(gctx, addr)
		})
	}
	return g.Wait()
}

// Info connects once, sends INFO, and returns the server's JSON reply.
func (s *Service) Info(ctx context.Context) ([]byte, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.setConn(nil)
		_ = conn.Close()
	}()
	return QueryInfo(ctx, conn)
}

// QueryInfo sends INFO on a ready connection and skips beat acknowledgements until the reply arrives.
func QueryInfo(ctx context.Context, conn *client.Conn) ([]byte, error) {
	if err := conn.Send(ctx, protocol.Message{Verb: protocol.VerbInfo}); err != nil {
		return nil, err
	}
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return nil, err
		}
		switch msg.Verb {
		case protocol.VerbOk:
			continue
		case protocol.VerbData:
			return []byte(msg.Payload), nil
		case protocol.VerbError:
			return nil, fmt.Errorf("agent: server error: %s", msg.Payload)
		default:
			return nil, fmt.Errorf("agent: unexpected info reply verb=%s", msg.Verb)
		}
	}
}

func (s *Service) supervise(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			if limit := s.cfg.MaxConnectAttempts; limit > 0 && attempt >= limit {
				return fmt.Errorf("agent: giving up after %d connect attempts: %w", attempt, err)
			}
			delay := session.NextBackoffDelay(s.cfg.Session.Backoff, attempt, s.rng)
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("connect failed")
			if !sleepContext(ctx, delay) {
				return nil
			}
			continue
		}
		up := time.Now()

		err = s.drain(ctx, conn)
		s.setConn(nil)
		_ = conn.Close()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errTerminate):
			s.log.Info().Msg("server requested terminate; stopping")
			return nil
		}
		if cause := conn.Err(); cause != nil {
			err = cause
		}
		// A connection that dies before it proves stable keeps the backoff growing.
		if time.Since(up) >= s.stableAfter() {
			attempt = 0
			s.log.Warn().Err(err).Msg("connection lost; reconnecting")
			continue
		}
		attempt++
		delay := session.NextBackoffDelay(s.cfg.Session.Backoff, attempt, s.rng)
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("connection lost early; reconnecting")
		if !sleepContext(ctx, delay) {
			return nil
		}
	}
}

// stableAfter is how long a connection must stay up before the backoff resets.
func (s *Service) stableAfter() time.Duration {
	if s.cfg.StableAfter > 0 {
		return s.cfg.StableAfter
	}
	return s.cfg.Session.HeartbeatPeriod
}

func (s *Service) connect(ctx context.Context) (*client.Conn, error) {
	conn, err := client.New(client.Config{
		Dialer:   s.dialer,
		Identity: s.cfg.Identity,
		Password: s.cfg.Password,
		Session:  s.cfg.Session,
	})
	if err != nil {
		return nil, err
	}
	s.setConn(conn)
	if err := conn.Connect(ctx); err != nil {
		s.setConn(nil)
		return nil, err
	}
	s.connects.Add(1)
	return conn, nil
}

// drain reads replies until the connection fails or the server requests terminate.
func (s *Service) drain(ctx context.Context, conn *client.Conn) error {
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch msg.Verb {
		case protocol.VerbOk:
		case protocol.VerbData:
			reply, err := session.ParseBeatReply(msg)
			if err != nil {
				s.log.Debug().Err(err).Msg("ignoring bulk reply")
				continue
			}
			switch reply.State {
			case session.BeatStateQuiet:
				if !s.quiet.Swap(true) {
					s.log.Info().Msg("server requested quiet")
				}
			case session.BeatStateTerminate:
				return errTerminate
			}
		case protocol.VerbError:
			s.log.Warn().Str("error", msg.Payload).Msg("server error reply")
		default:
			s.log.Debug().Str("verb", msg.Verb.String()).Msg("ignoring reply")
		}
	}
}

func (s *Service) setConn(conn *client.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
