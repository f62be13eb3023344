package client

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/faktorykit/internal/protocol"
	"github.com/danmuck/faktorykit/internal/protocol/resp"
	"github.com/danmuck/faktorykit/internal/protocol/session"
)

// countingConn records how many times Close reaches the transport.
type countingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// fakeServer is the job-server end of a net.Pipe.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	r    *resp.Reader
	w    *resp.Writer
}

func newPipe(t *testing.T) (*countingConn, *fakeServer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() { _ = serverEnd.Close() })
	return &countingConn{Conn: clientEnd}, &fakeServer{
		t:    t,
		conn: serverEnd,
		r:    resp.NewReader(serverEnd, resp.DefaultLimits()),
		w:    resp.NewWriter(serverEnd),
	}
}

func pipeDialer(conn io.ReadWriteCloser) Dialer {
	return DialerFunc(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return conn, nil
	})
}

func (s *fakeServer) send(f resp.Frame) error {
	if err := s.w.WriteFrame(f); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *fakeServer) read() (protocol.Message, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := s.r.ReadFrame()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.FromFrame(f), nil
}

// greet runs the server side of the handshake and returns the decoded hello.
func (s *fakeServer) greet(challenge string) (session.Hello, error) {
	if err := s.send(resp.Simple("HI " + challenge)); err != nil {
		return session.Hello{}, err
	}
	msg, err := s.read()
	if err != nil {
		return session.Hello{}, err
	}
	var hello session.Hello
	if err := msg.Decode(&hello); err != nil {
		return session.Hello{}, err
	}
	if err := s.send(resp.Simple("OK")); err != nil {
		return session.Hello{}, err
	}
	return hello, nil
}

func testConfig(dialer Dialer) Config {
	cfg := session.DefaultConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.HeartbeatPeriod = time.Hour
	return Config{
		Dialer: dialer,
		Identity: session.ClientIdentity{
			Hostname: "test-host",
			PID:      4242,
			WID:      "wid-test",
			Labels:   []string{"go"},
		},
		Session: cfg,
	}
}

// connectReady dials a fresh pipe, completes the handshake, and consumes the first beat.
func connectReady(t *testing.T, mutate func(*Config)) (*Conn, *fakeServer, *countingConn) {
	t.Helper()
	clientEnd, srv := newPipe(t)
	cfg := testConfig(pipeDialer(clientEnd))
	if mutate != nil {
		mutate(&cfg)
	}
	conn, err := New(cfg)
	if err != nil {
		t.Fatalf("new conn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	errc := make(chan error, 1)
	go func() {
		_, err := srv.greet(`{"v":2}`)
		errc <- err
	}()
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
	msg, err := srv.read()
	if err != nil {
		t.Fatalf("read first beat: %v", err)
	}
	if msg.Verb != protocol.VerbBeat {
		t.Fatalf("expected first frame after handshake to be BEAT, got %s", msg.Verb)
	}
	return conn, srv, clientEnd
}
