package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/faktorykit/internal/protocol"
	"github.com/danmuck/faktorykit/internal/protocol/resp"
	"github.com/danmuck/faktorykit/internal/protocol/session"
	"github.com/danmuck/faktorykit/internal/testutil/testlog"
)

func TestNewRequiresDialer(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{}); !errors.Is(err, ErrDialerRequired) {
		t.Fatalf("expected ErrDialerRequired, got %v", err)
	}
}

func TestNewFillsIdentityDefaults(t *testing.T) {
	testlog.Start(t)
	conn, err := New(Config{
		Dialer:   DialerFunc(func(context.Context) (io.ReadWriteCloser, error) { return nil, io.EOF }),
		Identity: session.ClientIdentity{Labels: []string{"b", "a"}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	id := conn.Identity()
	if id.WID == "" || id.Hostname == "" || id.PID == 0 {
		t.Fatalf("identity defaults not applied: %+v", id)
	}
	if len(id.Labels) != 2 || id.Labels[0] != "a" {
		t.Fatalf("labels not normalized: %+v", id.Labels)
	}
	if conn.State() != StateIdle {
		t.Fatalf("unexpected initial state: %s", conn.State())
	}
}

func TestConnectHandshakeWithPassword(t *testing.T) {
	testlog.Start(t)
	clientEnd, srv := newPipe(t)
	cfg := testConfig(pipeDialer(clientEnd))
	cfg.Password = "secret"
	conn, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer conn.Close()

	helloc := make(chan session.Hello, 1)
	errc := make(chan error, 1)
	go func() {
		hello, err := srv.greet(`{"v":2,"s":"abc123","i":1}`)
		helloc <- hello
		errc <- err
	}()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
	hello := <-helloc
	want := "42416b7fc9a656af2a2e9d09157317bb2ccfdd4a3717d6847836e480f8418b48"
	if hello.PasswordHash != want {
		t.Fatalf("unexpected pwdhash: %q", hello.PasswordHash)
	}
	if hello.Hostname != "test-host" || hello.PID != 4242 || hello.WID != "wid-test" || hello.Version != session.ProtocolVersion {
		t.Fatalf("unexpected hello: %+v", hello)
	}
	if len(hello.Labels) != 1 || hello.Labels[0] != "go" {
		t.Fatalf("unexpected labels: %+v", hello.Labels)
	}
	if conn.State() != StateReady {
		t.Fatalf("expected ready, got %s", conn.State())
	}
	if conn.Identity().PasswordHash != want {
		t.Fatalf("identity hash not stored: %q", conn.Identity().PasswordHash)
	}

	beat, err := srv.read()
	if err != nil {
		t.Fatalf("read beat: %v", err)
	}
	if beat.Verb != protocol.VerbBeat || beat.Payload != `{"wid":"wid-test"}` {
		t.Fatalf("unexpected beat: %+v", beat)
	}
}

func TestConnectWithoutNonceLeavesHashUntouched(t *testing.T) {
	testlog.Start(t)
	for _, preset := range []string{"", "preset-hash"} {
		clientEnd, srv := newPipe(t)
		cfg := testConfig(pipeDialer(clientEnd))
		cfg.Password = "secret"
		cfg.Identity.PasswordHash = preset
		conn, err := New(cfg)
		if err != nil {
			t.Fatalf("new: %v", err)
		}

		helloc := make(chan session.Hello, 1)
		go func() {
			hello, _ := srv.greet(`{"v":2}`)
			helloc <- hello
		}()
		if err := conn.Connect(context.Background()); err != nil {
			t.Fatalf("connect: %v", err)
		}
		hello := <-helloc
		if hello.PasswordHash != preset {
			t.Fatalf("preset=%q: hello carried pwdhash %q", preset, hello.PasswordHash)
		}
		if conn.Identity().PasswordHash != preset {
			t.Fatalf("preset=%q: identity hash changed to %q", preset, conn.Identity().PasswordHash)
		}
		_ = conn.Close()
	}
}

func TestConnectUnexpectedGreeting(t *testing.T) {
	testlog.Start(t)
	clientEnd, srv := newPipe(t)
	conn, err := New(testConfig(pipeDialer(clientEnd)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	go func() { _ = srv.send(resp.Simple("OK")) }()

	err = conn.Connect(context.Background())
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !errors.Is(err, protocol.ErrUnexpectedGreeting) || pe.Stage != protocol.StageGreeting || pe.Got != protocol.VerbOk {
		t.Fatalf("unexpected protocol error: %+v", pe)
	}
	if conn.State() != StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
	if _, err := srv.read(); err == nil {
		t.Fatalf("expected no frames after a failed greeting")
	}
	if clientEnd.closes.Load() != 1 {
		t.Fatalf("expected transport closed once, got %d", clientEnd.closes.Load())
	}
}

func TestConnectMalformedChallenge(t *testing.T) {
	testlog.Start(t)
	clientEnd, srv := newPipe(t)
	conn, err := New(testConfig(pipeDialer(clientEnd)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	go func() { _ = srv.send(resp.Simple("HI {broken")) }()

	err = conn.Connect(context.Background())
	if !protocol.IsProtocolError(err) || !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload protocol error, got %v", err)
	}
	if conn.State() != StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
}

func TestConnectHandshakeRejected(t *testing.T) {
	testlog.Start(t)
	clientEnd, srv := newPipe(t)
	conn, err := New(testConfig(pipeDialer(clientEnd)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	go func() {
		_ = srv.send(resp.Simple(`HI {"v":2,"s":"n"}`))
		if _, err := srv.read(); err != nil {
			return
		}
		_ = srv.send(resp.Frame{Kind: resp.KindError, Text: "ERR Invalid password"})
	}()

	err = conn.Connect(context.Background())
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) || !errors.Is(err, protocol.ErrHandshakeRejected) {
		t.Fatalf("expected handshake rejected, got %v", err)
	}
	if pe.Stage != protocol.StageAck || pe.Got != protocol.VerbError || !strings.Contains(pe.Detail, "Invalid password") {
		t.Fatalf("unexpected protocol error: %+v", pe)
	}
	if conn.State() != StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
	if _, err := srv.read(); err == nil {
		t.Fatalf("heartbeat must not start after a rejected handshake")
	}
}

func TestConnectDialFailure(t *testing.T) {
	testlog.Start(t)
	dialErr := errors.New("connection refused")
	conn, err := New(testConfig(DialerFunc(func(context.Context) (io.ReadWriteCloser, error) {
		return nil, dialErr
	})))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = conn.Connect(context.Background())
	var te *TransportError
	if !errors.As(err, &te) || te.Op != OpDial || !errors.Is(err, dialErr) {
		t.Fatalf("expected dial transport error, got %v", err)
	}
	if conn.State() != StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close after dial failure: %v", err)
	}
}

func TestConnectOnlyOnce(t *testing.T) {
	testlog.Start(t)
	conn, _, _ := connectReady(t, nil)
	if err := conn.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if conn.State() != StateReady {
		t.Fatalf("second connect must not disturb state, got %s", conn.State())
	}
}

func TestConnectHandshakeTimeout(t *testing.T) {
	testlog.Start(t)
	clientEnd, _ := newPipe(t)
	cfg := testConfig(pipeDialer(clientEnd))
	cfg.Session.HandshakeTimeout = 50 * time.Millisecond
	conn, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	start := time.Now()
	err = conn.Connect(context.Background())
	if !IsTransportError(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected handshake deadline, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("handshake timeout not honored: %v", time.Since(start))
	}
	if conn.State() != StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
}

func TestConnectCanceledByClose(t *testing.T) {
	testlog.Start(t)
	clientEnd, _ := newPipe(t)
	conn, err := New(testConfig(pipeDialer(clientEnd)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- conn.Connect(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for conn.State() != StateAwaitingChallenge && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed from interrupted connect, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("connect not interrupted by close")
	}
	if clientEnd.closes.Load() < 1 {
		t.Fatalf("expected transport closed")
	}
}

func TestHeartbeatSendsEachPeriod(t *testing.T) {
	testlog.Start(t)
	period := 20 * time.Millisecond
	conn, srv, _ := connectReady(t, func(cfg *Config) {
		cfg.Session.HeartbeatPeriod = period
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		msg, err := srv.read()
		if err != nil {
			t.Fatalf("read beat %d: %v", i, err)
		}
		if msg.Verb != protocol.VerbBeat {
			t.Fatalf("expected BEAT, got %s", msg.Verb)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*period {
		t.Fatalf("beats arrived faster than the period: %v", elapsed)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for {
		msg, err := srv.read()
		if err != nil {
			break
		}
		if msg.Verb == protocol.VerbBeat {
			continue
		}
		if msg.Verb != protocol.VerbEnd {
			t.Fatalf("unexpected frame after close: %+v", msg)
		}
	}
}

func TestCloseInterruptsHeartbeatWait(t *testing.T) {
	testlog.Start(t)
	conn, _, _ := connectReady(t, nil)

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- conn.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("close waited out the heartbeat period")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("close too slow: %v", time.Since(start))
	}
	select {
	case <-conn.Done():
	default:
		t.Fatalf("done channel not closed")
	}
}

func TestCloseSendsEndAndIsIdempotent(t *testing.T) {
	testlog.Start(t)
	conn, srv, clientEnd := connectReady(t, nil)
	time.Sleep(20 * time.Millisecond)

	endc := make(chan protocol.Message, 1)
	go func() {
		msg, _ := srv.read()
		endc <- msg
	}()
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if msg := <-endc; msg.Verb != protocol.VerbEnd {
		t.Fatalf("expected END on close, got %+v", msg)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := clientEnd.closes.Load(); got != 1 {
		t.Fatalf("expected one transport close, got %d", got)
	}
	if conn.State() != StateClosed {
		t.Fatalf("expected closed, got %s", conn.State())
	}

	if err := conn.Send(context.Background(), protocol.Message{Verb: protocol.VerbInfo}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from send, got %v", err)
	}
	if _, err := conn.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from receive, got %v", err)
	}
	if err := conn.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from connect, got %v", err)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	testlog.Start(t)
	conn, _, _ := connectReady(t, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	_ = conn.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed for in-flight receive, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive not unblocked by close")
	}
}

func TestSendBeforeConnect(t *testing.T) {
	testlog.Start(t)
	clientEnd, _ := newPipe(t)
	conn, err := New(testConfig(pipeDialer(clientEnd)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := conn.Send(context.Background(), protocol.Message{Verb: protocol.VerbInfo}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := conn.Receive(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestHeartbeatFailureTearsDown(t *testing.T) {
	testlog.Start(t)
	clientEnd, srv := newPipe(t)
	conn, err := New(testConfig(pipeDialer(clientEnd)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer conn.Close()

	go func() {
		if _, err := srv.greet(`{"v":2}`); err != nil {
			return
		}
		_ = srv.conn.Close()
	}()
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat failure did not tear the connection down")
	}
	if conn.State() != StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
	if conn.Err() == nil || !IsTransportError(conn.Err()) {
		t.Fatalf("expected transport failure cause, got %v", conn.Err())
	}
	err = conn.Send(context.Background(), protocol.Message{Verb: protocol.VerbInfo})
	if !errors.Is(err, ErrClosed) || !IsTransportError(err) {
		t.Fatalf("expected ErrClosed wrapping the heartbeat cause, got %v", err)
	}
}

func TestReceiveUnknownAndBulkFrames(t *testing.T) {
	testlog.Start(t)
	conn, srv, _ := connectReady(t, nil)

	go func() {
		_ = srv.send(resp.Simple(`SHOUT {"secret":1}`))
		_ = srv.send(resp.Bulk(`{"state":"quiet"}`))
		_ = srv.send(resp.Simple("OK"))
	}()

	msg, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive unknown: %v", err)
	}
	if msg.Verb != protocol.VerbUnknown || msg.HasPayload() {
		t.Fatalf("expected unknown frame without payload, got %+v", msg)
	}

	msg, err = conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive bulk: %v", err)
	}
	reply, err := session.ParseBeatReply(msg)
	if err != nil || reply.State != session.BeatStateQuiet {
		t.Fatalf("unexpected beat reply: %+v err=%v", reply, err)
	}

	msg, err = conn.Receive(context.Background())
	if err != nil || msg.Verb != protocol.VerbOk {
		t.Fatalf("expected OK, got %+v err=%v", msg, err)
	}
	if conn.State() != StateReady {
		t.Fatalf("unknown frames must not fail the connection, state=%s", conn.State())
	}
}

func TestReceiveHonorsContextDeadline(t *testing.T) {
	testlog.Start(t)
	conn, srv, _ := connectReady(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := conn.Receive(ctx)
	if !IsTransportError(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline transport error, got %v", err)
	}

	go func() { _ = srv.send(resp.Simple("OK")) }()
	msg, err := conn.Receive(context.Background())
	if err != nil || msg.Verb != protocol.VerbOk {
		t.Fatalf("connection should remain usable: %+v err=%v", msg, err)
	}
}

func TestSendRequestResponse(t *testing.T) {
	testlog.Start(t)
	conn, srv, _ := connectReady(t, nil)

	go func() {
		msg, err := srv.read()
		if err != nil || msg.Verb != protocol.VerbInfo {
			return
		}
		_ = srv.send(resp.Bulk(`{"server":{"faktory_version":"1.9.0"}}`))
	}()
	if err := conn.Send(context.Background(), protocol.Message{Verb: protocol.VerbInfo}); err != nil {
		t.Fatalf("send info: %v", err)
	}
	msg, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive info: %v", err)
	}
	var info struct {
		Server struct {
			Version string `json:"faktory_version"`
		} `json:"server"`
	}
	if err := msg.Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Server.Version != "1.9.0" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestSendRejectsLineBreakPayload(t *testing.T) {
	testlog.Start(t)
	conn, _, _ := connectReady(t, nil)
	err := conn.Send(context.Background(), protocol.Message{Verb: protocol.VerbInfo, Payload: "a\r\nb"})
	if !errors.Is(err, resp.ErrLineBreak) {
		t.Fatalf("expected ErrLineBreak, got %v", err)
	}
	if conn.State() != StateReady {
		t.Fatalf("encode errors must not fail the connection, state=%s", conn.State())
	}
}

func TestConcurrentSendsNeverInterleave(t *testing.T) {
	testlog.Start(t)
	conn, srv, _ := connectReady(t, func(cfg *Config) {
		cfg.Session.HeartbeatPeriod = time.Millisecond
	})

	const senders = 8
	const perSender = 40
	appFrame := regexp.MustCompile(`^INFO \{"seq":"(\d+)-(\d+)","pad":"(x*)"\}$`)
	beatFrame := `BEAT {"wid":"wid-test"}`

	var wg sync.WaitGroup
	errc := make(chan error, senders)
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				pad := strings.Repeat("x", (s*perSender+i)*13%3000)
				payload := fmt.Sprintf(`{"seq":"%d-%d","pad":"%s"}`, s, i, pad)
				if err := conn.Send(context.Background(), protocol.Message{Verb: protocol.VerbInfo, Payload: payload}); err != nil {
					errc <- err
					return
				}
			}
		}(s)
	}

	seen := 0
	beats := 0
	for seen < senders*perSender {
		_ = srv.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		f, err := srv.r.ReadFrame()
		if err != nil {
			t.Fatalf("read frame after %d app frames: %v", seen, err)
		}
		if f.Kind != resp.KindInline {
			t.Fatalf("unexpected frame kind: %+v", f)
		}
		if f.Text == beatFrame {
			beats++
			continue
		}
		m := appFrame.FindStringSubmatch(f.Text)
		if m == nil {
			t.Fatalf("torn or malformed frame: %.120q", f.Text)
		}
		s, _ := strconv.Atoi(m[1])
		i, _ := strconv.Atoi(m[2])
		if len(m[3]) != (s*perSender+i)*13%3000 {
			t.Fatalf("frame %s-%s has wrong pad length %d", m[1], m[2], len(m[3]))
		}
		seen++
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		t.Fatalf("send: %v", err)
	}
	if beats == 0 {
		t.Fatalf("expected heartbeats interleaved between application frames")
	}
}

func TestParseServerURL(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		in   string
		want ServerURL
	}{
		{"localhost", ServerURL{Address: "localhost:7419"}},
		{"10.0.0.1:9000", ServerURL{Address: "10.0.0.1:9000"}},
		{"tcp://:pw@faktory.internal", ServerURL{Address: "faktory.internal:7419", Password: "pw"}},
		{"tcp+tls://jobs:7520", ServerURL{Address: "jobs:7520", TLS: true}},
	}
	for _, tc := range cases {
		got, err := ParseServerURL(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got=%+v want=%+v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseServerURL("http://jobs"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := ParseServerURL("  "); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestNetDialerPlainTCP(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	done := make(chan error, 1)
	go func() { done <- serveHandshake(ln) }()

	conn, err := New(Config{
		Dialer:   NetDialer{Address: ln.Addr().String(), Session: session.DefaultConfig()},
		Identity: session.NewIdentity("tcp"),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestNetDialerRequiresAddress(t *testing.T) {
	testlog.Start(t)
	if _, err := (NetDialer{}).Dial(context.Background()); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
	cfg := session.DefaultConfig()
	cfg.SecurityMode = session.SecurityModeProduction
	if _, err := (NetDialer{Address: "127.0.0.1:1", Session: cfg}).Dial(context.Background()); !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
}

// serveHandshake accepts one connection, greets it, and drains frames until END or EOF.
func serveHandshake(ln net.Listener) error {
	raw, err := ln.Accept()
	if err != nil {
		return err
	}
	defer raw.Close()
	srv := &fakeServer{conn: raw, r: resp.NewReader(raw, resp.DefaultLimits()), w: resp.NewWriter(raw)}
	if _, err := srv.greet(`{"v":2}`); err != nil {
		return err
	}
	for {
		msg, err := srv.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Verb == protocol.VerbEnd {
			return nil
		}
	}
}
