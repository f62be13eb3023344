package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/danmuck/faktorykit/internal/protocol/session"
)

// DefaultPort is the job-server's standard client port.
const DefaultPort = "7419"

// Dialer opens the duplex byte stream a connection runs over.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (f DialerFunc) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	return f(ctx)
}

// NetDialer dials TCP, upgrading to TLS when the session config enables it.
type NetDialer struct {
	Address string
	Session session.Config
}

func (d NetDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if strings.TrimSpace(d.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg := d.Session.WithDefaults()
	if err := cfg.ValidateTransport(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := d.tlsConfig(cfg.TLS)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func (d NetDialer) tlsConfig(opts session.TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(opts.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(d.Address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(opts.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("client: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}

	if opts.Mutual {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// ServerURL is a parsed tcp://[:password@]host[:port] or tcp+tls:// location.
type ServerURL struct {
	Address  string
	Password string
	TLS      bool
}

// ParseServerURL accepts bare host[:port] as well as tcp and tcp+tls URLs.
func ParseServerURL(raw string) (ServerURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ServerURL{}, ErrAddressRequired
	}
	if !strings.Contains(raw, "://") {
		return ServerURL{Address: withDefaultPort(raw)}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ServerURL{}, fmt.Errorf("client: parse server url: %w", err)
	}
	out := ServerURL{}
	switch u.Scheme {
	case "tcp":
	case "tcp+tls":
		out.TLS = true
	default:
		return ServerURL{}, fmt.Errorf("client: unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return ServerURL{}, ErrAddressRequired
	}
	out.Address = withDefaultPort(u.Host)
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			out.Password = pw
		}
	}
	return out, nil
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, DefaultPort)
}
