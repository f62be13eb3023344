package session

import (
	"time"

	"github.com/danmuck/faktorykit/internal/protocol/resp"
)

// SecurityMode selects how strictly transport security is enforced.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig holds client-side TLS material locations.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection timeouts, heartbeat cadence and transport policy.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	HeartbeatPeriod  time.Duration
	Limits           resp.Limits
	Backoff          BackoffConfig
	SecurityMode     SecurityMode
	TLS              TLSConfig
}

// DefaultConfig returns defaults aligned with the job-server's 15s beat expectation.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		HeartbeatPeriod:  15 * time.Second,
		Limits:           resp.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = def.HeartbeatPeriod
	}
	if c.Limits.MaxLineBytes <= 0 {
		c.Limits.MaxLineBytes = def.Limits.MaxLineBytes
	}
	if c.Limits.MaxBulkBytes <= 0 {
		c.Limits.MaxBulkBytes = def.Limits.MaxBulkBytes
	}
	if c.Limits.MaxArrayItems <= 0 {
		c.Limits.MaxArrayItems = def.Limits.MaxArrayItems
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}
