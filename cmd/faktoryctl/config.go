package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/faktorykit/internal/agent"
	"github.com/danmuck/faktorykit/internal/client"
	"github.com/danmuck/faktorykit/internal/protocol/session"
)

const (
	envServerURL = "FAKTORY_URL"
	envPassword  = "FAKTORY_PASSWORD"
)

// faktoryctl config.toml key mapping to agent runtime settings.
type fileConfig struct {
	Address               string   `toml:"address"`
	Password              string   `toml:"password"`
	WID                   string   `toml:"wid"`
	Labels                []string `toml:"labels"`
	Heartbeat             string   `toml:"heartbeat"`
	HeartbeatMS           int      `toml:"heartbeat_ms"`
	SecurityMode          string   `toml:"security_mode"`
	TLSEnabled            bool     `toml:"tls_enabled"`
	TLSMutual             bool     `toml:"tls_mutual"`
	TLSCertFile           string   `toml:"tls_cert_file"`
	TLSKeyFile            string   `toml:"tls_key_file"`
	TLSCAFile             string   `toml:"tls_ca_file"`
	TLSServerName         string   `toml:"tls_server_name"`
	TLSInsecureSkipVerify bool     `toml:"tls_insecure_skip_verify"`
	MetricsListen         string   `toml:"metrics_listen"`
	MaxConnectAttempts    int      `toml:"max_connect_attempts"`
}

// loadServiceConfig overlays an optional TOML file and the environment onto defaults.
// An empty path loads defaults and environment only.
func loadServiceConfig(path string) (agent.ServiceConfig, error) {
	cfg := agent.DefaultServiceConfig()

	var raw fileConfig
	var meta toml.MetaData
	if strings.TrimSpace(path) != "" {
		var err error
		meta, err = toml.DecodeFile(path, &raw)
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: %w", err)
		}
	}

	address := os.Getenv(envServerURL)
	if meta.IsDefined("address") {
		address = raw.Address
	}
	if strings.TrimSpace(address) != "" {
		u, err := client.ParseServerURL(address)
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: %w", err)
		}
		cfg.Address = u.Address
		cfg.Password = u.Password
		cfg.Session.TLS.Enabled = u.TLS
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if pw := os.Getenv(envPassword); pw != "" {
		cfg.Password = pw
	}
	if meta.IsDefined("wid") {
		cfg.Identity.WID = strings.TrimSpace(raw.WID)
	}
	if meta.IsDefined("labels") {
		cfg.Identity.Labels = session.NormalizeLabels(raw.Labels)
	}

	if meta.IsDefined("heartbeat") && meta.IsDefined("heartbeat_ms") {
		return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: set only one of heartbeat or heartbeat_ms")
	}
	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: heartbeat: %w", err)
		}
		cfg.Session.HeartbeatPeriod = d
	}
	if meta.IsDefined("heartbeat_ms") {
		cfg.Session.HeartbeatPeriod = time.Duration(raw.HeartbeatMS) * time.Millisecond
	}
	if cfg.Session.HeartbeatPeriod <= 0 {
		return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: heartbeat must be positive")
	}

	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Session.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Session.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Session.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Session.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}
	if meta.IsDefined("metrics_listen") {
		cfg.MetricsListen = strings.TrimSpace(raw.MetricsListen)
	}
	if meta.IsDefined("max_connect_attempts") {
		if raw.MaxConnectAttempts < 0 {
			return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: max_connect_attempts must be >= 0")
		}
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateTransport(); err != nil {
		return agent.ServiceConfig{}, fmt.Errorf("load faktoryctl config: %w", err)
	}
	return cfg, nil
}
