// Package config loads the connection core's tunable knobs: timeouts,
// default ports, buffer sizes, and strategy priorities. Adapted from a
// LoadConfig pattern: read the whole file, unmarshal with yaml.v3, then
// fill in every zero-valued field with a default.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LAN       LANConfig       `yaml:"lan"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Manager   ManagerConfig   `yaml:"manager"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LANConfig struct {
	Priority          int           `yaml:"priority"`
	MDNSBrowseTimeout time.Duration `yaml:"mdns_browse_timeout"`
	AliveCheckTimeout time.Duration `yaml:"alive_check_timeout"`
	ScoreInterval     time.Duration `yaml:"score_interval"`
	DefaultPort       uint16        `yaml:"default_port"`
}

type TailscaleConfig struct {
	Priority              int           `yaml:"priority"`
	HandshakeRetries      int           `yaml:"handshake_retries"`
	HandshakeAttemptDelay time.Duration `yaml:"handshake_attempt_delay"`
	HandshakeTotalBudget  time.Duration `yaml:"handshake_total_budget"`
	AuthTimeout           time.Duration `yaml:"auth_timeout"`
	DefaultPort           uint16        `yaml:"default_port"`
}

type WebRTCConfig struct {
	Priority       int           `yaml:"priority"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
	RecvBufferSize int           `yaml:"recv_buffer_size"`
}

type ManagerConfig struct {
	SessionEventsBuffer    int           `yaml:"session_events_buffer"`
	TerminalEventsBuffer   int           `yaml:"terminal_events_buffer"`
	ConnectionReadyTimeout time.Duration `yaml:"connection_ready_timeout"`
	ListenerReceiveTimeout time.Duration `yaml:"listener_receive_timeout"`
	HealthIdleThreshold    time.Duration `yaml:"health_idle_threshold"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"`
}

type ReconnectConfig struct {
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	JitterFactor      float64       `yaml:"jitter_factor"`
}

type TelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.LAN.Priority == 0 {
		c.LAN.Priority = 0
	}
	if c.LAN.MDNSBrowseTimeout == 0 {
		c.LAN.MDNSBrowseTimeout = 1 * time.Second
	}
	if c.LAN.AliveCheckTimeout == 0 {
		c.LAN.AliveCheckTimeout = 1200 * time.Millisecond
	}
	if c.LAN.ScoreInterval == 0 {
		c.LAN.ScoreInterval = 5 * time.Second
	}
	if c.LAN.DefaultPort == 0 {
		c.LAN.DefaultPort = 8765
	}

	if c.Tailscale.Priority == 0 {
		c.Tailscale.Priority = 1
	}
	if c.Tailscale.HandshakeRetries == 0 {
		c.Tailscale.HandshakeRetries = 3
	}
	if c.Tailscale.HandshakeAttemptDelay == 0 {
		c.Tailscale.HandshakeAttemptDelay = 500 * time.Millisecond
	}
	if c.Tailscale.HandshakeTotalBudget == 0 {
		c.Tailscale.HandshakeTotalBudget = 2 * time.Second
	}
	if c.Tailscale.AuthTimeout == 0 {
		c.Tailscale.AuthTimeout = 5 * time.Second
	}
	if c.Tailscale.DefaultPort == 0 {
		c.Tailscale.DefaultPort = 9876
	}

	if c.WebRTC.Priority == 0 {
		c.WebRTC.Priority = 2
	}
	if c.WebRTC.OpenTimeout == 0 {
		c.WebRTC.OpenTimeout = 30 * time.Second
	}
	if c.WebRTC.RecvBufferSize == 0 {
		c.WebRTC.RecvBufferSize = 256
	}

	if c.Manager.SessionEventsBuffer == 0 {
		c.Manager.SessionEventsBuffer = 64
	}
	if c.Manager.TerminalEventsBuffer == 0 {
		c.Manager.TerminalEventsBuffer = 128
	}
	if c.Manager.ConnectionReadyTimeout == 0 {
		c.Manager.ConnectionReadyTimeout = 10 * time.Second
	}
	if c.Manager.ListenerReceiveTimeout == 0 {
		c.Manager.ListenerReceiveTimeout = 60 * time.Second
	}
	if c.Manager.HealthIdleThreshold == 0 {
		c.Manager.HealthIdleThreshold = 90 * time.Second
	}
	if c.Manager.HeartbeatInterval == 0 {
		c.Manager.HeartbeatInterval = 30 * time.Second
	}

	if c.Reconnect.InitialBackoff == 0 {
		c.Reconnect.InitialBackoff = 1 * time.Second
	}
	if c.Reconnect.MaxBackoff == 0 {
		c.Reconnect.MaxBackoff = 60 * time.Second
	}
	if c.Reconnect.BackoffMultiplier == 0 {
		c.Reconnect.BackoffMultiplier = 2.0
	}
	if c.Reconnect.JitterFactor == 0 {
		c.Reconnect.JitterFactor = 0.25
	}

	if c.Telemetry.Listen == "" {
		c.Telemetry.Listen = "127.0.0.1:9090"
	}
}
