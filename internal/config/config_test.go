package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("lan:\n  priority: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.LAN.MDNSBrowseTimeout != 1*time.Second {
		t.Fatalf("expected default mdns browse timeout, got %v", c.LAN.MDNSBrowseTimeout)
	}
	if c.Tailscale.Priority != 1 {
		t.Fatalf("expected default tailscale priority 1, got %d", c.Tailscale.Priority)
	}
	if c.WebRTC.Priority != 2 {
		t.Fatalf("expected default webrtc priority 2, got %d", c.WebRTC.Priority)
	}
	if c.Manager.HeartbeatInterval != 30*time.Second {
		t.Fatalf("expected default heartbeat interval, got %v", c.Manager.HeartbeatInterval)
	}
	if c.Reconnect.MaxBackoff != 60*time.Second {
		t.Fatalf("expected default max backoff, got %v", c.Reconnect.MaxBackoff)
	}
	if c.Telemetry.Listen != "127.0.0.1:9090" {
		t.Fatalf("expected default telemetry listen address, got %q", c.Telemetry.Listen)
	}
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "manager:\n  heartbeat_interval: 15s\ntelemetry:\n  enable: true\n  listen: \"0.0.0.0:9999\"\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Manager.HeartbeatInterval != 15*time.Second {
		t.Fatalf("expected explicit heartbeat interval 15s, got %v", c.Manager.HeartbeatInterval)
	}
	if !c.Telemetry.Enable {
		t.Fatal("expected telemetry.enable to stay true")
	}
	if c.Telemetry.Listen != "0.0.0.0:9999" {
		t.Fatalf("expected explicit telemetry listen address, got %q", c.Telemetry.Listen)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
