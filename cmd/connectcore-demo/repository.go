package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/relayshell/connectcore/internal/creds"
)

// fileRecord is credentials.Credentials rendered for YAML storage: a
// [32]byte array doesn't round-trip through yaml.v3 cleanly, so the master
// secret is hex-encoded on disk.
type fileRecord struct {
	DeviceID          string  `yaml:"device_id"`
	MasterSecretHex   string  `yaml:"master_secret_hex"`
	LANHost           string  `yaml:"lan_host"`
	LANPort           uint16  `yaml:"lan_port"`
	TailscaleHost     string  `yaml:"tailscale_host"`
	TailscalePort     uint16  `yaml:"tailscale_port"`
	SignallingTopic   string  `yaml:"signalling_topic"`
}

// fileRepository is a demo-only creds.Repository backed by a single YAML
// file. Real pairing/persistence is explicitly out of this module's scope;
// this exists so the CLI demo is runnable end-to-end.
type fileRepository struct {
	mu   sync.Mutex
	path string
}

func newFileRepository(path string) *fileRepository {
	return &fileRepository{path: path}
}

func (r *fileRepository) GetSelectedDevice(_ context.Context) (*creds.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var rec fileRecord
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	secret, err := hex.DecodeString(rec.MasterSecretHex)
	if err != nil || len(secret) != 32 {
		return nil, fmt.Errorf("credentials: master_secret_hex must be 64 hex chars")
	}

	cred := &creds.Credentials{
		DeviceID:        rec.DeviceID,
		SignallingTopic: rec.SignallingTopic,
	}
	copy(cred.MasterSecret[:], secret)
	if rec.LANHost != "" {
		cred.LANEndpoint = &creds.Endpoint{Host: rec.LANHost, Port: rec.LANPort}
	}
	if rec.TailscaleHost != "" {
		cred.TailscaleEndpoint = &creds.Endpoint{Host: rec.TailscaleHost, Port: rec.TailscalePort}
	}
	return cred, nil
}

func (r *fileRepository) UpdateTailscaleInfo(_ context.Context, deviceID string, ip string, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var rec fileRecord
	if err := yaml.Unmarshal(b, &rec); err != nil || rec.DeviceID != deviceID {
		return
	}
	rec.TailscaleHost = ip
	rec.TailscalePort = port
	out, err := yaml.Marshal(&rec)
	if err != nil {
		return
	}
	_ = os.WriteFile(r.path, out, 0o600)
}
