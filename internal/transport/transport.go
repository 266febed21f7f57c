// Package transport defines the variant-agnostic connection interface that
// the LAN, Tailscale, and WebRTC transports implement.
package transport

import (
	"context"
	"time"
)

// Kind identifies which transport variant is in use.
type Kind uint8

const (
	KindLAN Kind = iota
	KindTailscale
	KindWebRTC
)

func (k Kind) String() string {
	switch k {
	case KindLAN:
		return "lan"
	case KindTailscale:
		return "tailscale"
	case KindWebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of per-transport traffic counters, consumed by
// telemetry and by ReconnectionController's health signal.
type Stats struct {
	BytesIn, BytesOut         uint64
	MessagesIn, MessagesOut   uint64
	ConnectedAt, LastActivity time.Time
}

// Transport moves opaque application frames (already Codec-encoded) between
// phone and daemon. Implementations own exactly one underlying connection;
// Close is idempotent.
type Transport interface {
	Kind() Kind
	Send(ctx context.Context, b []byte) error
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
	IsConnected() bool
	Stats() Stats
}
