// Package signalling declares the out-of-band capability-exchange and SDP
// relay contract. Wire format and
// transport (ntfy/HTTP) are explicitly out of scope for this module; only
// the interface is specified.
package signalling

import "context"

// Capabilities is the exchanged record advertised during signalling
// as "ConnectionCapabilities".
type Capabilities struct {
	HasTailscale     bool
	TailscaleAddress string
	HasWebRTC        bool
	HasRelay         bool
	ProtocolVersion  int
}

// ProgressFunc lets a Channel implementation emit signalling-phase progress
// events without importing the progress package's Event types directly
// into every implementation (kept as a narrow func type here to avoid an
// import cycle between signalling and progress: both are leaf packages
// consumed by orchestrator).
type ProgressFunc func(name string, detail string)

// Channel is the external collaborator the core consumes. Both round-trips
// fail to nil on network/auth/timeout errors (never a typed error); the
// core treats nil as "proceed without this information".
type Channel interface {
	ExchangeCapabilities(ctx context.Context, ours Capabilities, onProgress ProgressFunc) (*Capabilities, error)
	SendOffer(ctx context.Context, sdp string, onProgress ProgressFunc) (answerSDP *string, err error)
	Close() error
}
