// Package strategy defines the common Strategy contract: each
// transport variant is wrapped in a Strategy that can cheaply report
// availability before committing to a full handshake.
package strategy

import (
	"context"

	"github.com/relayshell/connectcore/internal/creds"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/signalling"
	"github.com/relayshell/connectcore/internal/transport"
)

// DetectResult is the outcome of a cheap, local-only availability probe.
type DetectResult struct {
	Available bool
	Info      string // present only when Available
	Reason    string // present only when !Available
}

// ConnectionContext carries what Phase 0 discovery learned, plus the
// collaborators a strategy needs to complete its handshake.
type ConnectionContext struct {
	Credentials        *creds.Credentials
	LocalTailscaleIP    string
	HasLocalTailscale   bool
	DaemonCapabilities  *signalling.Capabilities
	SignallingChannel   signalling.Channel
}

// ConnectResult carries a successful Transport or a failure classification.
type ConnectResult struct {
	Transport Transport
	CanRetry  bool // false: don't retry this strategy again this cycle
}

// Transport is re-exported so strategy implementations and their callers
// share one interface without importing the transport package twice.
type Transport = transport.Transport

// Strategy is implemented once per transport variant (lan, tailscale,
// webrtc). detect() must never perform the connection and must be cheap;
// connect() performs the full handshake.
type Strategy interface {
	Name() string
	Priority() int
	Detect(ctx context.Context) (DetectResult, error)
	Connect(ctx context.Context, cc ConnectionContext, onProgress progress.Func) (ConnectResult, error)
}
