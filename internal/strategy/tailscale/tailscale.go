// Package tailscale implements the Tailscale-routed Strategy. Detect is a
// pure local check: no network I/O, just whether the caller's
// Phase 0 discovery found a local Tailscale interface and the credential
// repository has a cached daemon endpoint.
package tailscale

import (
	"context"
	"fmt"

	"github.com/relayshell/connectcore/internal/codec"
	"github.com/relayshell/connectcore/internal/creds"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/strategy"
	"github.com/relayshell/connectcore/internal/transport/tailscaleudp"
)

const Priority = 1 // tried after LAN

type Strategy struct {
	hasLocalTailscale bool
	endpoint          *creds.Endpoint
}

func New(hasLocalTailscale bool, endpoint *creds.Endpoint) *Strategy {
	return &Strategy{hasLocalTailscale: hasLocalTailscale, endpoint: endpoint}
}

func (s *Strategy) Name() string  { return "tailscale" }
func (s *Strategy) Priority() int { return Priority }

func (s *Strategy) Detect(ctx context.Context) (strategy.DetectResult, error) {
	if !s.hasLocalTailscale {
		return strategy.DetectResult{Available: false, Reason: "no local tailscale interface"}, nil
	}
	if s.endpoint == nil {
		return strategy.DetectResult{Available: false, Reason: "no cached daemon tailscale endpoint"}, nil
	}
	return strategy.DetectResult{Available: true, Info: fmt.Sprintf("%s:%d", s.endpoint.Host, s.endpoint.Port)}, nil
}

func (s *Strategy) Connect(ctx context.Context, cc strategy.ConnectionContext, onProgress progress.Func) (strategy.ConnectResult, error) {
	if s.endpoint == nil {
		return strategy.ConnectResult{CanRetry: false}, fmt.Errorf("tailscale connect: no endpoint")
	}

	onProgress(progress.Connecting{Name: s.Name(), Step: "handshake", Detail: s.endpoint.Host, Progress: -1})

	authKey, err := codec.DeriveAuthKey(cc.Credentials.MasterSecret, cc.Credentials.DeviceID)
	if err != nil {
		return strategy.ConnectResult{CanRetry: false}, err
	}

	tr, err := tailscaleudp.Dial(ctx, s.endpoint.Host, s.endpoint.Port, cc.Credentials.DeviceID, authKey)
	if err != nil {
		return strategy.ConnectResult{CanRetry: true}, err
	}
	return strategy.ConnectResult{Transport: tr, CanRetry: false}, nil
}
