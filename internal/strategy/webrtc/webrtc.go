// Package webrtc implements the WebRTC data-channel Strategy. Detect
// always reports Available: no cheap local probe exists for reachability
// over a signalling-brokered peer connection.
package webrtc

import (
	"context"

	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/strategy"
	"github.com/relayshell/connectcore/internal/transport/webrtcdc"
)

const Priority = 2 // tried last

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

func (s *Strategy) Name() string  { return "webrtc" }
func (s *Strategy) Priority() int { return Priority }

func (s *Strategy) Detect(ctx context.Context) (strategy.DetectResult, error) {
	return strategy.DetectResult{Available: true, Info: "signalling-brokered"}, nil
}

func (s *Strategy) Connect(ctx context.Context, cc strategy.ConnectionContext, onProgress progress.Func) (strategy.ConnectResult, error) {
	if cc.SignallingChannel == nil {
		return strategy.ConnectResult{CanRetry: false}, strategyErrNoSignalling
	}

	sigProgress := func(name, detail string) {
		onProgress(progress.Connecting{Name: s.Name(), Step: name, Detail: detail, Progress: -1})
	}

	tr, err := webrtcdc.Dial(ctx, cc.SignallingChannel, cc.HasLocalTailscale, sigProgress)
	if err != nil {
		return strategy.ConnectResult{CanRetry: true}, err
	}
	return strategy.ConnectResult{Transport: tr, CanRetry: false}, nil
}
