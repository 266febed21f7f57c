// Package orchestrator runs the four-phase connection attempt: discovery,
// strategy detection, connect, and enrichment. The driver is modeled on a
// health-check scheduler (a fan-out across per-upstream goroutines joined
// at the end), adapted from periodic health checks to a one-shot
// per-attempt discovery-then-connect sequence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relayshell/connectcore/internal/creds"
	"github.com/relayshell/connectcore/internal/netiface"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/signalling"
	"github.com/relayshell/connectcore/internal/strategy"
	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/xerrors"
)

// ErrAllFailed is returned when every available strategy's connect failed
// or none reported Available during detection.
type ErrAllFailed struct {
	Attempts []progress.FailedAttempt
}

func (e ErrAllFailed) Error() string {
	return fmt.Sprintf("orchestrator: all %d strategy attempt(s) failed", len(e.Attempts))
}

// ErrAlreadyActive is returned when Connect is called while an attempt is
// already in flight or a live Transport already exists.
var ErrAlreadyActive = errors.New("orchestrator: already connecting or connected")

// capabilityExchangeTimeout bounds Phase 0's optional signalling round
// trip.
const capabilityExchangeTimeout = 4 * time.Second

// Orchestrator drives one connection attempt at a time across the LAN,
// Tailscale, and WebRTC strategies.
type Orchestrator struct {
	repo    creds.Repository
	sig     signalling.Channel
	sigLock sync.Mutex // serializes use of the single signalling.Channel across phases

	mu        sync.Mutex
	state     State
	current   transport.Transport
	cancelCur context.CancelFunc
}

func New(repo creds.Repository, sig signalling.Channel) *Orchestrator {
	return &Orchestrator{repo: repo, sig: sig, state: StateIdle}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Connect runs a single attempt. buildStrategies constructs the per-attempt
// Strategy set (lan/tailscale/webrtc) once credentials and Phase 0 results
// are known; it is supplied by the caller so this package stays free of an
// import cycle with internal/strategy/{lan,tailscale,webrtc}.
func (o *Orchestrator) Connect(ctx context.Context, buildStrategies func(cc strategy.ConnectionContext) []strategy.Strategy, onProgress progress.Func) (transport.Transport, error) {
	if onProgress == nil {
		onProgress = progress.Noop
	}

	o.mu.Lock()
	if o.state == StateConnecting {
		o.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	if o.state == StateConnected && o.current != nil {
		existing := o.current
		o.mu.Unlock()
		return existing, nil
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	o.state = StateDetecting
	o.cancelCur = cancel
	o.mu.Unlock()

	onProgress(progress.DiscoveryStarted{})

	cred, err := o.repo.GetSelectedDevice(attemptCtx)
	if err != nil || cred == nil {
		o.setState(StateFailed)
		return nil, xerrors.ErrNoCredentials
	}

	cc := o.phase0Discovery(attemptCtx, cred, onProgress)

	strategies := buildStrategies(cc)
	sort.Slice(strategies, func(i, j int) bool { return strategies[i].Priority() < strategies[j].Priority() })

	available, err := o.phase1Detect(attemptCtx, strategies, onProgress)
	if err != nil {
		o.setState(StateCancelled)
		return nil, err
	}
	if len(available) == 0 {
		o.setState(StateFailed)
		onProgress(progress.AllFailed{})
		return nil, ErrAllFailed{}
	}

	o.mu.Lock()
	o.state = StateConnecting
	o.mu.Unlock()

	tr, attempts, cancelled, err := o.phase2Connect(attemptCtx, available, cc, onProgress)
	if cancelled {
		o.setState(StateCancelled)
		onProgress(progress.Cancelled{})
		return nil, xerrors.ErrCancelled
	}
	if err != nil {
		o.setState(StateFailed)
		onProgress(progress.AllFailed{Attempts: attempts})
		return nil, ErrAllFailed{Attempts: attempts}
	}

	o.phase3Enrich(attemptCtx, cred, tr)

	o.mu.Lock()
	o.state = StateConnected
	o.current = tr
	o.mu.Unlock()

	return tr, nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Disconnect cancels any in-flight attempt and closes the current transport
//
func (o *Orchestrator) Disconnect() error {
	o.mu.Lock()
	cancel := o.cancelCur
	tr := o.current
	o.current = nil
	o.state = StateIdle
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// phase0Discovery runs Tailscale interface detection concurrently with
// capability exchange. Failures are non-fatal.
func (o *Orchestrator) phase0Discovery(ctx context.Context, cred *creds.Credentials, onProgress progress.Func) strategy.ConnectionContext {
	cc := strategy.ConnectionContext{Credentials: cred, SignallingChannel: o.sig}

	// tsDone is closed once the Tailscale-detection goroutine has finished
	// writing cc.HasLocalTailscale/cc.LocalTailscaleIP, publishing those
	// fields to the capability-exchange goroutine through a proper
	// happens-before edge instead of a fixed sleep.
	tsDone := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(tsDone)
		onProgress(progress.TailscaleDetecting{})
		if ip, _, ok := netiface.DetectTailscale(); ok {
			cc.HasLocalTailscale = true
			cc.LocalTailscaleIP = ip.String()
		}
		onProgress(progress.LocalCapabilities{TailscaleAvailable: cc.HasLocalTailscale, TailscaleIP: cc.LocalTailscaleIP})
	}()

	if o.sig != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Wait for the Tailscale probe to publish cc.HasLocalTailscale
			// before reading it, rather than racing on the raw field.
			<-tsDone
			hasTailscale, tailscaleIP := cc.HasLocalTailscale, cc.LocalTailscaleIP
			if !hasTailscale {
				onProgress(progress.CapabilityExchangeSkipped{Reason: "no local tailscale interface"})
				return
			}
			onProgress(progress.ExchangingCapabilities{})
			xctx, cancel := context.WithTimeout(ctx, capabilityExchangeTimeout)
			defer cancel()
			o.sigLock.Lock()
			caps, err := o.sig.ExchangeCapabilities(xctx, signalling.Capabilities{
				HasTailscale:     hasTailscale,
				TailscaleAddress: tailscaleIP,
			}, func(name, detail string) {})
			o.sigLock.Unlock()
			if err != nil || caps == nil {
				onProgress(progress.CapabilityExchangeFailed{Reason: "signalling round trip failed or timed out"})
				return
			}
			cc.DaemonCapabilities = caps
			onProgress(progress.DaemonCapabilities{
				HasTailscale: caps.HasTailscale,
				HasWebRTC:    caps.HasWebRTC,
				HasRelay:     caps.HasRelay,
				ProtoVersion: caps.ProtocolVersion,
			})
		}()
	}

	wg.Wait()
	return cc
}

// phase1Detect invokes Detect on each strategy in ascending priority order
//
func (o *Orchestrator) phase1Detect(ctx context.Context, strategies []strategy.Strategy, onProgress progress.Func) ([]strategy.Strategy, error) {
	var available []strategy.Strategy
	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil, xerrors.ErrCancelled
		}
		onProgress(progress.Detecting{Name: s.Name()})
		res, err := s.Detect(ctx)
		if err != nil || !res.Available {
			reason := res.Reason
			if err != nil {
				reason = err.Error()
			}
			onProgress(progress.StrategyUnavailable{Name: s.Name(), Reason: reason})
			continue
		}
		onProgress(progress.StrategyAvailable{Name: s.Name(), Info: res.Info})
		available = append(available, s)
	}
	return available, nil
}

// phase2Connect invokes Connect on each available strategy in priority
// order, stopping at the first Success.
func (o *Orchestrator) phase2Connect(ctx context.Context, available []strategy.Strategy, cc strategy.ConnectionContext, onProgress progress.Func) (transport.Transport, []progress.FailedAttempt, bool, error) {
	var attempts []progress.FailedAttempt

	for i, s := range available {
		if ctx.Err() != nil {
			return nil, attempts, true, nil
		}

		start := time.Now()
		res, err := s.Connect(ctx, cc, onProgress)
		dur := progress.Since(start)

		if errors.Is(err, xerrors.ErrCancelled) {
			return nil, attempts, true, nil
		}
		if err == nil && res.Transport != nil {
			onProgress(progress.Connected{Name: s.Name(), Kind: res.Transport.Kind().String(), DurationMs: dur})
			return res.Transport, attempts, false, nil
		}

		willTryNext := i < len(available)-1
		onProgress(progress.StrategyFailed{Name: s.Name(), Err: err, DurationMs: dur, WillTryNext: willTryNext})
		attempts = append(attempts, progress.FailedAttempt{Name: s.Name(), Err: err, DurationMs: dur})
	}

	return nil, attempts, false, fmt.Errorf("no strategy succeeded")
}

// tailscaleObserver is implemented by transports that can report a
// Tailscale endpoint learned from their handshake (currently only
// webrtcdc.Transport, via its active ICE candidate pair).
type tailscaleObserver interface {
	ObservedTailscaleEndpoint() (host string, port uint16, ok bool)
}

// phase3Enrich caches a WebRTC-discovered Tailscale endpoint, best effort
// Failure is logged by the caller, not surfaced.
func (o *Orchestrator) phase3Enrich(ctx context.Context, cred *creds.Credentials, tr transport.Transport) {
	if tr == nil || tr.Kind() != transport.KindWebRTC {
		return
	}
	observer, ok := tr.(tailscaleObserver)
	if !ok {
		return
	}
	host, port, found := observer.ObservedTailscaleEndpoint()
	if !found {
		return
	}
	o.repo.UpdateTailscaleInfo(ctx, cred.DeviceID, host, port)
}
