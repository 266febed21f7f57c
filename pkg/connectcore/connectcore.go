// Package connectcore is the public facade: it wires the orchestrator,
// connection manager, reconnection controller, and telemetry together into
// the single object an application embeds, the way a CLI wires its load
// balancer and health checker together at startup.
package connectcore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/relayshell/connectcore/internal/codec"
	"github.com/relayshell/connectcore/internal/config"
	"github.com/relayshell/connectcore/internal/connmanager"
	"github.com/relayshell/connectcore/internal/creds"
	"github.com/relayshell/connectcore/internal/netiface"
	"github.com/relayshell/connectcore/internal/orchestrator"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/reconnect"
	"github.com/relayshell/connectcore/internal/signalling"
	"github.com/relayshell/connectcore/internal/strategy"
	"github.com/relayshell/connectcore/internal/strategy/lan"
	"github.com/relayshell/connectcore/internal/strategy/tailscale"
	"github.com/relayshell/connectcore/internal/strategy/webrtc"
	"github.com/relayshell/connectcore/internal/telemetry"
	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/wire"
	"github.com/relayshell/connectcore/internal/xerrors"
)

// Core is the application-facing entry point. Construct one per paired
// daemon session.
type Core struct {
	cfg *config.Config
	log zerolog.Logger

	repo creds.Repository
	sig  signalling.Channel
	wifi netiface.WiFiProvider

	orch        *orchestrator.Orchestrator
	mgr         *connmanager.Manager
	reconn      *reconnect.Controller
	metrics     *telemetry.Telemetry
	lanStrategy *lan.Strategy
}

// New constructs a Core. wifi may be nil, meaning the LAN strategy never
// binds its socket off a VPN interface; applications on platforms with a
// VPN-bypass API (e.g. Android's ConnectivityManager) supply a WiFiProvider
// here.
func New(cfg *config.Config, repo creds.Repository, sig signalling.Channel, wifi netiface.WiFiProvider, log zerolog.Logger) *Core {
	mgr := connmanager.New(log)
	orch := orchestrator.New(repo, sig)
	c := &Core{
		cfg:     cfg,
		log:     log.With().Str("component", "connectcore").Logger(),
		repo:    repo,
		sig:     sig,
		wifi:    wifi,
		orch:    orch,
		mgr:     mgr,
		metrics: telemetry.New(),
	}
	c.reconn = reconnect.New(repo, mgr, coreConnector{c}, c.log)
	return c
}

// coreConnector adapts Core.Connect to the narrow Connector interface
// reconnect.Controller expects, so Core itself doesn't implement a method
// named exactly Connect(ctx, cred) alongside the richer public Connect.
type coreConnector struct{ c *Core }

func (cc coreConnector) Connect(ctx context.Context, _ *creds.Credentials) error {
	return cc.c.connect(ctx, progress.Noop)
}

// Connect runs a full discovery-through-handshake attempt and installs the
// result into the connection manager.
func (c *Core) Connect(ctx context.Context, onProgress progress.Func) error {
	return c.connect(ctx, onProgress)
}

func (c *Core) connect(ctx context.Context, onProgress progress.Func) error {
	if onProgress == nil {
		onProgress = progress.Noop
	}
	start := time.Now()

	tr, err := c.orch.Connect(ctx, c.buildStrategies, onProgress)
	if err != nil {
		c.metrics.ObserveStrategyFailure("orchestrator", err)
		return err
	}

	cred, err := c.repo.GetSelectedDevice(ctx)
	if err != nil || cred == nil {
		tr.Close()
		return xerrors.ErrNoCredentials
	}

	key, err := codec.DeriveAuthKey(cred.MasterSecret, cred.DeviceID)
	if err != nil {
		tr.Close()
		return fmt.Errorf("connectcore: derive auth key: %w", err)
	}

	if err := c.mgr.Connect(ctx, tr, key); err != nil {
		tr.Close()
		return fmt.Errorf("connectcore: install transport: %w", err)
	}

	c.metrics.ObserveStrategySelected(tr.Kind().String())
	c.metrics.ObserveConnectDuration(tr.Kind().String(), time.Since(start))
	c.metrics.SetHealthy(tr.Kind().String(), true)
	c.reconn.ClearManualDisconnect()

	if tr.Kind() == transport.KindLAN && c.lanStrategy != nil {
		if host, port, ok := c.lanStrategy.LastConnected(); ok {
			go c.lanStrategy.EnsureStandby(context.Background(), host, port)
		}
	}

	return nil
}

// buildStrategies constructs the per-attempt Strategy set in priority
// order. lan.Strategy is long-lived (constructed once and reused across
// attempts) so a warm standby connection and WiFi lease survive between
// reconnects; tailscale and webrtc carry no state worth keeping so they're
// rebuilt fresh from the latest ConnectionContext each time.
func (c *Core) buildStrategies(cc strategy.ConnectionContext) []strategy.Strategy {
	var deviceID string
	var lanEndpoint, tsEndpoint *creds.Endpoint
	if cc.Credentials != nil {
		deviceID = cc.Credentials.DeviceID
		lanEndpoint = cc.Credentials.LANEndpoint
		tsEndpoint = cc.Credentials.TailscaleEndpoint
	}

	if c.lanStrategy == nil {
		c.lanStrategy = lan.New(deviceID, lanEndpoint, c.wifi)
	} else {
		c.lanStrategy.SetLastEndpoint(lanEndpoint)
	}

	return []strategy.Strategy{
		c.lanStrategy,
		tailscale.New(cc.HasLocalTailscale, tsEndpoint),
		webrtc.New(),
	}
}

// Disconnect sets the manual-disconnect latch (so ReconnectionController
// stays quiet) and tears down both the active transport and any in-flight
// orchestrator attempt.
func (c *Core) Disconnect() error {
	c.reconn.MarkManualDisconnect()
	mgrErr := c.mgr.Disconnect()
	orchErr := c.orch.Disconnect()
	if mgrErr != nil {
		return mgrErr
	}
	return orchErr
}

// Run starts the background bridge from the connection manager's error
// stream to the reconnection controller; it blocks until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	errs := c.mgr.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-errs:
			if !ok {
				return
			}
			c.metrics.SetHealthy("active", false)
			c.log.Info().Err(ev.Reason).Msg("connection dropped, attempting reconnect")
			c.reconn.OnDisconnected(ctx)
		}
	}
}

// NotifyForeground should be called whenever the app-foreground signal
// changes; a false-to-true transition triggers a reconnection attempt.
func (c *Core) NotifyForeground(ctx context.Context, foreground bool) {
	c.reconn.OnForegroundTransition(ctx, foreground)
}

// ServeMetrics blocks serving the Prometheus-text /metrics endpoint until
// ctx is cancelled, if telemetry is enabled in config.
func (c *Core) ServeMetrics(ctx context.Context) error {
	if !c.cfg.Telemetry.Enable {
		return nil
	}
	return c.metrics.ServeHTTP(ctx, c.cfg.Telemetry.Listen)
}

func (c *Core) IsConnected() bool { return c.mgr.IsConnected() }
func (c *Core) IsHealthy() bool   { return c.mgr.IsHealthy() }

func (c *Core) SessionEvents() <-chan *wire.SessionEventPayload   { return c.mgr.SessionEvents() }
func (c *Core) TerminalEvents() <-chan *wire.TerminalEventPayload { return c.mgr.TerminalEvents() }
func (c *Core) InitialState() <-chan *wire.InitialStatePayload    { return c.mgr.InitialState() }

func (c *Core) SendSessionCommand(ctx context.Context, cmd *wire.SessionCommandPayload) error {
	return c.mgr.SendSessionCommand(ctx, cmd)
}

func (c *Core) SendTerminalCommand(ctx context.Context, cmd *wire.TerminalCommandPayload) error {
	return c.mgr.SendTerminalCommand(ctx, cmd)
}

func (c *Core) SendPing(ctx context.Context) error { return c.mgr.SendPing(ctx) }
