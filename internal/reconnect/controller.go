// Package reconnect is the glue layer that re-invokes the orchestrator
// when the connection drops or the app returns to the foreground. It is
// deliberately small: a single-flight guard plus four ordered checks, not
// a retry loop — the orchestrator's own strategy fallback already covers
// per-attempt retries.
package reconnect

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/relayshell/connectcore/internal/creds"
)

// Connector is the subset of the orchestrator this controller drives. It
// is satisfied by *orchestrator.Orchestrator; declared narrowly here so
// this package never imports the strategy/transport packages it has no
// business knowing about.
type Connector interface {
	Connect(ctx context.Context, cred *creds.Credentials) error
}

// ConnectionState reports whether a live connection already exists. It is
// satisfied by *connmanager.Manager.
type ConnectionState interface {
	IsConnected() bool
}

// Controller implements the single-flight reconnection guard. Guards are
// evaluated in a fixed order and the first failing guard short-circuits
// the attempt.
type Controller struct {
	repo  creds.Repository
	state ConnectionState
	conn  Connector
	log   zerolog.Logger

	reconnectLock sync.Mutex
	reconnecting  atomic.Bool

	mu                sync.Mutex
	manuallyDisconnected bool
}

func New(repo creds.Repository, state ConnectionState, conn Connector, log zerolog.Logger) *Controller {
	return &Controller{
		repo:  repo,
		state: state,
		conn:  conn,
		log:   log.With().Str("component", "reconnect").Logger(),
	}
}

// MarkManualDisconnect sets the "disconnected-once" latch. Once set, no
// further automatic reconnection happens until ClearManualDisconnect is
// called (typically when the user explicitly reconnects or pairs again).
func (c *Controller) MarkManualDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manuallyDisconnected = true
}

func (c *Controller) ClearManualDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manuallyDisconnected = false
}

func (c *Controller) IsReconnecting() bool { return c.reconnecting.Load() }

// AttemptReconnectIfNeeded runs the four ordered guards and, if all pass,
// invokes the underlying connector while holding the try-lock. Returns
// false immediately if any guard fails or another attempt is already in
// flight; never blocks waiting for the lock.
func (c *Controller) AttemptReconnectIfNeeded(ctx context.Context) bool {
	if c.state.IsConnected() {
		return false
	}

	cred, err := c.repo.GetSelectedDevice(ctx)
	if err != nil || cred == nil {
		c.log.Debug().Err(err).Msg("no selected credential, skipping reconnect")
		return false
	}

	c.mu.Lock()
	manual := c.manuallyDisconnected
	c.mu.Unlock()
	if manual {
		c.log.Debug().Msg("manual disconnect latch set, skipping reconnect")
		return false
	}

	if !c.reconnectLock.TryLock() {
		c.log.Debug().Msg("reconnect already in flight, declining")
		return false
	}
	defer c.reconnectLock.Unlock()

	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	if err := c.conn.Connect(ctx, cred); err != nil {
		c.log.Warn().Err(err).Str("device_id", cred.DeviceID).Msg("reconnect attempt failed")
		return false
	}
	return true
}

// OnForegroundTransition should be called whenever the app-foreground
// signal flips from false to true.
func (c *Controller) OnForegroundTransition(ctx context.Context, foreground bool) {
	if !foreground {
		return
	}
	c.AttemptReconnectIfNeeded(ctx)
}

// OnDisconnected should be wired to the ConnectionManager's error stream;
// every DisconnectedEvent is a reconnection trigger.
func (c *Controller) OnDisconnected(ctx context.Context) {
	c.AttemptReconnectIfNeeded(ctx)
}
