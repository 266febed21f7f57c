// Package connmanager owns one Transport + Codec pair and routes decrypted
// envelopes to bounded event streams. The listener/heartbeat pair is a
// supervised set of goroutines coordinated through a mutex-guarded struct,
// not a shared event bus.
package connmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relayshell/connectcore/internal/codec"
	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/wire"
	"github.com/relayshell/connectcore/internal/xerrors"
)

const (
	sessionEventsBuffer  = 64
	terminalEventsBuffer = 128
	initialStateBuffer   = 1

	connectionReadyTimeout = 10 * time.Second
	listenerReceiveTimeout = 60 * time.Second
	healthIdleThreshold    = 90 * time.Second
	heartbeatInterval      = 30 * time.Second
)

// DisconnectedEvent is emitted on ErrorStream when the listener's receive
// loop encounters a non-Timeout, non-Cancelled error.
type DisconnectedEvent struct {
	Reason error
}

// Manager is safe for concurrent use; a single mutex serialises
// connect/disconnect transitions.
type Manager struct {
	log zerolog.Logger

	mu          sync.Mutex
	transport   transport.Transport
	codec       *codec.Codec
	connID      uuid.UUID
	isConnected bool
	isHealthy   bool
	lastPingAt  time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	sessionEvents  *eventStream[*wire.SessionEventPayload]
	terminalEvents *eventStream[*wire.TerminalEventPayload]
	initialState   *eventStream[*wire.InitialStatePayload]
	errorStream    *eventStream[DisconnectedEvent]
}

func New(log zerolog.Logger) *Manager {
	return &Manager{
		log:            log.With().Str("component", "connmanager").Logger(),
		sessionEvents:  newEventStream[*wire.SessionEventPayload](sessionEventsBuffer, false),
		terminalEvents: newEventStream[*wire.TerminalEventPayload](terminalEventsBuffer, true),
		initialState:   newEventStream[*wire.InitialStatePayload](initialStateBuffer, true),
		errorStream:    newEventStream[DisconnectedEvent](1, false),
	}
}

func (m *Manager) SessionEvents() <-chan *wire.SessionEventPayload   { return m.sessionEvents.Subscribe() }
func (m *Manager) TerminalEvents() <-chan *wire.TerminalEventPayload { return m.terminalEvents.Subscribe() }
func (m *Manager) InitialState() <-chan *wire.InitialStatePayload   { return m.initialState.Subscribe() }
func (m *Manager) Errors() <-chan DisconnectedEvent                  { return m.errorStream.Subscribe() }

// Connect installs tr and key as the active connection.
func (m *Manager) Connect(ctx context.Context, tr transport.Transport, key [codec.KeySize]byte) error {
	m.mu.Lock()
	if m.transport != nil {
		m.transport.Close()
	}
	prevCancel := m.cancel
	m.mu.Unlock()
	if prevCancel != nil {
		prevCancel()
		m.wg.Wait()
	}

	c, err := codec.New(key)
	if err != nil {
		return fmt.Errorf("connmanager connect: %w", err)
	}

	m.mu.Lock()
	m.transport = tr
	m.codec = c
	m.connID = uuid.New()
	m.isConnected = true
	m.isHealthy = true
	connID := m.connID
	m.mu.Unlock()

	log := m.log.With().Str("conn_id", connID.String()).Logger()

	// The ConnectionReady send happens outside m.mu so a backpressured
	// write never blocks a concurrent listener/routeFrame call that only
	// needs the lock briefly to snapshot state.
	readyCtx, cancelReady := context.WithTimeout(ctx, connectionReadyTimeout)
	defer cancelReady()
	ciphertext, err := encodeEnvelope(&wire.Envelope{Kind: wire.KindConnectionReady}, c)
	if err == nil {
		err = tr.Send(readyCtx, ciphertext)
	}
	if err != nil {
		m.mu.Lock()
		m.isConnected = false
		m.transport = nil
		m.mu.Unlock()
		tr.Close()
		return fmt.Errorf("connmanager connect: ConnectionReady send failed: %w", err)
	}
	log.Debug().Str("kind", tr.Kind().String()).Msg("connection established")

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	m.wg.Add(2)
	go m.listenerLoop(runCtx, tr, connID)
	go m.heartbeatLoop(runCtx, tr)

	return nil
}

// ConnectionID returns the identifier minted for the current connection, or
// the zero UUID if nothing is connected. Useful for correlating manager log
// lines with the progress events and metrics emitted around the same attempt.
func (m *Manager) ConnectionID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Disconnect tears down the listener/heartbeat pair and closes the
// transport. Idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	tr := m.transport
	cancel := m.cancel
	m.transport = nil
	m.cancel = nil
	m.isConnected = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
	if tr != nil {
		return tr.Close()
	}
	return nil
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isConnected
}

func (m *Manager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isHealthy
}

// listenerLoop receives and routes inbound frames until cancelled or the
// transport fails fatally.
func (m *Manager) listenerLoop(ctx context.Context, tr transport.Transport, connID uuid.UUID) {
	defer m.wg.Done()
	log := m.log.With().Str("conn_id", connID.String()).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := tr.Receive(ctx, listenerReceiveTimeout)
		if err != nil {
			if errors.Is(err, xerrors.ErrTransportTimeout) {
				if tr.Stats().LastActivity.IsZero() || time.Since(tr.Stats().LastActivity) > healthIdleThreshold {
					m.mu.Lock()
					m.isHealthy = false
					m.mu.Unlock()
				}
				continue
			}
			if errors.Is(err, xerrors.ErrCancelled) {
				return
			}
			m.mu.Lock()
			m.isConnected = false
			m.isHealthy = false
			m.mu.Unlock()
			log.Warn().Err(err).Msg("listener fatal error, disconnecting")
			if dropped := m.errorStream.publish(DisconnectedEvent{Reason: err}); dropped {
				log.Debug().Msg("error stream full, dropping disconnected event")
			}
			return
		}

		m.routeFrame(frame)
	}
}

// heartbeatLoop periodically recomputes the health gauge from transport
// idle time.
func (m *Manager) heartbeatLoop(ctx context.Context, tr transport.Transport) {
	defer m.wg.Done()
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			idle := time.Since(tr.Stats().LastActivity)
			m.mu.Lock()
			m.isHealthy = idle <= healthIdleThreshold
			m.mu.Unlock()
		}
	}
}

// routeFrame decrypts and dispatches one inbound frame. Decryption/parse
// failures and oversize/empty frames are logged and dropped; the
// connection stays alive.
func (m *Manager) routeFrame(frame []byte) {
	m.mu.Lock()
	c := m.codec
	m.mu.Unlock()
	if c == nil {
		return
	}

	plaintext, err := c.Decode(frame)
	if err != nil {
		m.log.Debug().Err(err).Msg("dropping frame: decrypt failed")
		return
	}

	env, err := wire.Unmarshal(plaintext)
	if err != nil {
		m.log.Debug().Err(err).Msg("dropping frame: parse failed")
		return
	}

	switch env.Kind {
	case wire.KindSessionEvent:
		if env.SessionEvent.IsEmpty() {
			m.log.Debug().Msg("dropping empty session event")
			return
		}
		if dropped := m.sessionEvents.publish(env.SessionEvent); dropped {
			m.log.Debug().Msg("sessionEvents stream full, dropping event")
		}
	case wire.KindTerminalEvent:
		if env.TerminalEvent.IsEmpty() {
			m.log.Debug().Msg("dropping empty terminal event")
			return
		}
		if dropped := m.terminalEvents.publish(env.TerminalEvent); dropped {
			m.log.Debug().Msg("terminalEvents stream full, dropping event")
		}
	case wire.KindInitialState:
		if dropped := m.initialState.publish(env.InitialState); dropped {
			m.log.Debug().Msg("initialState stream full, dropping snapshot")
		}
	case wire.KindPong:
		m.mu.Lock()
		sentAt := m.lastPingAt
		m.mu.Unlock()
		if !sentAt.IsZero() {
			m.log.Debug().Dur("latency", time.Since(sentAt)).Msg("pong received")
		}
	case wire.KindErrorMsg:
		if env.Error != nil {
			m.log.Info().Str("code", env.Error.Code).Str("message", env.Error.Message).Msg("daemon reported error")
		}
	case wire.KindClipboard:
		m.log.Debug().Msg("dropping reserved clipboard payload")
	default:
		m.log.Debug().Uint8("kind", uint8(env.Kind)).Msg("dropping unknown envelope kind")
	}
}

// send is the shared encrypt+transmit path; requires isConnected. The lock
// is held only long enough to snapshot the connected transport/codec pair —
// the actual transport.Send, which may suspend under backpressure, runs
// unlocked so it never stalls the listener goroutine's routeFrame calls.
func (m *Manager) send(ctx context.Context, env *wire.Envelope) error {
	m.mu.Lock()
	connected := m.isConnected
	c := m.codec
	tr := m.transport
	m.mu.Unlock()

	if !connected && env.Kind != wire.KindConnectionReady {
		return xerrors.ErrTransportClosed
	}
	if c == nil || tr == nil {
		return xerrors.ErrTransportClosed
	}

	ciphertext, err := encodeEnvelope(env, c)
	if err != nil {
		return err
	}
	return tr.Send(ctx, ciphertext)
}

// encodeEnvelope marshals and encrypts env; it touches no Manager state so
// callers may run it outside m.mu.
func encodeEnvelope(env *wire.Envelope, c *codec.Codec) ([]byte, error) {
	plaintext, err := wire.Marshal(env)
	if err != nil {
		return nil, err
	}
	return c.Encode(plaintext)
}

// Send transmits an arbitrary envelope — callers build envelopes rather
// than handing the manager pre-serialized bytes, since serialization is
// this package's job.
func (m *Manager) Send(ctx context.Context, env *wire.Envelope) error {
	return m.send(ctx, env)
}

// SendSessionCommand wraps cmd and transmits it.
func (m *Manager) SendSessionCommand(ctx context.Context, cmd *wire.SessionCommandPayload) error {
	return m.send(ctx, &wire.Envelope{Kind: wire.KindSessionCommand, SessionCommand: cmd})
}

// SendTerminalCommand wraps cmd and transmits it.
func (m *Manager) SendTerminalCommand(ctx context.Context, cmd *wire.TerminalCommandPayload) error {
	return m.send(ctx, &wire.Envelope{Kind: wire.KindTerminalCommand, TerminalCommand: cmd})
}

// SendPing transmits a Ping envelope and records the send time for the
// eventual Pong's latency computation.
func (m *Manager) SendPing(ctx context.Context) error {
	now := time.Now()
	m.mu.Lock()
	m.lastPingAt = now
	m.mu.Unlock()
	return m.send(ctx, &wire.Envelope{Kind: wire.KindPing, Ping: &wire.PingPayload{TimestampUnixMilli: now.UnixMilli()}})
}
