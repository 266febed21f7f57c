// Package lan implements the LAN-direct Strategy: mDNS detect, scored
// multi-candidate selection, and a connect path that prefers a warm
// standby WebSocket when one is pre-dialed. The warm-standby redial
// feature is adapted from an EnsureStandbyTCP/wsAliveCheck pattern.
package lan

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/relayshell/connectcore/internal/codec"
	"github.com/relayshell/connectcore/internal/creds"
	"github.com/relayshell/connectcore/internal/netiface"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/strategy"
	"github.com/relayshell/connectcore/internal/transport/lanws"
)

const Priority = 0 // LAN-direct is tried first

// aliveCheckTimeout bounds the standby liveness ping before falling back to
// a fresh dial (a 1200ms alive-check budget).
const aliveCheckTimeout = 1200 * time.Millisecond

// Strategy is constructed once per paired daemon and reused across connect
// attempts (see Core.buildStrategies), so that a standby connection dialed
// after one attempt is still on hand for the next; the device's identity
// and last-known endpoint are supplied up front and refreshed via
// SetLastEndpoint as credentials change. Detect's result is cached on the
// instance for the following Connect (detect() state may be cached in the
// strategy instance).
type Strategy struct {
	deviceID string
	wifi     netiface.WiFiProvider

	mu           sync.Mutex
	lastEndpoint *creds.Endpoint
	lastDetect   []discovered

	standby        *websocket.Conn
	standbyHost    string
	standbyPort    uint16
	standbyRelease func()

	hasLastConn  bool
	lastConnHost string
	lastConnPort uint16
}

// New constructs a Strategy. wifi may be nil, meaning no platform WiFi
// lease is available and LAN dials never attempt to bind off a VPN
// interface.
func New(deviceID string, lastEndpoint *creds.Endpoint, wifi netiface.WiFiProvider) *Strategy {
	return &Strategy{deviceID: deviceID, lastEndpoint: lastEndpoint, wifi: wifi}
}

func (s *Strategy) Name() string  { return "lan" }
func (s *Strategy) Priority() int { return Priority }

// SetLastEndpoint refreshes the cached LAN endpoint used to seed Detect, so
// a Strategy instance reused across attempts picks up a newly-learned
// endpoint without being reconstructed.
func (s *Strategy) SetLastEndpoint(ep *creds.Endpoint) {
	s.mu.Lock()
	s.lastEndpoint = ep
	s.mu.Unlock()
}

// LastConnected reports the host/port of the most recent successful
// Connect, used by the caller to keep a warm standby connection ready for
// the next reconnect.
func (s *Strategy) LastConnected() (host string, port uint16, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConnHost, s.lastConnPort, s.hasLastConn
}

func (s *Strategy) Detect(ctx context.Context) (strategy.DetectResult, error) {
	s.mu.Lock()
	lastEndpoint := s.lastEndpoint
	s.mu.Unlock()

	var cands []discovered
	if lastEndpoint != nil {
		cands = append(cands, discovered{Host: lastEndpoint.Host, Port: lastEndpoint.Port})
	}
	found, err := browse(ctx, s.deviceID)
	if err == nil {
		cands = append(cands, found...)
	}

	s.mu.Lock()
	s.lastDetect = cands
	s.mu.Unlock()

	if len(cands) == 0 {
		return strategy.DetectResult{Available: false, Reason: "no LAN advertiser found"}, nil
	}
	return strategy.DetectResult{Available: true, Info: fmt.Sprintf("%d candidate(s)", len(cands))}, nil
}

func (s *Strategy) Connect(ctx context.Context, cc strategy.ConnectionContext, onProgress progress.Func) (strategy.ConnectResult, error) {
	s.mu.Lock()
	cands := s.lastDetect
	standby := s.standby
	standbyHost, standbyPort := s.standbyHost, s.standbyPort
	standbyRelease := s.standbyRelease
	s.lastDetect = nil
	s.standby = nil
	s.standbyRelease = nil
	s.mu.Unlock()

	if len(cands) == 0 {
		return strategy.ConnectResult{CanRetry: false}, fmt.Errorf("lan connect: no candidates from detect")
	}

	scored := make([]candidate, len(cands))
	for i, c := range cands {
		scored[i] = candidate{Host: c.Host, Port: c.Port}
	}
	best, ok := pickBestCandidate(scored)
	if !ok {
		return strategy.ConnectResult{CanRetry: false}, fmt.Errorf("lan connect: scoring produced no candidate")
	}

	authKey, err := codec.DeriveAuthKey(cc.Credentials.MasterSecret, cc.Credentials.DeviceID)
	if err != nil {
		return strategy.ConnectResult{CanRetry: false}, err
	}

	if standby != nil && standbyHost == best.Host && standbyPort == best.Port {
		actx, cancel := context.WithTimeout(ctx, aliveCheckTimeout)
		alive := wsAliveCheck(actx, standby)
		cancel()
		if alive {
			onProgress(progress.Connecting{Name: s.Name(), Step: "reusing-standby", Detail: best.Host, Progress: -1})
			s.recordConnected(best.Host, best.Port)
			return strategy.ConnectResult{Transport: newStandbyTransport(standby, standbyRelease), CanRetry: false}, nil
		}
		standby.Close(websocket.StatusNormalClosure, "stale-standby")
		if standbyRelease != nil {
			standbyRelease()
		}
	}

	onProgress(progress.Connecting{Name: s.Name(), Step: "dialing", Detail: best.Host, Progress: -1})

	ifaceName, release, err := s.acquireWiFiLease(ctx)
	if err != nil {
		return strategy.ConnectResult{CanRetry: true}, err
	}

	tr, err := lanws.Dial(ctx, best.Host, best.Port, cc.Credentials.DeviceID, authKey, ifaceName, release)
	if err != nil {
		if release != nil {
			release()
		}
		return strategy.ConnectResult{CanRetry: true}, err
	}

	s.recordConnected(best.Host, best.Port)
	return strategy.ConnectResult{Transport: tr, CanRetry: false}, nil
}

// acquireWiFiLease asks the configured WiFiProvider, if any, for a lease to
// bind the LAN socket off the VPN interface. It returns an empty ifaceName
// and a nil release when no provider is configured, leaving the dial to use
// the default route.
func (s *Strategy) acquireWiFiLease(ctx context.Context) (ifaceName string, release func(), err error) {
	if s.wifi == nil {
		return "", nil, nil
	}
	lease, err := s.wifi.AcquireLease(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("lan connect: acquire wifi lease: %w", err)
	}
	return lease.InterfaceName(), lease.Release, nil
}

func (s *Strategy) recordConnected(host string, port uint16) {
	s.mu.Lock()
	s.hasLastConn = true
	s.lastConnHost = host
	s.lastConnPort = port
	s.mu.Unlock()
}

// EnsureStandby pre-dials and liveness-tracks one warm WebSocket for the
// given host/port when LAN was the last-successful path, shortening the
// next reconnection's latency. Core calls this opportunistically after a
// successful LAN connect; it is best-effort and never reports failure
// upstream.
func (s *Strategy) EnsureStandby(ctx context.Context, host string, port uint16) {
	s.mu.Lock()
	exists := s.standby != nil
	s.mu.Unlock()
	if exists {
		return
	}

	ifaceName, release, err := s.acquireWiFiLease(ctx)
	if err != nil {
		return
	}

	u := fmt.Sprintf("ws://%s:%d/ws/standby-probe", host, port)
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d := netiface.DialerBoundTo(ifaceName)
	tr := &http.Transport{DialContext: d.DialContext}
	httpClient := &http.Client{Transport: tr}

	conn, _, err := websocket.Dial(cctx, u, &websocket.DialOptions{HTTPClient: httpClient})
	if err != nil {
		if release != nil {
			release()
		}
		return
	}

	s.mu.Lock()
	if s.standby != nil {
		conn.Close(websocket.StatusNormalClosure, "duplicate-standby")
		if release != nil {
			release()
		}
	} else {
		s.standby = conn
		s.standbyHost = host
		s.standbyPort = port
		s.standbyRelease = release
	}
	s.mu.Unlock()
}
