// Package lanws implements the LAN-direct transport variant: a WebSocket
// connection to `ws://host:port/ws/{deviceID}` authenticated by an
// HMAC-SHA256 proof of knowledge of the AuthKey.
package lanws

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/relayshell/connectcore/internal/netiface"
	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/xerrors"
)

// proofHeader carries the HMAC-SHA256 proof of knowledge of the AuthKey,
// grounded on header-based upstream auth conventions
// (internal/ws.go upstream dialing) generalized from bearer tokens to an
// HMAC proof since this module never transmits the AuthKey itself.
const proofHeader = "X-Connectcore-Proof"

// Dial opens a LAN-direct WebSocket transport. authKey proves knowledge of
// the shared secret via HMAC-SHA256(authKey, deviceID); ifaceName, when
// non-empty, binds the dial off a VPN/mesh interface. release, when
// non-nil, is invoked exactly once when the returned Transport is closed —
// the caller passes a WiFiLease's Release so the bind permission is held
// for the connection's whole lifetime, not just the dial.
func Dial(ctx context.Context, host string, port uint16, deviceID string, authKey [32]byte, ifaceName string, release func()) (transport.Transport, error) {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/ws/" + deviceID}

	proof := computeProof(authKey, deviceID)

	d := netiface.DialerBoundTo(ifaceName)
	tr := &http.Transport{
		DialContext: d.DialContext,
	}
	httpClient := &http.Client{Transport: tr, Timeout: 10 * time.Second}

	hdr := http.Header{}
	hdr.Set(proofHeader, proof)

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: httpClient,
		HTTPHeader: hdr,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, xerrors.AuthFailedError{Reason: "LAN handshake rejected proof of knowledge"}
		}
		return nil, fmt.Errorf("lanws dial: %w", xerrors.TransportFatalError{Cause: err})
	}
	conn.SetReadLimit(wireMaxMessageSize)

	return &Transport{conn: conn, connectedAt: time.Now(), release: release}, nil
}

// FromConn wraps an already-open coder/websocket connection as a
// Transport. Used to hand a pre-dialed warm-standby connection (internal
// to internal/strategy/lan) to the rest of the pipeline without re-dialing.
// release behaves as in Dial.
func FromConn(conn *websocket.Conn, release func()) transport.Transport {
	conn.SetReadLimit(wireMaxMessageSize)
	return &Transport{conn: conn, connectedAt: time.Now(), release: release}
}

// wireMaxMessageSize mirrors the 16 MiB message size cap.
const wireMaxMessageSize = 16 * 1024 * 1024

// computeProof derives the handshake's HMAC-SHA256 proof of knowledge of
// authKey without ever transmitting the key itself.
func computeProof(authKey [32]byte, deviceID string) string {
	mac := hmac.New(sha256.New, authKey[:])
	mac.Write([]byte(deviceID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Transport implements transport.Transport over a coder/websocket
// connection, one frame per binary WebSocket message.
type Transport struct {
	conn    *websocket.Conn
	release func()

	mu          sync.Mutex
	closed      bool
	connectedAt time.Time
	lastActive  atomic.Value // time.Time

	bytesIn, bytesOut     atomic.Uint64
	messagesIn, messagesOut atomic.Uint64
}

func (t *Transport) Kind() transport.Kind { return transport.KindLAN }

func (t *Transport) Send(ctx context.Context, b []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return xerrors.ErrTransportClosed
	}
	if len(b) > wireMaxMessageSize {
		return xerrors.ErrTooLarge
	}
	if err := t.conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		if ctx.Err() != nil {
			return xerrors.ErrCancelled
		}
		return fmt.Errorf("lanws send: %w", xerrors.TransportFatalError{Cause: err})
	}
	t.bytesOut.Add(uint64(len(b)))
	t.messagesOut.Add(1)
	t.touch()
	return nil
}

func (t *Transport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, xerrors.ErrTransportClosed
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		mt, data, err := t.conn.Read(rctx)
		if err != nil {
			if rctx.Err() != nil && ctx.Err() == nil {
				return nil, xerrors.ErrTransportTimeout
			}
			if ctx.Err() != nil {
				return nil, xerrors.ErrCancelled
			}
			return nil, fmt.Errorf("lanws receive: %w", xerrors.TransportFatalError{Cause: err})
		}
		if mt != websocket.MessageBinary {
			continue
		}
		t.bytesIn.Add(uint64(len(data)))
		t.messagesIn.Add(1)
		t.touch()
		return data, nil
	}
}

func (t *Transport) touch() { t.lastActive.Store(time.Now()) }

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.conn.Close(websocket.StatusNormalClosure, "close")
	if t.release != nil {
		t.release()
	}
	return err
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *Transport) Stats() transport.Stats {
	last, _ := t.lastActive.Load().(time.Time)
	return transport.Stats{
		BytesIn:       t.bytesIn.Load(),
		BytesOut:      t.bytesOut.Load(),
		MessagesIn:    t.messagesIn.Load(),
		MessagesOut:   t.messagesOut.Load(),
		ConnectedAt:   t.connectedAt,
		LastActivity:  last,
	}
}
