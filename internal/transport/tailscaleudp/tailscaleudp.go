// Package tailscaleudp implements the Tailscale-routed transport variant: a
// connected UDP socket to the daemon's Tailscale address, framed
// `[len:u32 BE][payload]` per datagram,
// generalized from a WSPacketConn-style framing
// (internal/ws_packet_conn.go) from a WebSocket-carried packet conn to a
// raw UDP one.
package tailscaleudp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relayshell/connectcore/internal/xerrors"
	"github.com/relayshell/connectcore/internal/transport"
)

const (
	magic           uint32 = 0x52415354 // "RAST"
	handshakeRetries       = 3
	handshakeAttemptTimeout = 500 * time.Millisecond
	handshakeTotalBudget    = 2 * time.Second
	authTimeout             = 5 * time.Second
	ackByte                 = 0x01

	// maxUDPPayload is the UDP datagram ceiling (65507) minus the 4-byte
	// length prefix.
	maxUDPPayload = 65507 - 4
)

// Dial performs the connected-UDP handshake and returns a ready transport.
func Dial(ctx context.Context, host string, port uint16, deviceID string, authToken [32]byte) (transport.Transport, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("tailscaleudp resolve: %w", xerrors.TransportFatalError{Cause: err})
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("tailscaleudp dial: %w", xerrors.TransportFatalError{Cause: err})
	}

	if err := handshake(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	t := &Transport{conn: conn, connectedAt: time.Now()}

	if err := t.authenticate(ctx, deviceID, authToken); err != nil {
		conn.Close()
		return nil, err
	}

	return t, nil
}

func handshake(ctx context.Context, conn *net.UDPConn) error {
	deadline := time.Now().Add(handshakeTotalBudget)
	pkt := make([]byte, 8)
	binary.BigEndian.PutUint32(pkt[0:4], magic)

	for attempt := 0; attempt < handshakeRetries; attempt++ {
		if time.Now().After(deadline) {
			return fmt.Errorf("tailscaleudp handshake: %w", xerrors.ErrTransportTimeout)
		}
		if ctx.Err() != nil {
			return xerrors.ErrCancelled
		}
		if _, err := conn.Write(pkt); err != nil {
			return fmt.Errorf("tailscaleudp handshake write: %w", xerrors.TransportFatalError{Cause: err})
		}
		conn.SetReadDeadline(time.Now().Add(handshakeAttemptTimeout))
		resp := make([]byte, 8)
		n, err := conn.Read(resp)
		if err != nil {
			continue // timeout on this attempt; retry
		}
		if n == 8 && binary.BigEndian.Uint32(resp[0:4]) == magic {
			conn.SetReadDeadline(time.Time{})
			return nil
		}
	}
	return fmt.Errorf("tailscaleudp handshake: %w", xerrors.ErrTransportTimeout)
}

func (t *Transport) authenticate(ctx context.Context, deviceID string, authToken [32]byte) error {
	idBytes := []byte(deviceID)
	payload := make([]byte, 4+len(idBytes)+32)
	binary.BigEndian.PutUint32(payload[0:4], uint32(len(idBytes)))
	copy(payload[4:], idBytes)
	copy(payload[4+len(idBytes):], authToken[:])

	if err := t.Send(ctx, payload); err != nil {
		return err
	}

	t.conn.SetReadDeadline(time.Now().Add(authTimeout))
	defer t.conn.SetReadDeadline(time.Time{})

	for skipped := 0; skipped <= handshakeRetries; skipped++ {
		buf := make([]byte, maxUDPPayload+4)
		n, err := t.conn.Read(buf)
		if err != nil {
			return fmt.Errorf("tailscaleudp auth: %w", xerrors.ErrTransportTimeout)
		}
		if n == 8 && binary.BigEndian.Uint32(buf[0:4]) == magic {
			continue // late handshake retry, tolerate up to 3
		}
		if n == 1 && buf[0] == ackByte {
			return nil
		}
		return xerrors.AuthFailedError{Reason: "tailscale auth ack malformed"}
	}
	return xerrors.AuthFailedError{Reason: "tailscale auth ack not received"}
}

// Transport implements transport.Transport over a connected UDP socket.
type Transport struct {
	conn *net.UDPConn

	mu          sync.Mutex
	closed      bool
	connectedAt time.Time
	lastActive  atomic.Value

	bytesIn, bytesOut       atomic.Uint64
	messagesIn, messagesOut atomic.Uint64
}

func (t *Transport) Kind() transport.Kind { return transport.KindTailscale }

func (t *Transport) Send(ctx context.Context, b []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return xerrors.ErrTransportClosed
	}
	if len(b) > maxUDPPayload {
		return xerrors.ErrTooLarge
	}
	pkt := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(pkt[0:4], uint32(len(b)))
	copy(pkt[4:], b)

	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(dl)
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := t.conn.Write(pkt); err != nil {
		return fmt.Errorf("tailscaleudp send: %w", xerrors.TransportFatalError{Cause: err})
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
	skipped := 0
	for {
		if skipped > handshakeRetries {
			return nil, fmt.Errorf("tailscaleudp receive: too many stray handshake packets")
		}
		t.conn.SetReadDeadline(time.Now().Add(timeout))
		buf := make([]byte, maxUDPPayload+4)
		n, err := t.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, xerrors.ErrCancelled
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, xerrors.ErrTransportTimeout
			}
			return nil, fmt.Errorf("tailscaleudp receive: %w", xerrors.TransportFatalError{Cause: err})
		}
		if n == 8 && binary.BigEndian.Uint32(buf[0:4]) == magic {
			skipped++
			continue
		}
		if n < 4 {
			return nil, fmt.Errorf("tailscaleudp receive: %w", xerrors.ErrParse)
		}
		length := binary.BigEndian.Uint32(buf[0:4])
		if int(length) > n-4 {
			return nil, fmt.Errorf("tailscaleudp receive: %w", xerrors.ErrParse)
		}
		data := append([]byte(nil), buf[4:4+length]...)
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
	return t.conn.Close()
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *Transport) Stats() transport.Stats {
	last, _ := t.lastActive.Load().(time.Time)
	return transport.Stats{
		BytesIn:      t.bytesIn.Load(),
		BytesOut:     t.bytesOut.Load(),
		MessagesIn:   t.messagesIn.Load(),
		MessagesOut:  t.messagesOut.Load(),
		ConnectedAt:  t.connectedAt,
		LastActivity: last,
	}
}
