package connmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relayshell/connectcore/internal/codec"
	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/wire"
	"github.com/relayshell/connectcore/internal/xerrors"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	recvCh  chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{recvCh: make(chan []byte, 8)}
}

func (f *fakeTransport) Kind() transport.Kind { return transport.KindLAN }

func (f *fakeTransport) Send(ctx context.Context, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return xerrors.ErrTransportClosed
	}
	cp := append([]byte(nil), b...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case b, ok := <-f.recvCh:
		if !ok {
			return nil, xerrors.ErrTransportClosed
		}
		return b, nil
	case <-time.After(timeout):
		return nil, xerrors.ErrTransportTimeout
	case <-ctx.Done():
		return nil, xerrors.ErrCancelled
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeTransport) Stats() transport.Stats { return transport.Stats{LastActivity: time.Now()} }

func testKey() [codec.KeySize]byte {
	var k [codec.KeySize]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestRouteFrameDropsEmptySessionEvent(t *testing.T) {
	m := New(zerolog.Nop())
	key := testKey()
	c, err := codec.New(key)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	m.codec = c

	plaintext, err := wire.Marshal(&wire.Envelope{Kind: wire.KindSessionEvent, SessionEvent: &wire.SessionEventPayload{}})
	if err != nil {
		t.Fatalf("wire.Marshal: %v", err)
	}
	ciphertext, err := c.Encode(plaintext)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	m.routeFrame(ciphertext)

	select {
	case <-m.sessionEvents.Subscribe():
		t.Fatal("expected empty session event to be dropped, not published")
	default:
	}
}

func TestRouteFramePublishesPopulatedSessionEvent(t *testing.T) {
	m := New(zerolog.Nop())
	key := testKey()
	c, _ := codec.New(key)
	m.codec = c

	plaintext, _ := wire.Marshal(&wire.Envelope{
		Kind:         wire.KindSessionEvent,
		SessionEvent: &wire.SessionEventPayload{Attached: &wire.SessionAttached{SessionID: "s1"}},
	})
	ciphertext, _ := c.Encode(plaintext)

	sub := m.sessionEvents.Subscribe()
	m.routeFrame(ciphertext)

	select {
	case ev := <-sub:
		if ev.Attached == nil || ev.Attached.SessionID != "s1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected session event to be published")
	}
}

func TestRouteFrameDropsUndecryptableFrame(t *testing.T) {
	m := New(zerolog.Nop())
	key := testKey()
	c, _ := codec.New(key)
	m.codec = c

	m.routeFrame([]byte("not a valid frame"))
	// no panic, nothing published: success is simply not crashing.
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	m := New(zerolog.Nop())
	err := m.Send(context.Background(), &wire.Envelope{Kind: wire.KindPing, Ping: &wire.PingPayload{}})
	if err == nil {
		t.Fatal("expected Send to fail when not connected")
	}
}

func TestConnectSendsConnectionReadyThenDisconnectCloses(t *testing.T) {
	m := New(zerolog.Nop())
	tr := newFakeTransport()
	key := testKey()

	if err := m.Connect(context.Background(), tr, key); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	tr.mu.Lock()
	n := len(tr.sent)
	tr.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one ConnectionReady frame sent, got %d", n)
	}

	if !m.IsConnected() {
		t.Fatal("expected IsConnected after Connect")
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if m.IsConnected() {
		t.Fatal("expected not connected after Disconnect")
	}
	if !tr.closed {
		t.Fatal("expected transport to be closed after Disconnect")
	}
}
