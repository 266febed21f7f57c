// Package webrtcdc implements the WebRTC data-channel transport variant:
// offer/ICE/SDP exchange via a signalling.Channel, then a single ordered
// data channel carrying application frames ("WebRTC (data
// channel)"). The bounded receive-channel/OnMessage pattern is grounded on
// other_examples' bamgate bridge.go Bind.SetDataChannel.
package webrtcdc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/relayshell/connectcore/internal/netiface"
	"github.com/relayshell/connectcore/internal/signalling"
	"github.com/relayshell/connectcore/internal/transport"
	"github.com/relayshell/connectcore/internal/xerrors"
)

// recvBufferSize bounds the data-channel receive queue; a full buffer drops
// the newest packet, mirroring the bamgate Bind's "drop like UDP" policy.
const recvBufferSize = 256

// openTimeout is the data-channel open budget.
const openTimeout = 30 * time.Second

// Dial creates a peer connection, offers a single ordered data channel,
// exchanges SDP through ch, and waits for the channel to open. hasLocalTailscale
// controls Tailscale-range candidate filtering from the offer.
func Dial(ctx context.Context, ch signalling.Channel, hasLocalTailscale bool, onProgress signalling.ProgressFunc) (transport.Transport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("webrtcdc: %w", xerrors.TransportFatalError{Cause: err})
	}

	ordered := true
	dc, err := pc.CreateDataChannel("connectcore", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcdc create data channel: %w", xerrors.TransportFatalError{Cause: err})
	}

	t := &Transport{
		pc:                pc,
		dc:                dc,
		hasLocalTailscale: hasLocalTailscale,
		recvCh:            make(chan []byte, recvBufferSize),
		closeCh:           make(chan struct{}),
		connectedAt:       time.Now(),
	}

	openCh := make(chan struct{})
	dc.OnOpen(func() { close(openCh) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := append([]byte(nil), msg.Data...)
		t.bytesIn.Add(uint64(len(data)))
		t.messagesIn.Add(1)
		t.touch()
		select {
		case t.recvCh <- data:
		case <-t.closeCh:
		default:
		}
	})
	dc.OnClose(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcdc create offer: %w", xerrors.TransportFatalError{Cause: err})
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcdc set local description: %w", xerrors.TransportFatalError{Cause: err})
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return nil, xerrors.ErrCancelled
	}

	localSDP := pc.LocalDescription().SDP
	if !hasLocalTailscale {
		localSDP = filterTailscaleCandidates(localSDP)
	}

	answerSDP, err := ch.SendOffer(ctx, localSDP, onProgress)
	if err != nil || answerSDP == nil {
		pc.Close()
		return nil, xerrors.ErrSignalling
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: *answerSDP}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcdc set remote description: %w", xerrors.TransportFatalError{Cause: err})
	}

	octx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	select {
	case <-openCh:
	case <-octx.Done():
		pc.Close()
		if ctx.Err() != nil {
			return nil, xerrors.ErrCancelled
		}
		return nil, xerrors.ErrTransportTimeout
	}

	return t, nil
}

// ObservedTailscaleEndpoint inspects the active ICE candidate pair and
// returns the remote address if it falls in the Tailscale range and a
// local Tailscale interface is present.
func ObservedTailscaleEndpoint(pc *webrtc.PeerConnection, hasLocalTailscale bool) (host string, port uint16, ok bool) {
	if !hasLocalTailscale {
		return "", 0, false
	}
	stats := pc.GetStats()
	for _, s := range stats {
		pair, isPair := s.(webrtc.ICECandidatePairStats)
		if !isPair || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		remote, isRemote := stats[pair.RemoteCandidateID].(webrtc.ICECandidateStats)
		if !isRemote {
			continue
		}
		ip := net.ParseIP(remote.IP)
		if ip != nil && netiface.IsTailscaleIP(ip) {
			return remote.IP, uint16(remote.Port), true
		}
	}
	return "", 0, false
}

// Transport implements transport.Transport over a pion data channel.
type Transport struct {
	pc                *webrtc.PeerConnection
	dc                *webrtc.DataChannel
	hasLocalTailscale bool

	recvCh  chan []byte
	closeCh chan struct{}

	mu          sync.Mutex
	closed      bool
	closeOnce   sync.Once
	connectedAt time.Time
	lastActive  atomic.Value

	bytesIn, bytesOut       atomic.Uint64
	messagesIn, messagesOut atomic.Uint64
}

func (t *Transport) Kind() transport.Kind { return transport.KindWebRTC }

// ObservedTailscaleEndpoint implements orchestrator's enrichment-source
// lookup: callers type-assert a transport.Transport to
// this interface to learn a Tailscale endpoint discovered via the active
// ICE candidate pair.
func (t *Transport) ObservedTailscaleEndpoint() (host string, port uint16, ok bool) {
	return ObservedTailscaleEndpoint(t.pc, t.hasLocalTailscale)
}

// maxMessageSize mirrors the 16 MiB message size cap.
const maxMessageSize = 16 * 1024 * 1024

func (t *Transport) Send(ctx context.Context, b []byte) error {
	if !t.IsConnected() {
		return xerrors.ErrTransportClosed
	}
	if len(b) > maxMessageSize {
		return xerrors.ErrTooLarge
	}
	if err := t.dc.Send(b); err != nil {
		return fmt.Errorf("webrtcdc send: %w", xerrors.TransportFatalError{Cause: err})
	}
	t.bytesOut.Add(uint64(len(b)))
	t.messagesOut.Add(1)
	t.touch()
	return nil
}

func (t *Transport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data, ok := <-t.recvCh:
		if !ok {
			return nil, xerrors.ErrTransportClosed
		}
		return data, nil
	case <-timer.C:
		return nil, xerrors.ErrTransportTimeout
	case <-ctx.Done():
		return nil, xerrors.ErrCancelled
	case <-t.closeCh:
		return nil, xerrors.ErrTransportClosed
	}
}

func (t *Transport) touch() { t.lastActive.Store(time.Now()) }

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.closeCh) })
	return t.pc.Close()
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
