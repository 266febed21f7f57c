package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relayshell/connectcore/internal/creds"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/strategy"
	"github.com/relayshell/connectcore/internal/transport"
)

type fakeRepo struct {
	cred *creds.Credentials
	err  error
}

func (f *fakeRepo) GetSelectedDevice(ctx context.Context) (*creds.Credentials, error) {
	return f.cred, f.err
}
func (f *fakeRepo) UpdateTailscaleInfo(ctx context.Context, deviceID, ip string, port uint16) {}

type fakeStrategy struct {
	name       string
	priority   int
	available  bool
	connectErr error
	tr         transport.Transport
}

func (s *fakeStrategy) Name() string  { return s.name }
func (s *fakeStrategy) Priority() int { return s.priority }
func (s *fakeStrategy) Detect(ctx context.Context) (strategy.DetectResult, error) {
	return strategy.DetectResult{Available: s.available, Reason: "unavailable in test"}, nil
}
func (s *fakeStrategy) Connect(ctx context.Context, cc strategy.ConnectionContext, onProgress progress.Func) (strategy.ConnectResult, error) {
	if s.connectErr != nil {
		return strategy.ConnectResult{CanRetry: true}, s.connectErr
	}
	return strategy.ConnectResult{Transport: s.tr, CanRetry: false}, nil
}

type fakeTransport struct{ kind transport.Kind }

func (f *fakeTransport) Kind() transport.Kind                                      { return f.kind }
func (f *fakeTransport) Send(ctx context.Context, b []byte) error                  { return nil }
func (f *fakeTransport) Receive(ctx context.Context, t time.Duration) ([]byte, error) { return nil, nil }
func (f *fakeTransport) Close() error                                              { return nil }
func (f *fakeTransport) IsConnected() bool                                         { return true }
func (f *fakeTransport) Stats() transport.Stats                                    { return transport.Stats{} }

func TestConnectSucceedsWithFirstAvailableStrategy(t *testing.T) {
	repo := &fakeRepo{cred: &creds.Credentials{DeviceID: "dev-1"}}
	o := New(repo, nil)

	tr := &fakeTransport{kind: transport.KindLAN}
	build := func(cc strategy.ConnectionContext) []strategy.Strategy {
		return []strategy.Strategy{&fakeStrategy{name: "lan", priority: 0, available: true, tr: tr}}
	}

	got, err := o.Connect(context.Background(), build, nil)
	require.NoError(t, err)
	require.Equal(t, tr, got)
	require.Equal(t, StateConnected, o.State())
}

func TestConnectReturnsAllFailedWhenNoStrategyAvailable(t *testing.T) {
	repo := &fakeRepo{cred: &creds.Credentials{DeviceID: "dev-1"}}
	o := New(repo, nil)

	build := func(cc strategy.ConnectionContext) []strategy.Strategy {
		return []strategy.Strategy{&fakeStrategy{name: "lan", priority: 0, available: false}}
	}

	_, err := o.Connect(context.Background(), build, nil)
	require.Error(t, err)
	var allFailed ErrAllFailed
	require.ErrorAs(t, err, &allFailed)
	require.Equal(t, StateFailed, o.State())
}

func TestConnectFallsThroughOnStrategyFailure(t *testing.T) {
	repo := &fakeRepo{cred: &creds.Credentials{DeviceID: "dev-1"}}
	o := New(repo, nil)

	tr := &fakeTransport{kind: transport.KindTailscale}
	build := func(cc strategy.ConnectionContext) []strategy.Strategy {
		return []strategy.Strategy{
			&fakeStrategy{name: "lan", priority: 0, available: true, connectErr: errConnectFailed},
			&fakeStrategy{name: "tailscale", priority: 1, available: true, tr: tr},
		}
	}

	got, err := o.Connect(context.Background(), build, nil)
	require.NoError(t, err)
	require.Equal(t, tr, got)
}

func TestConnectRejectsConcurrentAttempt(t *testing.T) {
	repo := &fakeRepo{cred: &creds.Credentials{DeviceID: "dev-1"}}
	o := New(repo, nil)
	o.state = StateConnecting

	build := func(cc strategy.ConnectionContext) []strategy.Strategy { return nil }
	_, err := o.Connect(context.Background(), build, nil)
	require.ErrorIs(t, err, ErrAlreadyActive)
}

func TestDisconnectClosesCurrentTransport(t *testing.T) {
	repo := &fakeRepo{cred: &creds.Credentials{DeviceID: "dev-1"}}
	o := New(repo, nil)
	tr := &fakeTransport{kind: transport.KindLAN}
	o.state = StateConnected
	o.current = tr

	require.NoError(t, o.Disconnect())
	require.Equal(t, StateIdle, o.State())
}

var errConnectFailed = &testConnectError{}

type testConnectError struct{}

func (e *testConnectError) Error() string { return "connect failed" }
