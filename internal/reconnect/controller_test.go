package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relayshell/connectcore/internal/creds"
)

type fakeRepo struct {
	cred *creds.Credentials
	err  error
}

func (f *fakeRepo) GetSelectedDevice(ctx context.Context) (*creds.Credentials, error) {
	return f.cred, f.err
}
func (f *fakeRepo) UpdateTailscaleInfo(ctx context.Context, deviceID string, ip string, port uint16) {
}

type fakeState struct{ connected bool }

func (f *fakeState) IsConnected() bool { return f.connected }

type fakeConnector struct {
	mu       sync.Mutex
	calls    int
	blockOn  chan struct{}
	err      error
}

func (f *fakeConnector) Connect(ctx context.Context, cred *creds.Credentials) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.blockOn != nil {
		<-f.blockOn
	}
	return f.err
}

func (f *fakeConnector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newController(repo creds.Repository, state ConnectionState, conn Connector) *Controller {
	return New(repo, state, conn, zerolog.Nop())
}

func TestAttemptReconnectReturnsFalseWhenAlreadyConnected(t *testing.T) {
	c := newController(&fakeRepo{cred: &creds.Credentials{DeviceID: "d1"}}, &fakeState{connected: true}, &fakeConnector{})
	if c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected false when already connected")
	}
}

func TestAttemptReconnectReturnsFalseWithoutCredentials(t *testing.T) {
	c := newController(&fakeRepo{cred: nil}, &fakeState{}, &fakeConnector{})
	if c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected false without a selected credential")
	}
}

func TestAttemptReconnectReturnsFalseWithRepositoryError(t *testing.T) {
	c := newController(&fakeRepo{err: errors.New("repo down")}, &fakeState{}, &fakeConnector{})
	if c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected false on repository error")
	}
}

func TestAttemptReconnectReturnsFalseAfterManualDisconnect(t *testing.T) {
	conn := &fakeConnector{}
	c := newController(&fakeRepo{cred: &creds.Credentials{DeviceID: "d1"}}, &fakeState{}, conn)
	c.MarkManualDisconnect()
	if c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected false after manual disconnect latch set")
	}
	if conn.callCount() != 0 {
		t.Fatal("connector should never be invoked once the manual latch is set")
	}

	c.ClearManualDisconnect()
	if !c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected true once the manual latch is cleared")
	}
}

func TestAttemptReconnectSucceedsAndInvokesConnector(t *testing.T) {
	conn := &fakeConnector{}
	c := newController(&fakeRepo{cred: &creds.Credentials{DeviceID: "d1"}}, &fakeState{}, conn)
	if !c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected true on a clean attempt")
	}
	if conn.callCount() != 1 {
		t.Fatalf("expected exactly one connector invocation, got %d", conn.callCount())
	}
	if c.IsReconnecting() {
		t.Fatal("expected isReconnecting to be false once the attempt completes")
	}
}

func TestAttemptReconnectReturnsFalseOnConnectorError(t *testing.T) {
	conn := &fakeConnector{err: errors.New("connect failed")}
	c := newController(&fakeRepo{cred: &creds.Credentials{DeviceID: "d1"}}, &fakeState{}, conn)
	if c.AttemptReconnectIfNeeded(context.Background()) {
		t.Fatal("expected false when the connector returns an error")
	}
}

// TestConcurrentAttemptsSingleFlight covers invariant: of N concurrent
// calls while one is in flight, exactly one reaches the connector and the
// rest return false promptly.
func TestConcurrentAttemptsSingleFlight(t *testing.T) {
	conn := &fakeConnector{blockOn: make(chan struct{})}
	c := newController(&fakeRepo{cred: &creds.Credentials{DeviceID: "d1"}}, &fakeState{}, conn)

	const n = 4
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = c.AttemptReconnectIfNeeded(context.Background())
		}(i)
	}

	// give every goroutine a chance to reach the try-lock before releasing
	// the one that got in.
	time.Sleep(50 * time.Millisecond)
	close(conn.blockOn)
	wg.Wait()

	trueCount := 0
	for _, r := range results {
		if r {
			trueCount++
		}
	}
	if trueCount != 1 {
		t.Fatalf("expected exactly one successful concurrent attempt, got %d", trueCount)
	}
	if conn.callCount() != 1 {
		t.Fatalf("expected exactly one connector invocation across concurrent callers, got %d", conn.callCount())
	}
}

func TestOnForegroundTransitionIgnoresFalse(t *testing.T) {
	conn := &fakeConnector{}
	c := newController(&fakeRepo{cred: &creds.Credentials{DeviceID: "d1"}}, &fakeState{}, conn)
	c.OnForegroundTransition(context.Background(), false)
	if conn.callCount() != 0 {
		t.Fatal("transition to false should never trigger a reconnect")
	}
	c.OnForegroundTransition(context.Background(), true)
	if conn.callCount() != 1 {
		t.Fatal("transition to true should trigger exactly one reconnect attempt")
	}
}
