package webrtc

import (
	"context"
	"testing"

	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/internal/strategy"
)

func TestDetectAlwaysAvailable(t *testing.T) {
	s := New()
	res, err := s.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Available {
		t.Fatal("expected webrtc strategy to always report available")
	}
}

func TestConnectRequiresSignallingChannel(t *testing.T) {
	s := New()
	_, err := s.Connect(context.Background(), strategy.ConnectionContext{}, progress.Noop)
	if err == nil {
		t.Fatal("expected error when no signalling channel is supplied")
	}
}
