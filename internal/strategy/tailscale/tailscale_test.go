package tailscale

import (
	"context"
	"testing"

	"github.com/relayshell/connectcore/internal/creds"
)

func TestDetectUnavailableWithoutLocalInterface(t *testing.T) {
	s := New(false, &creds.Endpoint{Host: "100.64.1.2", Port: 9876})
	res, err := s.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Available {
		t.Fatal("expected unavailable without local tailscale interface")
	}
}

func TestDetectUnavailableWithoutEndpoint(t *testing.T) {
	s := New(true, nil)
	res, err := s.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Available {
		t.Fatal("expected unavailable without cached endpoint")
	}
}

func TestDetectAvailable(t *testing.T) {
	s := New(true, &creds.Endpoint{Host: "100.64.1.2", Port: 9876})
	res, err := s.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Available {
		t.Fatal("expected available")
	}
}

func TestPriority(t *testing.T) {
	s := New(true, nil)
	if s.Priority() != Priority {
		t.Fatalf("Priority() = %d, want %d", s.Priority(), Priority)
	}
	if s.Name() != "tailscale" {
		t.Fatalf("Name() = %q", s.Name())
	}
}
