package lan

import (
	"testing"
	"time"
)

func TestPickBestCandidatePrefersLowerRTT(t *testing.T) {
	cands := []candidate{
		{Host: "10.0.0.1", RTT: 50 * time.Millisecond},
		{Host: "10.0.0.2", RTT: 5 * time.Millisecond},
	}
	best, ok := pickBestCandidate(cands)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if best.Host != "10.0.0.2" {
		t.Fatalf("expected lowest-RTT candidate, got %s", best.Host)
	}
}

func TestPickBestCandidatePenalizesFailures(t *testing.T) {
	cands := []candidate{
		{Host: "10.0.0.1", RTT: 10 * time.Millisecond, FailCount: 5},
		{Host: "10.0.0.2", RTT: 20 * time.Millisecond, FailCount: 0},
	}
	best, ok := pickBestCandidate(cands)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if best.Host != "10.0.0.2" {
		t.Fatalf("expected failure-penalized candidate to lose, got %s", best.Host)
	}
}

func TestPickBestCandidateEmpty(t *testing.T) {
	if _, ok := pickBestCandidate(nil); ok {
		t.Fatal("expected no candidate for empty input")
	}
}
