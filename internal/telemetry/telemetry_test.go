package telemetry

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("i/o timeout"), "timeout"},
		{errors.New("connectcore: auth failed: bad proof"), "auth"},
		{errors.New("connectcore: signalling unavailable"), "signalling"},
		{errors.New("connection refused"), "refused"},
		{errors.New("lookup host: no such host"), "dns"},
		{errors.New("boom"), "other"},
		{nil, "unknown"},
	}

	for _, tc := range cases {
		if got := failureReason(tc.err); got != tc.want {
			t.Fatalf("failureReason(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}

func TestToPromLabels(t *testing.T) {
	got := toPromLabels("strategy=lan,reason=timeout")
	want := "strategy=\"lan\",reason=\"timeout\""
	if got != want {
		t.Fatalf("toPromLabels=%q want %q", got, want)
	}
}

func TestHandlerRendersObservedCounters(t *testing.T) {
	tel := New()
	tel.ObserveStrategySelected("lan")
	tel.ObserveStrategyFailure("tailscale", errors.New("i/o timeout"))
	tel.SetHealthy("lan", true)
	tel.ObserveFrame("in", 128)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	tel.handler(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`connectcore_strategy_selected_total{strategy="lan"} 1`,
		`connectcore_strategy_failures_total{strategy="tailscale",reason="timeout"} 1`,
		`connectcore_strategy_healthy{strategy="lan"} 1`,
		`connectcore_frames_total{dir="in"} 1`,
		`connectcore_bytes_total{dir="in"} 128`,
	} {
		if !contains(body, want) {
			t.Fatalf("expected metrics body to contain %q, got:\n%s", want, body)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
