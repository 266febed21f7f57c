// Package telemetry is a hand-rolled Prometheus-text exporter for the
// connection core's own health, adapted from a hand-rolled
// internal/metrics.go. It is explicitly constructed and injected rather
// than a package-level singleton, consistent with this module's
// no-ambient-globals convention.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Telemetry accumulates connection-core counters: which strategy was
// selected, how often each strategy failed, and whether the active
// connection is currently healthy.
type Telemetry struct {
	mu sync.RWMutex

	selectedTotal map[string]uint64
	failuresTotal map[string]uint64
	healthy       map[string]float64
	framesTotal   map[string]uint64
	bytesTotal    map[string]uint64
	connectDialSum   map[string]float64
	connectDialCount map[string]uint64
}

func New() *Telemetry {
	return &Telemetry{
		selectedTotal:    make(map[string]uint64),
		failuresTotal:    make(map[string]uint64),
		healthy:          make(map[string]float64),
		framesTotal:      make(map[string]uint64),
		bytesTotal:       make(map[string]uint64),
		connectDialSum:   make(map[string]float64),
		connectDialCount: make(map[string]uint64),
	}
}

// ServeHTTP starts a /metrics endpoint and blocks until ctx is cancelled.
func (t *Telemetry) ServeHTTP(ctx context.Context, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("telemetry: empty listen address")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", t.handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telemetry: serve: %w", err)
	}
	return nil
}

// ObserveStrategySelected records that strategy won a connect attempt.
func (t *Telemetry) ObserveStrategySelected(strategy string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selectedTotal[fmt.Sprintf("strategy=%s", strategy)]++
}

// ObserveStrategyFailure records a failed attempt with a coarse reason.
func (t *Telemetry) ObserveStrategyFailure(strategy string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	reason := failureReason(err)
	t.failuresTotal[fmt.Sprintf("strategy=%s,reason=%s", strategy, reason)]++
}

// SetHealthy updates the current health gauge for strategy's active
// connection, if any.
func (t *Telemetry) SetHealthy(strategy string, healthy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := 0.0
	if healthy {
		v = 1
	}
	t.healthy[fmt.Sprintf("strategy=%s", strategy)] = v
}

// ObserveFrame records one transport-level send/receive.
func (t *Telemetry) ObserveFrame(direction string, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.framesTotal[fmt.Sprintf("dir=%s", direction)]++
	t.bytesTotal[fmt.Sprintf("dir=%s", direction)] += uint64(bytes)
}

// ObserveConnectDuration records how long a successful Strategy.Connect
// call took.
func (t *Telemetry) ObserveConnectDuration(strategy string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := fmt.Sprintf("strategy=%s", strategy)
	t.connectDialCount[k]++
	t.connectDialSum[k] += d.Seconds()
}

func failureReason(err error) string {
	if err == nil {
		return "unknown"
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout") || strings.Contains(e, "deadline"):
		return "timeout"
	case strings.Contains(e, "auth"):
		return "auth"
	case strings.Contains(e, "signalling"):
		return "signalling"
	case strings.Contains(e, "refused"):
		return "refused"
	case strings.Contains(e, "no such host") || strings.Contains(e, "dns"):
		return "dns"
	default:
		return "other"
	}
}

func (t *Telemetry) handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	t.mu.RLock()
	defer t.mu.RUnlock()

	writeCounterVec(w, "connectcore_strategy_selected_total", t.selectedTotal)
	writeCounterVec(w, "connectcore_strategy_failures_total", t.failuresTotal)
	writeGaugeVec(w, "connectcore_strategy_healthy", t.healthy)
	writeCounterVec(w, "connectcore_frames_total", t.framesTotal)
	writeCounterVec(w, "connectcore_bytes_total", t.bytesTotal)
	writeSummaryAsCountAndSum(w, "connectcore_connect_duration_seconds", t.connectDialCount, t.connectDialSum)
}

func writeCounterVec(w http.ResponseWriter, name string, data map[string]uint64) {
	for _, k := range sortedKeys(data) {
		fmt.Fprintf(w, "%s{%s} %d\n", name, toPromLabels(k), data[k])
	}
}

func writeGaugeVec(w http.ResponseWriter, name string, data map[string]float64) {
	for _, k := range sortedKeysFloat(data) {
		fmt.Fprintf(w, "%s{%s} %.0f\n", name, toPromLabels(k), data[k])
	}
}

func writeSummaryAsCountAndSum(w http.ResponseWriter, name string, counts map[string]uint64, sums map[string]float64) {
	for _, k := range sortedKeys(counts) {
		labels := toPromLabels(k)
		fmt.Fprintf(w, "%s_count{%s} %d\n", name, labels, counts[k])
		fmt.Fprintf(w, "%s_sum{%s} %f\n", name, labels, sums[k])
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysFloat(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toPromLabels(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts[i] = fmt.Sprintf("%s=\"%s\"", kv[0], strings.ReplaceAll(kv[1], "\"", "\\\""))
	}
	return strings.Join(parts, ",")
}
