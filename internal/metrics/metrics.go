// Package metrics provides operational metrics tracking for the stuckbar tool server.
// Counters cover sessions, tool calls and the process operations they trigger.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operational metrics for the tool server.
// All fields are thread-safe for concurrent access.
type Metrics struct {
	// Session metrics
	SessionsOpened atomic.Int64
	SessionsReady  atomic.Int64
	SessionsClosed atomic.Int64

	// Tool call metrics
	ToolCalls      atomic.Int64
	ToolSuccesses  atomic.Int64
	ToolFailures   atomic.Int64
	ToolTimeouts   atomic.Int64
	ToolDegraded   atomic.Int64
	ProtocolErrors atomic.Int64

	// Process operation metrics
	Kills    atomic.Int64
	Starts   atomic.Int64
	Restarts atomic.Int64

	// Timing metrics
	startTime     time.Time
	lastOperation atomic.Value // time.Time
	avgLatencyNs  atomic.Int64
	latencyCount  atomic.Int64

	mu sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	Uptime         string    `json:"uptime"`
	SessionsOpened int64     `json:"sessions_opened"`
	SessionsReady  int64     `json:"sessions_ready"`
	SessionsClosed int64     `json:"sessions_closed"`
	ToolCalls      int64     `json:"tool_calls"`
	ToolSuccesses  int64     `json:"tool_successes"`
	ToolFailures   int64     `json:"tool_failures"`
	ToolTimeouts   int64     `json:"tool_timeouts"`
	ToolDegraded   int64     `json:"tool_degraded"`
	ProtocolErrors int64     `json:"protocol_errors"`
	Kills          int64     `json:"kills"`
	Starts         int64     `json:"starts"`
	Restarts       int64     `json:"restarts"`
	AvgLatencyMs   float64   `json:"avg_latency_ms"`
	LastOperation  string    `json:"last_operation,omitempty"`
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
	}
	return m
}

// RecordLatency records a single latency measurement and updates the running average.
func (m *Metrics) RecordLatency(d time.Duration) {
	ns := d.Nanoseconds()
	count := m.latencyCount.Add(1)

	// Running average: newAvg = oldAvg + (newValue - oldAvg) / count
	// Use a CAS loop for atomic update of the average.
	for {
		oldAvg := m.avgLatencyNs.Load()
		newAvg := oldAvg + (ns-oldAvg)/count
		if m.avgLatencyNs.CompareAndSwap(oldAvg, newAvg) {
			break
		}
		// Reload count in case it changed.
		count = m.latencyCount.Load()
		if count == 0 {
			count = 1
		}
	}
}

// RecordOperation counts one completed process operation by name
// ("kill", "start", "restart") and stamps the last-operation time.
// Unknown names only update the timestamp.
func (m *Metrics) RecordOperation(op string) {
	switch op {
	case "kill":
		m.Kills.Add(1)
	case "start":
		m.Starts.Add(1)
	case "restart":
		m.Restarts.Add(1)
	}
	m.lastOperation.Store(time.Now())
}

// Uptime returns the duration since the metrics instance was created.
func (m *Metrics) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// AvgLatency returns the average recorded latency.
// Returns 0 if no latency has been recorded.
func (m *Metrics) AvgLatency() time.Duration {
	ns := m.avgLatencyNs.Load()
	return time.Duration(ns)
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Timestamp:      time.Now(),
		Uptime:         m.Uptime().Round(time.Millisecond).String(),
		SessionsOpened: m.SessionsOpened.Load(),
		SessionsReady:  m.SessionsReady.Load(),
		SessionsClosed: m.SessionsClosed.Load(),
		ToolCalls:      m.ToolCalls.Load(),
		ToolSuccesses:  m.ToolSuccesses.Load(),
		ToolFailures:   m.ToolFailures.Load(),
		ToolTimeouts:   m.ToolTimeouts.Load(),
		ToolDegraded:   m.ToolDegraded.Load(),
		ProtocolErrors: m.ProtocolErrors.Load(),
		Kills:          m.Kills.Load(),
		Starts:         m.Starts.Load(),
		Restarts:       m.Restarts.Load(),
		AvgLatencyMs:   float64(m.avgLatencyNs.Load()) / float64(time.Millisecond),
	}

	if v := m.lastOperation.Load(); v != nil {
		if t, ok := v.(time.Time); ok && !t.IsZero() {
			snap.LastOperation = t.Format(time.RFC3339)
		}
	}

	return snap
}

// ToJSON returns a JSON-encoded representation of the current metrics snapshot.
func (m *Metrics) ToJSON() ([]byte, error) {
	snap := m.Snapshot()
	return json.MarshalIndent(snap, "", "  ")
}
