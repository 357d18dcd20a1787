// Package monitoring tracks per-tool call volume and latency. Samples are
// kept in a bounded ring per tool; snapshots derive percentiles and the
// fast/acceptable/slow breakdown from whatever the ring currently holds.
// Calls crossing a tool's alert threshold fan out to registered alert
// handlers with the request id attached.
package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"openapi-mcp/internal/config"
	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/logging"
)

// Defaults applied when the configuration leaves a field zero.
const (
	DefaultFastThresholdMS       = 200
	DefaultAcceptableThresholdMS = 500
	DefaultSlowThresholdMS       = 2000
	DefaultWindowSize            = 512
)

// Alert describes one threshold crossing.
type Alert struct {
	Tool        string    `json:"tool"`
	TookMS      int64     `json:"took_ms"`
	ThresholdMS int       `json:"threshold_ms"`
	RequestID   string    `json:"request_id,omitempty"`
	At          time.Time `json:"at"`
}

// AlertHandler receives threshold alerts. Handlers must not block.
type AlertHandler func(Alert)

// Monitor collects tool-call statistics.
type Monitor struct {
	cfg    config.MonitoringConfig
	logger logging.Logger

	mu         sync.Mutex
	tools      map[string]*toolStats
	thresholds map[string]int
	handlers   []AlertHandler
	startedAt  time.Time
}

// toolStats is the mutable per-tool state; samples is a ring, next the
// slot the next sample lands in.
type toolStats struct {
	calls      uint64
	errors     uint64
	errorKinds map[string]uint64
	fast       uint64
	acceptable uint64
	slow       uint64
	samples    []time.Duration
	next       int
	filled     bool
	lastCall   time.Time
}

// New creates a monitor. A nil logger discards slow-call warnings.
func New(cfg config.MonitoringConfig, logger logging.Logger) *Monitor {
	if cfg.FastThresholdMS <= 0 {
		cfg.FastThresholdMS = DefaultFastThresholdMS
	}
	if cfg.AcceptableThresholdMS <= 0 {
		cfg.AcceptableThresholdMS = DefaultAcceptableThresholdMS
	}
	if cfg.SlowThresholdMS <= 0 {
		cfg.SlowThresholdMS = DefaultSlowThresholdMS
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Monitor{
		cfg:        cfg,
		logger:     logger.WithComponent("monitoring"),
		tools:      make(map[string]*toolStats),
		thresholds: make(map[string]int),
		startedAt:  time.Now(),
	}
}

// Resolved threshold accessors.
func (m *Monitor) FastMS() int       { return m.cfg.FastThresholdMS }
func (m *Monitor) AcceptableMS() int { return m.cfg.AcceptableThresholdMS }
func (m *Monitor) SlowMS() int       { return m.cfg.SlowThresholdMS }

// SetThreshold sets the alert threshold for one tool. Tools without one
// alert at the slow threshold.
func (m *Monitor) SetThreshold(tool string, ms int) {
	if ms <= 0 {
		return
	}
	m.mu.Lock()
	m.thresholds[tool] = ms
	m.mu.Unlock()
}

// AddAlertHandler registers a sink for threshold alerts. Register before
// the first Observe call.
func (m *Monitor) AddAlertHandler(h AlertHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// Observe records one tool call. Calls exceeding the tool's alert
// threshold are logged with the request id carried by ctx and fanned out
// to the registered alert handlers.
func (m *Monitor) Observe(ctx context.Context, tool string, took time.Duration, err error) {
	if !m.cfg.Enabled {
		return
	}

	m.mu.Lock()
	st := m.tools[tool]
	if st == nil {
		st = &toolStats{samples: make([]time.Duration, m.cfg.WindowSize)}
		m.tools[tool] = st
	}
	st.calls++
	if err != nil {
		st.errors++
		if st.errorKinds == nil {
			st.errorKinds = make(map[string]uint64)
		}
		st.errorKinds[string(apperrors.FromError(err).Code)]++
	}
	switch ms := took.Milliseconds(); {
	case ms < int64(m.cfg.FastThresholdMS):
		st.fast++
	case ms < int64(m.cfg.AcceptableThresholdMS):
		st.acceptable++
	default:
		st.slow++
	}
	st.samples[st.next] = took
	st.next++
	if st.next == len(st.samples) {
		st.next = 0
		st.filled = true
	}
	st.lastCall = time.Now()
	threshold := m.thresholds[tool]
	if threshold == 0 {
		threshold = m.cfg.SlowThresholdMS
	}
	handlers := m.handlers
	m.mu.Unlock()

	if took.Milliseconds() < int64(threshold) {
		return
	}
	requestID, _ := ctx.Value(logging.RequestIDKey).(string)
	m.logger.WarnContext(ctx, "slow tool call",
		"tool", tool,
		"took_ms", took.Milliseconds(),
		"threshold_ms", threshold)
	alert := Alert{
		Tool:        tool,
		TookMS:      took.Milliseconds(),
		ThresholdMS: threshold,
		RequestID:   requestID,
		At:          time.Now().UTC(),
	}
	for _, h := range handlers {
		h(alert)
	}
}

// ToolSnapshot is the derived view of one tool's statistics.
type ToolSnapshot struct {
	Calls      uint64            `json:"calls"`
	Errors     uint64            `json:"errors"`
	ErrorRate  float64           `json:"error_rate"`
	ErrorKinds map[string]uint64 `json:"error_kinds,omitempty"`
	Fast       uint64            `json:"fast"`
	Acceptable uint64            `json:"acceptable"`
	Slow       uint64            `json:"slow"`
	P50MS      float64           `json:"p50_ms"`
	P95MS      float64           `json:"p95_ms"`
	P99MS      float64           `json:"p99_ms"`
	LastCall   string            `json:"last_call,omitempty"`
}

// Snapshot is a point-in-time view across all tools.
type Snapshot struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	TotalCalls    uint64                  `json:"total_calls"`
	TotalErrors   uint64                  `json:"total_errors"`
	Tools         map[string]ToolSnapshot `json:"tools"`
}

// Snapshot derives the current statistics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(m.startedAt).Seconds(),
		Tools:         make(map[string]ToolSnapshot, len(m.tools)),
	}
	for tool, st := range m.tools {
		ts := ToolSnapshot{
			Calls:      st.calls,
			Errors:     st.errors,
			Fast:       st.fast,
			Acceptable: st.acceptable,
			Slow:       st.slow,
		}
		if st.calls > 0 {
			ts.ErrorRate = float64(st.errors) / float64(st.calls)
		}
		if len(st.errorKinds) > 0 {
			ts.ErrorKinds = make(map[string]uint64, len(st.errorKinds))
			for kind, count := range st.errorKinds {
				ts.ErrorKinds[kind] = count
			}
		}
		if !st.lastCall.IsZero() {
			ts.LastCall = st.lastCall.UTC().Format(time.RFC3339)
		}
		window := st.window()
		if len(window) > 0 {
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			ts.P50MS = percentile(window, 50)
			ts.P95MS = percentile(window, 95)
			ts.P99MS = percentile(window, 99)
		}
		snap.Tools[tool] = ts
		snap.TotalCalls += st.calls
		snap.TotalErrors += st.errors
	}
	return snap
}

// window copies the populated part of the sample ring.
func (st *toolStats) window() []time.Duration {
	n := st.next
	if st.filled {
		n = len(st.samples)
	}
	out := make([]time.Duration, n)
	copy(out, st.samples[:n])
	return out
}

// percentile uses the nearest-rank method over a sorted window.
func percentile(sorted []time.Duration, p int) float64 {
	rank := (len(sorted)*p + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return float64(sorted[rank-1].Microseconds()) / 1000
}
