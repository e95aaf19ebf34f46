package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics keeps hot-path counters in atomics.
// Registry exposes them to Prometheus through func collectors.
type Metrics struct {
	// Counters
	deltasApplied   atomic.Uint64
	levelsTouched   atomic.Uint64
	messagesIgnored atomic.Uint64
	malformedFrames atomic.Uint64
	disconnects     atomic.Uint64
	errorsTotal     atomic.Uint64

	// Snapshot latency
	snapshotSumNs atomic.Int64
	snapshotCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	sessionStatus     atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordDelta records one applied book-delta batch.
func (m *Metrics) RecordDelta(levels int) {
	m.deltasApplied.Add(1)
	m.levelsTouched.Add(uint64(levels))
}

// RecordIgnored records a stream message the reconciler did not consume.
func (m *Metrics) RecordIgnored() {
	m.messagesIgnored.Add(1)
}

// RecordMalformed records a frame dropped at the transport edge.
func (m *Metrics) RecordMalformed() {
	m.malformedFrames.Add(1)
}

// RecordDisconnect records a transport drop.
func (m *Metrics) RecordDisconnect() {
	m.disconnects.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordSnapshot records a snapshot fetch latency.
func (m *Metrics) RecordSnapshot(latency time.Duration) {
	m.snapshotSumNs.Add(latency.Nanoseconds())
	m.snapshotCount.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetSessionStatus stores the numeric session status.
func (m *Metrics) SetSessionStatus(status int) {
	m.sessionStatus.Store(int32(status))
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	DeltasApplied     uint64
	LevelsTouched     uint64
	MessagesIgnored   uint64
	MalformedFrames   uint64
	Disconnects       uint64
	ErrorsTotal       uint64
	Snapshots         uint64
	AvgSnapshotNs     int64
	ActiveConnections int32
	SessionStatus     int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avg int64
	count := m.snapshotCount.Load()
	if count > 0 {
		avg = m.snapshotSumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		DeltasApplied:     m.deltasApplied.Load(),
		LevelsTouched:     m.levelsTouched.Load(),
		MessagesIgnored:   m.messagesIgnored.Load(),
		MalformedFrames:   m.malformedFrames.Load(),
		Disconnects:       m.disconnects.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		Snapshots:         count,
		AvgSnapshotNs:     avg,
		ActiveConnections: m.activeConnections.Load(),
		SessionStatus:     m.sessionStatus.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.deltasApplied.Store(0)
	m.levelsTouched.Store(0)
	m.messagesIgnored.Store(0)
	m.malformedFrames.Store(0)
	m.disconnects.Store(0)
	m.errorsTotal.Store(0)
	m.snapshotSumNs.Store(0)
	m.snapshotCount.Store(0)
	m.activeConnections.Store(0)
	m.sessionStatus.Store(0)
}

// Registry builds a Prometheus registry reading from m, plus the Go runtime collector.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		counterFunc("orderbook_deltas_applied_total", "Book-delta batches applied", func() uint64 { return m.deltasApplied.Load() }),
		counterFunc("orderbook_levels_touched_total", "Price levels touched by deltas", func() uint64 { return m.levelsTouched.Load() }),
		counterFunc("orderbook_messages_ignored_total", "Stream messages not consumed by the reconciler", func() uint64 { return m.messagesIgnored.Load() }),
		counterFunc("orderbook_malformed_frames_total", "Frames dropped at the transport edge", func() uint64 { return m.malformedFrames.Load() }),
		counterFunc("orderbook_disconnects_total", "Stream transport drops", func() uint64 { return m.disconnects.Load() }),
		counterFunc("orderbook_errors_total", "Session errors", func() uint64 { return m.errorsTotal.Load() }),
		counterFunc("orderbook_snapshots_total", "Snapshot fetches", func() uint64 { return m.snapshotCount.Load() }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "orderbook_snapshot_latency_avg_seconds",
			Help: "Average snapshot fetch latency",
		}, func() float64 {
			return time.Duration(m.Snapshot().AvgSnapshotNs).Seconds()
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "orderbook_active_connections",
			Help: "Open stream connections",
		}, func() float64 { return float64(m.activeConnections.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "orderbook_session_status",
			Help: "0 idle, 1 loading, 2 active, 3 disconnected, 4 error",
		}, func() float64 { return float64(m.sessionStatus.Load()) }),
	)
	return reg
}

func counterFunc(name, help string, fn func() uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
		return float64(fn())
	})
}
