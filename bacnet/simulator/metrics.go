package simulator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a thread-safe counter
type Counter struct {
	value int64
}

// Add adds a delta to the counter
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	c.Add(1)
}

// Value returns the current counter value
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Gauge is a thread-safe gauge that can go up and down
type Gauge struct {
	value int64
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Value returns the current gauge value
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// LatencyHistogram tracks how long the engines spend on one inbound frame
type LatencyHistogram struct {
	mu      sync.RWMutex
	count   int64
	sum     int64 // nanoseconds
	min     int64
	max     int64
	buckets []int64
}

// latencyBounds are the upper bounds of all buckets but the last
var latencyBounds = []time.Duration{
	10 * time.Microsecond,
	50 * time.Microsecond,
	100 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		min:     -1, // no measurements yet
		buckets: make([]int64, len(latencyBounds)+1),
	}
}

// Record records a latency measurement
func (h *LatencyHistogram) Record(d time.Duration) {
	ns := d.Nanoseconds()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += ns
	if h.min < 0 || ns < h.min {
		h.min = ns
	}
	if ns > h.max {
		h.max = ns
	}

	i := 0
	for i < len(latencyBounds) && d >= latencyBounds[i] {
		i++
	}
	h.buckets[i]++
}

// Stats returns histogram statistics
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := LatencyStats{
		Count:   h.count,
		Buckets: make([]int64, len(h.buckets)),
	}
	copy(stats.Buckets, h.buckets)

	if h.count > 0 {
		stats.Min = time.Duration(h.min)
		stats.Max = time.Duration(h.max)
		stats.Avg = time.Duration(h.sum / h.count)
	}
	return stats
}

// LatencyStats contains latency statistics
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets []int64
}

// Metrics holds the traffic counters of a simulation, summed over devices
type Metrics struct {
	// Frame metrics
	FramesReceived    Counter
	FramesSent        Counter
	SendFailures      Counter
	MalformedFrames   Counter
	UnsupportedFrames Counter

	// Discovery metrics
	WhoIsSent     Counter
	WhoIsReceived Counter
	IAmSent       Counter
	IAmReceived   Counter

	// Bytes
	BytesSent     Counter
	BytesReceived Counter

	// Latency
	HandleLatency *LatencyHistogram

	// Current state
	ActiveLoops Gauge

	// Timestamps
	startTime    time.Time
	lastActivity atomic.Int64
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		HandleLatency: NewLatencyHistogram(),
		startTime:     time.Now(),
	}
}

// RecordActivity records the last activity time
func (m *Metrics) RecordActivity() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last activity time
func (m *Metrics) LastActivity() time.Time {
	ns := m.lastActivity.Load()
	if ns == 0 {
		return m.startTime
	}
	return time.Unix(0, ns)
}

// Uptime returns the time since metrics started
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime: m.Uptime(),

		FramesReceived:    m.FramesReceived.Value(),
		FramesSent:        m.FramesSent.Value(),
		SendFailures:      m.SendFailures.Value(),
		MalformedFrames:   m.MalformedFrames.Value(),
		UnsupportedFrames: m.UnsupportedFrames.Value(),

		WhoIsSent:     m.WhoIsSent.Value(),
		WhoIsReceived: m.WhoIsReceived.Value(),
		IAmSent:       m.IAmSent.Value(),
		IAmReceived:   m.IAmReceived.Value(),

		BytesSent:     m.BytesSent.Value(),
		BytesReceived: m.BytesReceived.Value(),

		LatencyStats: m.HandleLatency.Stats(),

		ActiveLoops: m.ActiveLoops.Value(),

		LastActivity: m.LastActivity(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Uptime time.Duration `json:"uptime" yaml:"uptime"`

	FramesReceived    int64 `json:"frames_received" yaml:"frames_received"`
	FramesSent        int64 `json:"frames_sent" yaml:"frames_sent"`
	SendFailures      int64 `json:"send_failures" yaml:"send_failures"`
	MalformedFrames   int64 `json:"malformed_frames" yaml:"malformed_frames"`
	UnsupportedFrames int64 `json:"unsupported_frames" yaml:"unsupported_frames"`

	WhoIsSent     int64 `json:"whois_sent" yaml:"whois_sent"`
	WhoIsReceived int64 `json:"whois_received" yaml:"whois_received"`
	IAmSent       int64 `json:"iam_sent" yaml:"iam_sent"`
	IAmReceived   int64 `json:"iam_received" yaml:"iam_received"`

	BytesSent     int64 `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received" yaml:"bytes_received"`

	LatencyStats LatencyStats `json:"latency" yaml:"latency"`

	ActiveLoops int64 `json:"active_loops" yaml:"active_loops"`

	LastActivity time.Time `json:"last_activity" yaml:"last_activity"`
}
