package agent

import (
	"sync/atomic"
	"time"

	"github.com/debugstub/ds2agent/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks session-level operational statistics: packet traffic,
// stop events, command dispatch latency, and inferior memory operations.
type Metrics struct {
	PacketsIn  atomic.Uint64
	PacketsOut atomic.Uint64
	BytesIn    atomic.Uint64
	BytesOut   atomic.Uint64

	Stops      atomic.Uint64
	StopCounts map[string]*atomic.Uint64

	Commands      atomic.Uint64
	CommandErrors atomic.Uint64

	MemoryReads   atomic.Uint64
	MemoryWrites  atomic.Uint64
	MemoryBytes   atomic.Uint64
	MemoryErrors  atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{StopCounts: make(map[string]*atomic.Uint64)}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordPacket records one packet's byte count and direction.
func (m *Metrics) RecordPacket(bytes int, inbound bool) {
	if inbound {
		m.PacketsIn.Add(1)
		m.BytesIn.Add(uint64(bytes))
	} else {
		m.PacketsOut.Add(1)
		m.BytesOut.Add(uint64(bytes))
	}
}

// RecordStop records a stop event by reason (breakpoint, trace, signal,
// exited, killed, interrupted) and its observation latency.
func (m *Metrics) RecordStop(reason string, latency time.Duration) {
	m.Stops.Add(1)
	counter, ok := m.StopCounts[reason]
	if !ok {
		// StopCounts starts empty; a reason's counter is created the
		// first time that reason is recorded.
		counter = &atomic.Uint64{}
		m.StopCounts[reason] = counter
	}
	counter.Add(1)
	m.recordLatency(uint64(latency.Nanoseconds()))
}

// RecordCommand records a dispatched command's latency and outcome.
func (m *Metrics) RecordCommand(name string, latency time.Duration, success bool) {
	m.Commands.Add(1)
	if !success {
		m.CommandErrors.Add(1)
	}
	m.recordLatency(uint64(latency.Nanoseconds()))
}

// RecordMemoryOp records an inferior memory read or write.
func (m *Metrics) RecordMemoryOp(bytes int, write bool, latencyNs uint64, success bool) {
	if write {
		m.MemoryWrites.Add(1)
	} else {
		m.MemoryReads.Add(1)
	}
	if success {
		m.MemoryBytes.Add(uint64(bytes))
	} else {
		m.MemoryErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as stopped, freezing uptime calculations.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	PacketsIn  uint64
	PacketsOut uint64
	BytesIn    uint64
	BytesOut   uint64

	Stops      uint64
	StopCounts map[string]uint64

	Commands      uint64
	CommandErrors uint64

	MemoryReads  uint64
	MemoryWrites uint64
	MemoryBytes  uint64
	MemoryErrors uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		PacketsIn:     m.PacketsIn.Load(),
		PacketsOut:    m.PacketsOut.Load(),
		BytesIn:       m.BytesIn.Load(),
		BytesOut:      m.BytesOut.Load(),
		Stops:         m.Stops.Load(),
		Commands:      m.Commands.Load(),
		CommandErrors: m.CommandErrors.Load(),
		MemoryReads:   m.MemoryReads.Load(),
		MemoryWrites:  m.MemoryWrites.Load(),
		MemoryBytes:   m.MemoryBytes.Load(),
		MemoryErrors:  m.MemoryErrors.Load(),
		StopCounts:    make(map[string]uint64, len(m.StopCounts)),
	}

	for reason, counter := range m.StopCounts {
		snap.StopCounts[reason] = counter.Load()
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, restarting the uptime clock. Useful for tests.
func (m *Metrics) Reset() {
	m.PacketsIn.Store(0)
	m.PacketsOut.Store(0)
	m.BytesIn.Store(0)
	m.BytesOut.Store(0)
	m.Stops.Store(0)
	m.StopCounts = make(map[string]*atomic.Uint64)
	m.Commands.Store(0)
	m.CommandErrors.Store(0)
	m.MemoryReads.Store(0)
	m.MemoryWrites.Store(0)
	m.MemoryBytes.Store(0)
	m.MemoryErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObservePacket(int, bool)                {}
func (NoOpObserver) ObserveStop(string, time.Duration)      {}
func (NoOpObserver) ObserveCommand(string, time.Duration, bool) {}
func (NoOpObserver) ObserveMemoryOp(int, bool, uint64, bool) {}

// MetricsObserver implements interfaces.Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObservePacket(bytes int, inbound bool) {
	o.metrics.RecordPacket(bytes, inbound)
}

func (o *MetricsObserver) ObserveStop(reason string, latency time.Duration) {
	o.metrics.RecordStop(reason, latency)
}

func (o *MetricsObserver) ObserveCommand(name string, latency time.Duration, success bool) {
	o.metrics.RecordCommand(name, latency, success)
}

func (o *MetricsObserver) ObserveMemoryOp(bytes int, write bool, latencyNs uint64, success bool) {
	o.metrics.RecordMemoryOp(bytes, write, latencyNs, success)
}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
