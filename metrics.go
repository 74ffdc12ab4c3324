package gatehouse

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricAdmitAllowed counts admission checks that passed.
	MetricAdmitAllowed MetricID = iota
	// MetricAdmitRejected counts admission checks that were denied.
	MetricAdmitRejected
	// MetricAdmitForgiven counts success-exempt decrements (Forgive calls).
	MetricAdmitForgiven
	// MetricFallbackActivated counts transitions to the in-process store.
	MetricFallbackActivated
	// MetricFallbackRecovered counts transitions back to the shared store.
	MetricFallbackRecovered
	// MetricTokenIssued counts issued token pairs.
	MetricTokenIssued
	// MetricTokenVerifyFailure counts failed access-token verifications.
	MetricTokenVerifyFailure
	// MetricTokenRevoked counts revoke operations.
	MetricTokenRevoked
	// MetricRefreshRotated counts successful refresh rotations.
	MetricRefreshRotated
	// MetricRefreshReplay counts refresh attempts with a consumed or
	// unknown token.
	MetricRefreshReplay
	// MetricCodeRequested counts one-time-code issuances.
	MetricCodeRequested
	// MetricCodeVerified counts successful one-time-code verifications.
	MetricCodeVerified
	// MetricCodeMismatch counts wrong-code submissions.
	MetricCodeMismatch
	// MetricCodeExhausted counts codes invalidated by the attempt cap.
	MetricCodeExhausted
	// MetricCsrfIssued counts issued CSRF tokens.
	MetricCsrfIssued
	// MetricCsrfConsumed counts successfully consumed CSRF tokens.
	MetricCsrfConsumed
	// MetricCsrfRejected counts rejected CSRF consumptions.
	MetricCsrfRejected
	// MetricAdmitLatency is the admission latency histogram.
	MetricAdmitLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free counter table sized at compile time. Counters are
// padded to a cache line each to avoid false sharing between hot paths.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAdmitLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAdmitLatency].buckets[i])
		}
		s.Histograms[MetricAdmitLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
