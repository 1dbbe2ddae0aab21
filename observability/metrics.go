package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// SettlementMetrics wraps collectors tracking settlement engine health.
type SettlementMetrics struct {
	runLatency    prometheus.Histogram
	groupLatency  prometheus.Histogram
	claims        *prometheus.CounterVec
	groups        *prometheus.CounterVec
	inFlight      prometheus.Gauge
	errors        *prometheus.CounterVec
	mintedUnits   prometheus.Counter
	estimatedFees prometheus.Counter
}

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "run_duration_seconds",
				Help:      "Latency distribution for whole settlement runs.",
				Buckets:   prometheus.DefBuckets,
			}),
			groupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "group_duration_seconds",
				Help:      "Latency distribution for individual transaction group pipelines.",
				Buckets:   prometheus.DefBuckets,
			}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "claims_total",
				Help:      "Count of processed mint claims segmented by terminal status.",
			}, []string{"status"}),
			groups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "groups_total",
				Help:      "Count of dispatched transaction groups segmented by result.",
			}, []string{"result"}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "groups_in_flight",
				Help:      "Number of transaction group pipelines currently running.",
			}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of settlement failures segmented by reason.",
			}, []string{"reason"}),
			mintedUnits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "minted_units_total",
				Help:      "Token base units minted across confirmed transaction groups.",
			}),
			estimatedFees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gridsettle",
				Subsystem: "engine",
				Name:      "estimated_fee_units_total",
				Help:      "Fee units predicted by pre-run estimates.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.runLatency,
			settlementRegistry.groupLatency,
			settlementRegistry.claims,
			settlementRegistry.groups,
			settlementRegistry.inFlight,
			settlementRegistry.errors,
			settlementRegistry.mintedUnits,
			settlementRegistry.estimatedFees,
		)
	})
	return settlementRegistry
}

// ObserveRun records the duration of a completed settlement run.
func (m *SettlementMetrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runLatency.Observe(d.Seconds())
}

// ObserveGroup records the duration of one group pipeline and its result.
func (m *SettlementMetrics) ObserveGroup(result string, d time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.groupLatency.Observe(d.Seconds())
	m.groups.WithLabelValues(result).Inc()
}

// RecordClaims adds processed claims for the supplied terminal status.
func (m *SettlementMetrics) RecordClaims(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.claims.WithLabelValues(status).Add(float64(n))
}

// RecordError counts a settlement failure by reason.
func (m *SettlementMetrics) RecordError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.errors.WithLabelValues(reason).Inc()
}

// RecordMinted accumulates confirmed minted base units.
func (m *SettlementMetrics) RecordMinted(units uint64) {
	if m == nil || units == 0 {
		return
	}
	m.mintedUnits.Add(float64(units))
}

// RecordEstimate accumulates predicted fee units.
func (m *SettlementMetrics) RecordEstimate(feeUnits uint64) {
	if m == nil || feeUnits == 0 {
		return
	}
	m.estimatedFees.Add(float64(feeUnits))
}

// GroupStarted marks one group pipeline as in flight.
func (m *SettlementMetrics) GroupStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// GroupFinished marks one group pipeline as done.
func (m *SettlementMetrics) GroupFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
