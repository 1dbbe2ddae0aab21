package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	calls *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// Ledger returns the metrics registry tracking ledger node interactions.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gridsettle",
				Subsystem: "ledger",
				Name:      "rpc_calls_total",
				Help:      "Count of ledger RPC calls segmented by method and result.",
			}, []string{"method", "result"}),
		}
		prometheus.MustRegister(ledgerRegistry.calls)
	})
	return ledgerRegistry
}

// RecordCall increments the RPC call counter for the supplied method.
func (m *ledgerMetrics) RecordCall(method string, err error) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(method)
	if normalized == "" {
		normalized = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.calls.WithLabelValues(normalized, result).Inc()
}
