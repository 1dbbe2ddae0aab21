package settled

import "gridsettle/observability"

// Metrics exposes Prometheus collectors for settled instrumentation.
type Metrics = observability.SettlementMetrics

// NewMetrics returns the lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Settlement() }
