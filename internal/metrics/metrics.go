package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the Almanac service
type Metrics struct {
	// Scheduling metrics
	SchedulesCreated *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	ItemsReported    *prometheus.CounterVec

	// Optimization metrics
	OptimizationRuns      *prometheus.CounterVec
	OptimizationDuration  *prometheus.HistogramVec
	ItemsUnschedulable    *prometheus.CounterVec
	RecommendationQueries *prometheus.CounterVec

	// Learning metrics
	EventsIngested  *prometheus.CounterVec
	ProfileVersions *prometheus.GaugeVec
}
