package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesTotal counts classified samples by risk level.
	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseguard_samples_total",
		Help: "Classified sensor samples by risk level",
	}, []string{"risk"})

	// FetchErrorsTotal counts failed polls by reason (network, malformed).
	FetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseguard_fetch_errors_total",
		Help: "Sensor polls that produced no sample, by reason",
	}, []string{"reason"})

	// HeartRate is the most recent sampled heart rate.
	HeartRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulseguard_heart_rate_bpm",
		Help: "Most recent heart rate in beats per minute",
	})

	// InterventionsTotal counts resolved interventions by result.
	InterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseguard_interventions_total",
		Help: "Resolved interventions by result (completed, failed, timeout)",
	}, []string{"result"})

	// BreachesSuppressedTotal counts breaches seen while an intervention was in flight.
	BreachesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulseguard_breaches_suppressed_total",
		Help: "Breaches that did not trigger because an intervention was already in flight",
	})

	// InterventionDuration tracks wall-clock time of intervention calls.
	InterventionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulseguard_intervention_duration_seconds",
		Help:    "Intervention call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17m
	})

	// ToolCallsTotal counts tool invocations by namespace and result.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseguard_tool_calls_total",
		Help: "Tool calls dispatched to provider sessions by namespace and result",
	}, []string{"namespace", "result"})

	// BridgeInflight is the number of tasks currently running on the loop bridge.
	BridgeInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulseguard_bridge_inflight_tasks",
		Help: "Tasks currently executing on the loop bridge",
	})

	// ProviderUp reports 1 for a live provider session and 0 for a dead one.
	ProviderUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulseguard_provider_up",
		Help: "Tool-provider session liveness by namespace",
	}, []string{"namespace"})

	// SessionsTotal counts interactive sessions by final status and mode.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseguard_sessions_total",
		Help: "Interactive intervention sessions by status and whether counseling started",
	}, []string{"status", "counseling"})
)
