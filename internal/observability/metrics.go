package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "safetrip", Name: "alerts_ingested_total", Help: "Hazard alerts ingested, by kind"},
		[]string{"kind"},
	)
	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{Namespace: "safetrip", Name: "alerts_triggered_total", Help: "Alerts transitioned to triggered"})
	AlertsCollapsed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "safetrip", Name: "alerts_collapsed_total", Help: "Readings collapsed onto an existing alert"})

	EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "safetrip",
		Name:      "proximity_evaluation_seconds",
		Help:      "evaluateProximity latency distribution",
		Buckets:   prometheus.DefBuckets,
	})

	ConnectedUsers    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "safetrip", Name: "connected_users", Help: "Currently connected websocket users"})
	PresenceEvictions = promauto.NewCounter(prometheus.CounterOpts{Namespace: "safetrip", Name: "presence_evictions_total", Help: "Presence records removed by the staleness sweep"})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "safetrip", Name: "events_published_total", Help: "Events fanned out over subscriber channels"},
		[]string{"event"},
	)
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "safetrip", Name: "external_fetch_failures_total", Help: "Failed external weather/traffic fetches"},
		[]string{"source"},
	)
)
