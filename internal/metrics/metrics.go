package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "najir",
		Name:      "classifications_total",
		Help:      "Bot message classifications by outcome (case_search, text, cached).",
	}, []string{"outcome"})

	Toggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "najir",
		Name:      "selection_toggles_total",
		Help:      "Case selection toggles by outcome.",
	}, []string{"outcome"})

	AgentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "najir",
		Name:      "agent_requests_total",
		Help:      "Agent requests by route and result.",
	}, []string{"route", "result"})

	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "najir",
		Name:      "search_duration_seconds",
		Help:      "Latency of search backend calls by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)
