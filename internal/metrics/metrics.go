package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dora_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "route", "status"},
	)

	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dora_chat_messages_total",
			Help: "Total number of chat messages answered, by reply source and mode",
		},
		[]string{"source", "mode"},
	)

	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dora_intent_classifications_total",
			Help: "Total number of classified messages by mode",
		},
		[]string{"mode"},
	)

	LocationSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dora_location_searches_total",
			Help: "Total number of location searches by matching layer and cache result",
		},
		[]string{"layer", "cache"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dora_completion_duration_seconds",
			Help:    "Duration of text completion calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"provider"},
	)

	CompletionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dora_completion_failures_total",
			Help: "Total number of failed text completion calls",
		},
		[]string{"provider", "kind"},
	)

	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dora_registrations_total",
			Help: "Total number of finished registration dialogues by outcome",
		},
		[]string{"outcome"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dora_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dora_active_sessions",
			Help: "Number of chat sessions held by the session store",
		},
	)
)
