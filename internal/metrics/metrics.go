package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservo",
			Name:      "upstream_requests_total",
			Help:      "Count of backend requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reservo",
			Name:      "upstream_request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservo",
			Name:      "cache_lookups_total",
			Help:      "Count of cache lookups by kind and result.",
		},
		[]string{"kind", "result"},
	)

	staleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservo",
			Name:      "stale_responses_total",
			Help:      "Count of responses discarded because a newer selection superseded them.",
		},
		[]string{"view"},
	)

	dayStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservo",
			Name:      "calendar_days_total",
			Help:      "Count of classified calendar days by status.",
		},
		[]string{"status"},
	)

	configFallback = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservo",
			Name:      "config_fallback_total",
			Help:      "Count of sessions running on the default schedule.",
		},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservo",
			Name:      "submissions_total",
			Help:      "Count of booking submissions by mode and result.",
		},
		[]string{"mode", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			upstreamRequests,
			upstreamDuration,
			cacheLookups,
			staleResponses,
			dayStatus,
			configFallback,
			submissions,
		)
	})
}

func ObserveUpstream(endpoint, outcome string, elapsed time.Duration) {
	upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	upstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func IncCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(kind, result).Inc()
}

func IncStale(view string) {
	staleResponses.WithLabelValues(view).Inc()
}

func IncDayStatus(status string) {
	dayStatus.WithLabelValues(status).Inc()
}

func IncConfigFallback() {
	configFallback.Inc()
}

func IncSubmission(mode, result string) {
	submissions.WithLabelValues(mode, result).Inc()
}
