package jsonschema

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonschema",
		Name:      "cache_requests_total",
		Help:      "Schema cache lookups by cache (unresolved, resolved) and result (hit, miss).",
	}, []string{"cache", "result"})

	loads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonschema",
		Name:      "loads_total",
		Help:      "Schema document fetches by result.",
	}, []string{"result"})

	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jsonschema",
		Name:      "load_duration_seconds",
		Help:      "Time spent fetching schema documents.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jsonschema",
		Name:      "resolve_duration_seconds",
		Help:      "Time spent resolving $ref in a schema, including referenced loads.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jsonschema",
		Name:      "invalidations_total",
		Help:      "Resource changes that dropped at least one cached schema.",
	})
)
