package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service
type Metrics struct {
	EstimatesTotal prometheus.Counter
	ComparesTotal  prometheus.Counter
	EstimateErrors prometheus.Counter
	CacheHits      prometheus.Counter
	DedupHits      prometheus.Counter
	WALErrors      prometheus.Counter

	EstimatesByWeighting *prometheus.CounterVec
	EstimateDuration     *prometheus.HistogramVec
	UnitsPerEstimate     prometheus.Histogram
}

// New creates and registers all metrics
func New() *Metrics {
	return &Metrics{
		EstimatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratekit_estimates_total",
			Help: "Total number of RATE estimate requests received",
		}),
		ComparesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratekit_compares_total",
			Help: "Total number of paired-comparison requests received",
		}),
		EstimateErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratekit_estimate_errors",
			Help: "Number of estimate requests rejected with an error",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratekit_cache_hits",
			Help: "Number of estimates served from the in-process LRU cache",
		}),
		DedupHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratekit_dedup_hits",
			Help: "Number of estimates served from the results store",
		}),
		WALErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratekit_wal_errors",
			Help: "Number of WAL write errors",
		}),

		EstimatesByWeighting: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratekit_estimates_by_weighting",
				Help: "Estimate requests per weighting scheme",
			},
			[]string{"weighting"},
		),
		EstimateDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratekit_estimate_duration_seconds",
				Help:    "Wall time per RATE computation",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"weighting"},
		),
		UnitsPerEstimate: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratekit_units_per_estimate",
			Help:    "Number of test-set units per estimate request",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
	}
}
