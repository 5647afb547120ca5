package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fairguard_classifier_attempts_total",
	Help: "Number of classifier provider calls, by provider and result",
}, []string{"provider", "result"})

var classifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fairguard_classifier_duration_seconds",
	Help:    "Duration of classifier provider calls",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
}, []string{"provider"})
