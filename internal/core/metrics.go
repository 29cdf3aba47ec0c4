package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "promptrank"

type serviceMetrics struct {
	resolutions    *prometheus.CounterVec
	comparisons    *prometheus.CounterVec
	pairSelections *prometheus.CounterVec
	jobResults     *prometheus.CounterVec
	jobDuration    prometheus.Histogram
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	factory := promauto.With(reg)
	return &serviceMetrics{
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "resolutions_total",
			Help:      "Lifecycle resolutions by operation and outcome",
		}, []string{"operation", "outcome"}),
		comparisons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "comparisons_total",
			Help:      "Rating updates by outcome",
		}, []string{"outcome"}),
		pairSelections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pair_selections_total",
			Help:      "Pair selection attempts by result",
		}, []string{"result"}),
		jobResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "job_results_total",
			Help:      "Finished render jobs by final state",
		}, []string{"state"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from submit to terminal task state",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		}),
	}
}
