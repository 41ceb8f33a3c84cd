package fabric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"digital-twin-fabric/fabric/pkg/cluster"
)

var (
	clusterOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabric_cluster_outcomes_total",
			Help: "Per-cluster provisioning outcomes (created/skipped/failed)",
		},
		[]string{"cluster", "outcome"},
	)

	provisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabric_cluster_provision_duration_seconds",
			Help:    "Wall time spent provisioning one cluster",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"cluster"},
	)

	shapingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabric_shaping_failures_total",
			Help: "Shaping or matrix persistence failures per cluster",
		},
		[]string{"cluster"},
	)
)

func recordResult(res cluster.Result) {
	clusterOutcomes.WithLabelValues(res.Cluster, res.Outcome).Inc()
	provisionDuration.WithLabelValues(res.Cluster).Observe(res.Elapsed.Seconds())
}
