package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var networkRemovals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fabric_network_removals_total",
		Help: "Networks removed to reclaim a cluster subnet, by reason",
	},
	[]string{"reason"},
)
