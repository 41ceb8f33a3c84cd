package constants

import "time"

// This file holds fabric-wide names and bounds shared across packages.

const (
	// NetworkPrefix is prepended to a cluster name to form its Docker
	// network name (e.g. cluster "lab" -> network "dt-lab").
	NetworkPrefix = "dt-"

	// NetworkOwnerLabel marks Docker networks created by the fabric so that
	// external networks are never mistaken for ours in diagnostics. Conflict
	// cleanup intentionally ignores this label: any network claiming one of
	// our subnets is removed, owned or not.
	NetworkOwnerLabel = "fabric.dt/owned"

	// KubeSystemNamespace hosts the shaping agent and the latency matrix.
	KubeSystemNamespace = "kube-system"

	// ShaperDaemonSet is the cluster-resident netem shaping agent.
	ShaperDaemonSet = "netem-shaper"
	// ShaperConfigMap carries the uniform delay/loss parameters.
	ShaperConfigMap = "netem-shaper-config"
	// MatrixConfigMap carries the declarative pairwise latency matrix.
	MatrixConfigMap = "latency-matrix"
	// MatrixFileKey is the ConfigMap data key holding the YAML document.
	MatrixFileKey = "latency-matrix.yaml"
)

const (
	// CreateTimeout bounds one cluster creation end to end.
	CreateTimeout = 600 * time.Second
	// ReadyTimeout bounds the all-nodes-ready wait. Expiry is non-fatal.
	ReadyTimeout = 180 * time.Second
	// ShaperRolloutTimeout bounds the shaping agent rollout.
	ShaperRolloutTimeout = 120 * time.Second
	// MetricsVerifyTimeout bounds the metrics add-on availability check.
	MetricsVerifyTimeout = 60 * time.Second
)
