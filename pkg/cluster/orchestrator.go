package cluster

import (
	"context"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"digital-twin-fabric/fabric/pkg/constants"
	"digital-twin-fabric/fabric/pkg/topology"
)

// Phase is the orchestrator's position in a cluster's lifecycle.
type Phase string

const (
	PhaseAbsent        Phase = "Absent"
	PhaseSkipped       Phase = "Skipped"
	PhaseAllocating    Phase = "Allocating"
	PhaseProvisioning  Phase = "Provisioning"
	PhaseAwaitingReady Phase = "AwaitingReady"
	PhaseAnnotated     Phase = "Annotated"
)

// NetworkEnsurer is the Network Allocator seen from the orchestrator.
type NetworkEnsurer interface {
	EnsureNetwork(ctx context.Context, name, subnet string) error
}

// ClientFactory builds a control-plane client for a named cluster.
type ClientFactory func(cluster string) (kubernetes.Interface, error)

// AnnotateFunc attaches derived identities to a cluster's nodes.
type AnnotateFunc func(ctx context.Context, client kubernetes.Interface, spec topology.ClusterSpec) error

// AddonFunc installs a per-cluster add-on (the metrics server).
type AddonFunc func(ctx context.Context, cluster string) error

// Config wires the orchestrator's collaborators. MetricsAddon may be nil to
// skip add-on installation. Zero timeouts take the fabric defaults.
type Config struct {
	Backend      Backend
	Networks     NetworkEnsurer
	Clients      ClientFactory
	Annotate     AnnotateFunc
	MetricsAddon AddonFunc

	CreateTimeout time.Duration
	ReadyTimeout  time.Duration
}

// Result is one cluster's outcome in the run summary.
type Result struct {
	Cluster string
	Phase   Phase
	Outcome string
	Err     error
	Elapsed time.Duration
}

// Orchestrator walks one ClusterSpec through
// Absent -> Allocating -> Provisioning -> AwaitingReady -> Annotated,
// exiting early at Skipped when the cluster already exists. It never caches
// catalog state: every decision re-queries the external system.
type Orchestrator struct {
	cfg Config
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.CreateTimeout == 0 {
		cfg.CreateTimeout = constants.CreateTimeout
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = constants.ReadyTimeout
	}
	return &Orchestrator{cfg: cfg}
}

// Provision drives one cluster to completion. Network allocation and cluster
// creation failures are fatal for this cluster only and are reported in the
// Result; readiness and annotation failures are degraded-but-tolerated, so a
// partially-ready cluster still comes back as created.
func (o *Orchestrator) Provision(ctx context.Context, spec topology.ClusterSpec) Result {
	start := time.Now()
	res := Result{Cluster: spec.Name, Phase: PhaseAbsent}

	existing, err := o.cfg.Backend.ListClusters(ctx)
	if err != nil {
		res.Outcome = constants.OutcomeFailed
		res.Err = fmt.Errorf("listing clusters: %w", err)
		res.Elapsed = time.Since(start)
		return res
	}
	for _, name := range existing {
		if name == spec.Name {
			klog.Infof("Cluster %s already registered, skipping", spec.Name)
			res.Phase = PhaseSkipped
			res.Outcome = constants.OutcomeSkipped
			res.Elapsed = time.Since(start)
			return res
		}
	}

	res.Phase = PhaseAllocating
	if err := o.cfg.Networks.EnsureNetwork(ctx, spec.NetworkName(), spec.NetworkCIDR); err != nil {
		res.Outcome = constants.OutcomeFailed
		res.Err = fmt.Errorf("allocating network: %w", err)
		res.Elapsed = time.Since(start)
		return res
	}

	res.Phase = PhaseProvisioning
	err = o.cfg.Backend.CreateCluster(ctx, CreateOptions{
		Name:        spec.Name,
		Servers:     spec.Servers,
		Agents:      spec.Agents,
		Network:     spec.NetworkName(),
		PodCIDR:     spec.PodCIDR,
		ServiceCIDR: spec.ServiceCIDR,
		Timeout:     o.cfg.CreateTimeout,
	})
	if err != nil {
		res.Outcome = constants.OutcomeFailed
		res.Err = fmt.Errorf("creating cluster: %w", err)
		res.Elapsed = time.Since(start)
		return res
	}

	if err := o.cfg.Backend.MergeKubeconfig(ctx, spec.Name); err != nil {
		klog.Warningf("Merging kubeconfig for %s failed: %v", spec.Name, err)
	}

	// From here on the cluster exists; everything further is best-effort.
	res.Outcome = constants.OutcomeCreated

	client, err := o.cfg.Clients(spec.Name)
	if err != nil {
		klog.Warningf("Building client for %s failed, leaving cluster unannotated: %v", spec.Name, err)
		res.Elapsed = time.Since(start)
		return res
	}

	res.Phase = PhaseAwaitingReady
	if err := WaitForNodesReady(ctx, client, spec.Servers+spec.Agents, o.cfg.ReadyTimeout); err != nil {
		klog.Warningf("Cluster %s not fully ready within %s, continuing best-effort: %v",
			spec.Name, o.cfg.ReadyTimeout, err)
	}

	if o.cfg.MetricsAddon != nil {
		if err := o.cfg.MetricsAddon(ctx, spec.Name); err != nil {
			klog.Warningf("Metrics add-on for %s failed: %v", spec.Name, err)
		}
	}

	if err := o.cfg.Annotate(ctx, client, spec); err != nil {
		klog.Warningf("Annotating cluster %s failed: %v", spec.Name, err)
	} else {
		res.Phase = PhaseAnnotated
	}

	res.Elapsed = time.Since(start)
	return res
}
