// Package fabric sequences the whole provisioning run: environment checks,
// the per-cluster orchestration loop, and the topology declaration pass.
// Execution is strictly sequential by design; creating k3d networks
// concurrently races inside the virtual-network API.
package fabric

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"digital-twin-fabric/fabric/pkg/cluster"
	"digital-twin-fabric/fabric/pkg/constants"
	"digital-twin-fabric/fabric/pkg/topology"
)

// Provisioner drives one cluster spec to completion.
type Provisioner interface {
	Provision(ctx context.Context, spec topology.ClusterSpec) cluster.Result
}

// Shaper applies the uniform shaping parameters and persists the matrix.
type Shaper interface {
	Apply(ctx context.Context, client kubernetes.Interface, cluster string) error
	PersistMatrix(ctx context.Context, client kubernetes.Interface, origin string, m topology.LatencyMatrix) error
}

// Options are the per-run switches from the CLI.
type Options struct {
	// Clean deletes every fleet cluster before provisioning.
	Clean bool
}

// Driver iterates the fixed fleet through orchestration and shaping, in
// order, isolating each cluster's failure from the rest of the run.
type Driver struct {
	Specs        []topology.ClusterSpec
	Backend      cluster.Backend
	Orchestrator Provisioner
	Clients      cluster.ClientFactory

	// Shaper may be nil to skip the topology declaration pass.
	Shaper Shaper
	Matrix topology.LatencyMatrix

	// MatrixPath, when set, additionally writes the matrix artifact to the
	// local filesystem for the placement policy, keyed by the datacenter
	// cluster as origin.
	MatrixPath string

	// VerifyNetwork, when set, runs a best-effort post-shaping probe
	// against a cluster's fabric network.
	VerifyNetwork func(ctx context.Context, networkName string) error
}

// Summary aggregates per-cluster outcomes for the run report.
type Summary struct {
	Results []cluster.Result
}

// Failed reports whether any cluster failed fatally (network allocation or
// creation). Degraded clusters (readiness or annotation trouble) count as
// created and do not fail the run.
func (s *Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Outcome == constants.OutcomeFailed {
			return true
		}
	}
	return false
}

// Counts returns the number of created, skipped, and failed clusters.
func (s *Summary) Counts() (created, skipped, failed int) {
	for _, r := range s.Results {
		switch r.Outcome {
		case constants.OutcomeCreated:
			created++
		case constants.OutcomeSkipped:
			skipped++
		case constants.OutcomeFailed:
			failed++
		}
	}
	return
}

// Run provisions the whole fabric. It returns an error only for invalid
// configuration; individual cluster failures are reported in the Summary.
func (d *Driver) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := topology.ValidateFleet(d.Specs); err != nil {
		return nil, fmt.Errorf("invalid fleet: %w", err)
	}
	if d.Shaper != nil {
		if err := d.Matrix.Validate(); err != nil {
			return nil, fmt.Errorf("invalid latency matrix: %w", err)
		}
	}

	if opts.Clean {
		if err := d.clean(ctx); err != nil {
			return nil, err
		}
	}

	summary := &Summary{}
	for _, spec := range d.Specs {
		res := d.Orchestrator.Provision(ctx, spec)
		recordResult(res)
		if res.Err != nil {
			klog.Errorf("cluster=%s outcome=%s phase=%s error=%v", res.Cluster, res.Outcome, res.Phase, res.Err)
		} else {
			klog.Infof("cluster=%s outcome=%s phase=%s elapsed=%s", res.Cluster, res.Outcome, res.Phase, res.Elapsed.Round(time.Millisecond))
		}
		summary.Results = append(summary.Results, res)
	}

	if d.Shaper != nil {
		d.declareTopology(ctx, summary)
	}

	created, skipped, failed := summary.Counts()
	klog.Infof("Fabric run complete: %d created, %d skipped, %d failed", created, skipped, failed)
	return summary, nil
}

// clean deletes every fleet cluster currently in the catalog. Networks are
// left to the allocator, which replaces them on the next pass anyway.
func (d *Driver) clean(ctx context.Context) error {
	existing, err := d.Backend.ListClusters(ctx)
	if err != nil {
		return fmt.Errorf("listing clusters for clean: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}

	for _, spec := range d.Specs {
		if !known[spec.Name] {
			continue
		}
		klog.Infof("Clean: deleting cluster %s", spec.Name)
		if err := d.Backend.DeleteCluster(ctx, spec.Name); err != nil {
			return fmt.Errorf("deleting cluster %s: %w", spec.Name, err)
		}
	}
	return nil
}

// declareTopology applies uniform shaping and persists the latency matrix on
// every cluster that exists after the provisioning loop. All failures here
// are degradations: they are logged and counted, never fatal.
func (d *Driver) declareTopology(ctx context.Context, summary *Summary) {
	for i, res := range summary.Results {
		if res.Outcome == constants.OutcomeFailed {
			continue
		}
		spec := d.Specs[i]

		client, err := d.Clients(spec.Name)
		if err != nil {
			klog.Warningf("Shaping %s: building client failed: %v", spec.Name, err)
			shapingFailures.WithLabelValues(spec.Name).Inc()
			continue
		}

		if err := d.Shaper.Apply(ctx, client, spec.Name); err != nil {
			klog.Warningf("Shaping %s: %v", spec.Name, err)
			shapingFailures.WithLabelValues(spec.Name).Inc()
		}
		if err := d.Shaper.PersistMatrix(ctx, client, spec.Name, d.Matrix); err != nil {
			klog.Warningf("Persisting matrix in %s: %v", spec.Name, err)
			shapingFailures.WithLabelValues(spec.Name).Inc()
		}

		if d.VerifyNetwork != nil {
			if err := d.VerifyNetwork(ctx, spec.NetworkName()); err != nil {
				klog.Warningf("Verifying shaping on %s: %v", spec.NetworkName(), err)
			}
		}
	}

	if d.MatrixPath != "" {
		if err := d.writeMatrixArtifact(); err != nil {
			klog.Warningf("Writing matrix artifact: %v", err)
		}
	}
}

// writeMatrixArtifact writes the local YAML document the placement policy
// loads at startup. Its origin is the datacenter cluster (where the policy
// runs), falling back to the first fleet entry.
func (d *Driver) writeMatrixArtifact() error {
	origin := d.Specs[0].Name
	for _, spec := range d.Specs {
		if spec.Type == topology.Datacenter {
			origin = spec.Name
			break
		}
	}

	doc, err := d.Matrix.Document(origin)
	if err != nil {
		return err
	}
	out, err := doc.RenderYAML()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(d.MatrixPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(d.MatrixPath, out, 0o644); err != nil {
		return err
	}
	klog.Infof("Wrote latency matrix artifact to %s (origin %s)", d.MatrixPath, origin)
	return nil
}
