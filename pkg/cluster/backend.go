// Package cluster drives creation and readiness of the simulated clusters.
// The k3d and kubectl binaries are external collaborators reached through
// narrow interfaces; nothing in this package caches their state.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"k8s.io/klog/v2"
)

// Per-role kubelet tuning passed to every cluster. Generous max-pods and
// parallel image pulls cut startup latency on a single host; the eviction
// threshold keeps a memory-pressured node from OOMing the whole experiment.
const (
	kubeletMaxPods       = "110"
	kubeletEvictionHard  = "memory.available<100Mi"
	kubeletImagePullArgs = "serialize-image-pulls=false"
)

// CreateOptions describes one cluster creation request.
type CreateOptions struct {
	Name        string
	Servers     int
	Agents      int
	Network     string
	PodCIDR     string
	ServiceCIDR string
	Timeout     time.Duration
}

// Backend is the cluster/virtualization collaborator (k3d in production).
type Backend interface {
	// ListClusters returns the names of all registered clusters.
	ListClusters(ctx context.Context) ([]string, error)
	// CreateCluster provisions a cluster and blocks until it is up or the
	// option timeout expires.
	CreateCluster(ctx context.Context, opts CreateOptions) error
	// DeleteCluster removes a cluster by name.
	DeleteCluster(ctx context.Context, name string) error
	// MergeKubeconfig merges the cluster's credentials into the default
	// kubeconfig so per-cluster clients can be built by context name.
	MergeKubeconfig(ctx context.Context, name string) error
}

// K3dBackend shells out to the k3d binary.
type K3dBackend struct {
	// Binary overrides the k3d executable path; empty means "k3d" on PATH.
	Binary string
}

func (b *K3dBackend) bin() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "k3d"
}

func (b *K3dBackend) ListClusters(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, b.bin(), "cluster", "list", "-o", "json")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", cmd.Args, err)
	}

	var clusters []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out, &clusters); err != nil {
		return nil, fmt.Errorf("parsing cluster list: %w", err)
	}

	names := make([]string, 0, len(clusters))
	for _, c := range clusters {
		names = append(names, c.Name)
	}
	return names, nil
}

func (b *K3dBackend) CreateCluster(ctx context.Context, opts CreateOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	args := []string{
		"cluster", "create", opts.Name,
		"--servers", fmt.Sprintf("%d", opts.Servers),
		"--agents", fmt.Sprintf("%d", opts.Agents),
		"--network", opts.Network,
		"--timeout", opts.Timeout.String(),
		"--wait",
		"--kubeconfig-update-default=false",
		"--k3s-arg", fmt.Sprintf("--cluster-cidr=%s@server:*", opts.PodCIDR),
		"--k3s-arg", fmt.Sprintf("--service-cidr=%s@server:*", opts.ServiceCIDR),
	}
	for _, role := range []string{"server", "agent"} {
		args = append(args,
			"--k3s-arg", fmt.Sprintf("--kubelet-arg=max-pods=%s@%s:*", kubeletMaxPods, role),
			"--k3s-arg", fmt.Sprintf("--kubelet-arg=%s@%s:*", kubeletImagePullArgs, role),
			"--k3s-arg", fmt.Sprintf("--kubelet-arg=eviction-hard=%s@%s:*", kubeletEvictionHard, role),
		)
	}

	klog.V(2).Infof("Creating cluster: %s %v", b.bin(), args)
	cmd := exec.CommandContext(ctx, b.bin(), args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%v: %w: output: %s", cmd.Args, err, out)
	}
	return nil
}

func (b *K3dBackend) DeleteCluster(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, b.bin(), "cluster", "delete", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%v: %w: output: %s", cmd.Args, err, out)
	}
	return nil
}

func (b *K3dBackend) MergeKubeconfig(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, b.bin(), "kubeconfig", "merge", name, "--kubeconfig-merge-default")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%v: %w: output: %s", cmd.Args, err, out)
	}
	return nil
}

// ContextName returns the kubeconfig context k3d registers for a cluster.
func ContextName(cluster string) string {
	return "k3d-" + cluster
}
