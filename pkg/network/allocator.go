// Package network guarantees that each simulated cluster owns exactly one
// isolated Docker network with its required subnet, and that no other network
// anywhere on the daemon claims an overlapping range. State is re-derived
// from the daemon on every call; idempotency comes from re-inspecting the
// external system, never from local bookkeeping.
package network

import (
	"context"
	"fmt"

	dockertypes "github.com/docker/docker/api/types"
	dockernetwork "github.com/docker/docker/api/types/network"
	"k8s.io/klog/v2"

	"digital-twin-fabric/fabric/pkg/constants"
)

// API is the slice of the Docker Engine client the allocator needs.
type API interface {
	NetworkList(ctx context.Context, options dockertypes.NetworkListOptions) ([]dockertypes.NetworkResource, error)
	NetworkInspect(ctx context.Context, networkID string, options dockertypes.NetworkInspectOptions) (dockertypes.NetworkResource, error)
	NetworkCreate(ctx context.Context, name string, options dockertypes.NetworkCreate) (dockertypes.NetworkCreateResponse, error)
	NetworkRemove(ctx context.Context, networkID string) error
}

// ConflictError reports that a subnet could not be claimed even after the
// cleanup-and-retry pass. The affected cluster is not created.
type ConflictError struct {
	Name   string
	Subnet string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("network %s: subnet %s could not be claimed: %v", e.Name, e.Subnet, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Allocator mutates the daemon's network catalog. It holds no state between
// calls.
type Allocator struct {
	docker API
}

func NewAllocator(docker API) *Allocator {
	return &Allocator{docker: docker}
}

// EnsureNetwork makes exactly one network named name exist with the given
// subnet. Any same-named network is removed unconditionally (its subnet may
// be stale from a differently-configured run), and any other network with an
// overlapping address pool is removed too: external actors can introduce
// conflicting networks between runs, so a static partition cannot be trusted.
// Creation is retried once after a second cleanup pass; a second failure
// returns *ConflictError.
func (a *Allocator) EnsureNetwork(ctx context.Context, name, subnet string) error {
	networks, err := a.docker.NetworkList(ctx, dockertypes.NetworkListOptions{})
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}

	for _, nw := range networks {
		if nw.Name != name {
			continue
		}
		klog.V(2).Infof("Removing stale network %s (%s)", nw.Name, nw.ID)
		if err := a.docker.NetworkRemove(ctx, nw.ID); err != nil {
			return fmt.Errorf("removing stale network %s: %w", name, err)
		}
		networkRemovals.WithLabelValues("stale").Inc()
	}

	if err := a.removeConflicting(ctx, name, subnet); err != nil {
		return err
	}

	if err := a.create(ctx, name, subnet); err == nil {
		return nil
	} else {
		// A race may have reintroduced a conflicting network between the
		// cleanup pass and the create call. One more cleanup, one retry.
		klog.Warningf("Creating network %s failed (%v), retrying after cleanup", name, err)
	}

	if err := a.removeConflicting(ctx, name, subnet); err != nil {
		return err
	}
	if err := a.create(ctx, name, subnet); err != nil {
		return &ConflictError{Name: name, Subnet: subnet, Err: err}
	}
	return nil
}

// removeConflicting deletes every network other than name that has any
// address pool overlapping subnet. Overlap is tested on CIDR ranges, not
// string equality, so a /16 claiming our /24 is caught too.
func (a *Allocator) removeConflicting(ctx context.Context, name, subnet string) error {
	networks, err := a.docker.NetworkList(ctx, dockertypes.NetworkListOptions{})
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}

	for _, nw := range networks {
		if nw.Name == name {
			continue
		}
		// The list endpoint omits IPAM pools on some daemon versions;
		// inspect for the full address-pool configuration.
		full, err := a.docker.NetworkInspect(ctx, nw.ID, dockertypes.NetworkInspectOptions{})
		if err != nil {
			return fmt.Errorf("inspecting network %s: %w", nw.Name, err)
		}

		for _, pool := range full.IPAM.Config {
			if pool.Subnet == "" {
				continue
			}
			overlap, err := cidrOverlap(pool.Subnet, subnet)
			if err != nil {
				klog.Warningf("Skipping unparsable pool %q on network %s: %v", pool.Subnet, nw.Name, err)
				continue
			}
			if overlap {
				klog.Infof("Removing network %s: pool %s overlaps required subnet %s",
					nw.Name, pool.Subnet, subnet)
				if err := a.docker.NetworkRemove(ctx, nw.ID); err != nil {
					return fmt.Errorf("removing conflicting network %s: %w", nw.Name, err)
				}
				networkRemovals.WithLabelValues("overlap").Inc()
				break
			}
		}
	}
	return nil
}

func (a *Allocator) create(ctx context.Context, name, subnet string) error {
	_, err := a.docker.NetworkCreate(ctx, name, dockertypes.NetworkCreate{
		CheckDuplicate: true,
		Driver:         "bridge",
		IPAM: &dockernetwork.IPAM{
			Config: []dockernetwork.IPAMConfig{{Subnet: subnet}},
		},
		Labels: map[string]string{constants.NetworkOwnerLabel: "true"},
	})
	if err != nil {
		return err
	}
	klog.Infof("Created network %s with subnet %s", name, subnet)
	return nil
}
