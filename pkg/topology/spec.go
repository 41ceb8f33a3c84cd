// Package topology defines the static fleet description: the per-cluster
// specifications and the declarative inter-cluster latency model.
package topology

import (
	"fmt"
	"net"

	"digital-twin-fabric/fabric/pkg/constants"
)

// ClusterType is the fleet segment a simulated cluster represents.
type ClusterType string

const (
	Datacenter ClusterType = "datacenter"
	Edge       ClusterType = "edge"
	Gaming     ClusterType = "gaming"
	Lab        ClusterType = "lab"
	Mining     ClusterType = "mining"
	Pan        ClusterType = "pan"
)

// ValidClusterTypes is the whitelist of fleet segments the fabric understands.
var ValidClusterTypes = map[ClusterType]bool{
	Datacenter: true,
	Edge:       true,
	Gaming:     true,
	Lab:        true,
	Mining:     true,
	Pan:        true,
}

// ClusterSpec is the immutable descriptor of one simulated cluster. Specs
// come from the static fleet table and are never mutated after validation.
type ClusterSpec struct {
	Name string      `json:"name"`
	Type ClusterType `json:"type"`

	// Servers and Agents are the real k3d node counts backing the
	// simulated site.
	Servers int `json:"servers"`
	Agents  int `json:"agents"`

	// ClusterID is a small positive integer namespacing all derived
	// identities for this cluster.
	ClusterID int `json:"clusterId"`

	NetworkCIDR string `json:"networkCidr"`
	PodCIDR     string `json:"podCidr"`
	ServiceCIDR string `json:"serviceCidr"`

	// AcceleratorHint is a free-form capability tag, e.g. "gpu:nvidia-a100".
	AcceleratorHint string `json:"acceleratorHint"`
}

// NetworkName returns the Docker network name for this cluster.
func (s ClusterSpec) NetworkName() string {
	return constants.NetworkPrefix + s.Name
}

// DefaultFleet is the fleet provisioned by the fabric driver. Cluster IDs
// double as the third octet of the cluster's isolated network.
func DefaultFleet() []ClusterSpec {
	return []ClusterSpec{
		{
			Name: "dc", Type: Datacenter, ClusterID: 10,
			Servers: 1, Agents: 2,
			NetworkCIDR: "172.30.10.0/24",
			PodCIDR:     "10.42.0.0/16", ServiceCIDR: "10.43.0.0/16",
			AcceleratorHint: "gpu:nvidia-a100",
		},
		{
			Name: "edge", Type: Edge, ClusterID: 11,
			Servers: 1, Agents: 1,
			NetworkCIDR: "172.30.11.0/24",
			PodCIDR:     "10.52.0.0/16", ServiceCIDR: "10.53.0.0/16",
			AcceleratorHint: "gpu:jetson-orin",
		},
		{
			Name: "gaming", Type: Gaming, ClusterID: 12,
			Servers: 1, Agents: 1,
			NetworkCIDR: "172.30.12.0/24",
			PodCIDR:     "10.62.0.0/16", ServiceCIDR: "10.63.0.0/16",
			AcceleratorHint: "gpu:rtx-4090",
		},
		{
			Name: "lab", Type: Lab, ClusterID: 13,
			Servers: 1, Agents: 1,
			NetworkCIDR: "172.30.13.0/24",
			PodCIDR:     "10.72.0.0/16", ServiceCIDR: "10.73.0.0/16",
			AcceleratorHint: "fpga:xilinx-u250",
		},
		{
			Name: "mining", Type: Mining, ClusterID: 14,
			Servers: 1, Agents: 1,
			NetworkCIDR: "172.30.14.0/24",
			PodCIDR:     "10.82.0.0/16", ServiceCIDR: "10.83.0.0/16",
			AcceleratorHint: "asic:antminer-s19",
		},
		{
			Name: "pan", Type: Pan, ClusterID: 15,
			Servers: 1, Agents: 1,
			NetworkCIDR: "172.30.15.0/24",
			PodCIDR:     "10.92.0.0/16", ServiceCIDR: "10.93.0.0/16",
			AcceleratorHint: "soc:raspberry-pi5",
		},
	}
}

// ValidateFleet checks the invariants the rest of the engine relies on:
// unique names and cluster IDs, known types, non-negative node counts,
// well-formed CIDRs, and no overlap between any two CIDRs anywhere in the
// fleet (network, pod, and service ranges all share one address space on
// the host).
func ValidateFleet(specs []ClusterSpec) error {
	names := make(map[string]bool)
	ids := make(map[int]bool)

	type rangeRef struct {
		owner string
		ipnet *net.IPNet
	}
	var ranges []rangeRef

	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("cluster with empty name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate cluster name %q", s.Name)
		}
		names[s.Name] = true

		if !ValidClusterTypes[s.Type] {
			return fmt.Errorf("cluster %q: unknown type %q", s.Name, s.Type)
		}
		if s.ClusterID <= 0 || s.ClusterID > 255 {
			return fmt.Errorf("cluster %q: cluster ID %d out of range [1, 255]", s.Name, s.ClusterID)
		}
		if ids[s.ClusterID] {
			return fmt.Errorf("cluster %q: duplicate cluster ID %d", s.Name, s.ClusterID)
		}
		ids[s.ClusterID] = true

		if s.Servers < 0 || s.Agents < 0 {
			return fmt.Errorf("cluster %q: negative node count", s.Name)
		}
		if s.Servers == 0 {
			return fmt.Errorf("cluster %q: at least one server required", s.Name)
		}

		for _, cidr := range []string{s.NetworkCIDR, s.PodCIDR, s.ServiceCIDR} {
			_, ipnet, err := net.ParseCIDR(cidr)
			if err != nil {
				return fmt.Errorf("cluster %q: bad CIDR %q: %w", s.Name, cidr, err)
			}
			if ipnet.IP.To4() == nil {
				return fmt.Errorf("cluster %q: CIDR %q is not IPv4", s.Name, cidr)
			}
			ranges = append(ranges, rangeRef{owner: s.Name, ipnet: ipnet})
		}
	}

	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if a.ipnet.Contains(b.ipnet.IP) || b.ipnet.Contains(a.ipnet.IP) {
				return fmt.Errorf("CIDR %s (cluster %q) overlaps %s (cluster %q)",
					a.ipnet, a.owner, b.ipnet, b.owner)
			}
		}
	}

	return nil
}
