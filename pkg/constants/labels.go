package constants

// This file centralizes all node label and annotation keys written by the
// fabric annotator. Using constants prevents typos and makes refactoring easier.

const (
	// LabelCluster is the name of the simulated cluster the node belongs to.
	LabelCluster = "fabric.dt/cluster"
	// LabelClusterType is the fleet segment (datacenter, edge, gaming, ...).
	LabelClusterType = "fabric.dt/cluster-type"
	// LabelClusterID is the small integer namespace for derived identities.
	LabelClusterID = "fabric.dt/cluster-id"
	// LabelNodeID is the 1-based virtual node index within the cluster.
	LabelNodeID = "fabric.dt/node-id"
	// LabelAccelerator carries the free-form accelerator capability tag.
	LabelAccelerator = "fabric.dt/accelerator"

	// AnnotationNetworkCIDR is the cluster's isolated Docker network subnet.
	AnnotationNetworkCIDR = "fabric.dt/network-cidr"
	// AnnotationPodCIDR is the cluster's pod CIDR.
	AnnotationPodCIDR = "fabric.dt/pod-cidr"
	// AnnotationServiceCIDR is the cluster's service CIDR.
	AnnotationServiceCIDR = "fabric.dt/service-cidr"
	// AnnotationPodIP is the derived (not necessarily routable) pod address.
	AnnotationPodIP = "fabric.dt/derived-pod-ip"
	// AnnotationNodeIP is the derived node address on the cluster network.
	AnnotationNodeIP = "fabric.dt/derived-node-ip"
	// AnnotationHWAddr is the derived locally-administered hardware address.
	AnnotationHWAddr = "fabric.dt/derived-hw-addr"
)
