// Package annotate attaches derived identities and topology metadata to the
// nodes of a ready cluster.
package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"digital-twin-fabric/fabric/pkg/constants"
	"digital-twin-fabric/fabric/pkg/derive"
	"digital-twin-fabric/fabric/pkg/topology"
	"digital-twin-fabric/fabric/pkg/util"
)

// AnnotateCluster enumerates the cluster's nodes, assigns 1-based indices,
// and attaches derived identities as labels and annotations with overwrite
// semantics. Nodes are sorted by name before index assignment so identities
// are reproducible across runs regardless of list order. Per-node patch
// failures are logged and skipped; re-running with the same inputs rewrites
// identical values and never renumbers other nodes.
func AnnotateCluster(ctx context.Context, client kubernetes.Interface, spec topology.ClusterSpec) error {
	nodeList, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("listing nodes for cluster %s: %w", spec.Name, err)
	}

	nodes := nodeList.Items
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	failed := 0
	for i := range nodes {
		node := &nodes[i]
		index := i + 1

		podIP, err := derive.DeriveIP(spec.PodCIDR, index)
		if err != nil {
			return fmt.Errorf("deriving pod IP for %s: %w", node.Name, err)
		}
		nodeIP, err := derive.DeriveIP(spec.NetworkCIDR, index)
		if err != nil {
			return fmt.Errorf("deriving node IP for %s: %w", node.Name, err)
		}
		hwAddr := derive.DeriveMAC(spec.ClusterID, index)

		labels := map[string]string{
			constants.LabelCluster:     spec.Name,
			constants.LabelClusterType: string(spec.Type),
			constants.LabelClusterID:   fmt.Sprintf("%d", spec.ClusterID),
			constants.LabelNodeID:      fmt.Sprintf("%d", index),
			constants.LabelAccelerator: spec.AcceleratorHint,
		}
		annotations := map[string]string{
			constants.AnnotationNetworkCIDR: spec.NetworkCIDR,
			constants.AnnotationPodCIDR:     spec.PodCIDR,
			constants.AnnotationServiceCIDR: spec.ServiceCIDR,
			constants.AnnotationPodIP:       podIP,
			constants.AnnotationNodeIP:      nodeIP,
			constants.AnnotationHWAddr:      hwAddr,
		}

		if err := patchNode(ctx, client, node, labels, annotations); err != nil {
			klog.Warningf("Failed to annotate node %s in cluster %s: %v", node.Name, spec.Name, err)
			failed++
			continue
		}
		klog.V(2).Infof("Annotated node %s: index=%d nodeIP=%s podIP=%s hw=%s",
			node.Name, index, nodeIP, podIP, hwAddr)
	}

	if failed > 0 {
		klog.Warningf("Cluster %s: %d/%d nodes could not be annotated", spec.Name, failed, len(nodes))
	}
	return nil
}

func patchNode(ctx context.Context, client kubernetes.Interface, node *corev1.Node, labels, annotations map[string]string) error {
	var ops []interface{}

	if node.Labels == nil {
		ops = append(ops, map[string]interface{}{
			"op": "add", "path": "/metadata/labels", "value": map[string]string{},
		})
	}
	if node.Annotations == nil {
		ops = append(ops, map[string]interface{}{
			"op": "add", "path": "/metadata/annotations", "value": map[string]string{},
		})
	}

	for k, v := range labels {
		ops = append(ops, map[string]interface{}{
			"op": "add", "path": "/metadata/labels/" + util.EscapeJSONPointer(k), "value": v,
		})
	}
	for k, v := range annotations {
		ops = append(ops, map[string]interface{}{
			"op": "add", "path": "/metadata/annotations/" + util.EscapeJSONPointer(k), "value": v,
		})
	}

	patch, err := json.Marshal(ops)
	if err != nil {
		return err
	}

	_, err = client.CoreV1().Nodes().Patch(ctx, node.Name, types.JSONPatchType, patch, metav1.PatchOptions{})
	return err
}
