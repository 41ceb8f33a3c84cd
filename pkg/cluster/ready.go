package cluster

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

const readyPollInterval = 5 * time.Second

// WaitForNodesReady blocks until at least want nodes exist and every listed
// node reports Ready, or the timeout expires. Callers treat expiry as
// degraded, not fatal: a partially-ready cluster is still useful for
// inspection and best-effort annotation.
func WaitForNodesReady(ctx context.Context, client kubernetes.Interface, want int, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, readyPollInterval, timeout, true,
		func(ctx context.Context) (bool, error) {
			nodes, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
			if err != nil {
				klog.V(2).Infof("Listing nodes while waiting for readiness: %v", err)
				return false, nil
			}
			if len(nodes.Items) < want {
				return false, nil
			}
			for i := range nodes.Items {
				if !nodeReady(&nodes.Items[i]) {
					return false, nil
				}
			}
			return true, nil
		})
}

func nodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
