package cluster

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// MetricsServerManifest is the upstream metrics-server deployment applied to
// each cluster unless --skip-metrics is set. k3s bundles a metrics-server,
// but the pinned upstream version keeps resource readings comparable across
// the fleet.
const MetricsServerManifest = "https://github.com/kubernetes-sigs/metrics-server/releases/latest/download/components.yaml"

// InstallMetricsAddon applies the metrics-server manifest into a cluster via
// kubectl. Failures are for the caller to downgrade: the add-on is a
// convenience, not a provisioning requirement.
func InstallMetricsAddon(ctx context.Context, cluster string) error {
	cmd := exec.CommandContext(ctx, "kubectl",
		"--context", ContextName(cluster),
		"apply", "-f", MetricsServerManifest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%v: %w: output: %s", cmd.Args, err, out)
	}
	klog.V(2).Infof("Applied metrics add-on to cluster %s", cluster)
	return nil
}

// VerifyMetricsAPI polls the metrics.k8s.io API until node metrics are being
// served or the timeout expires.
func VerifyMetricsAPI(ctx context.Context, client metricsv.Interface, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, 5*time.Second, timeout, true,
		func(ctx context.Context) (bool, error) {
			metrics, err := client.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
			if err != nil {
				klog.V(3).Infof("Metrics API not ready: %v", err)
				return false, nil
			}
			return len(metrics.Items) > 0, nil
		})
}
