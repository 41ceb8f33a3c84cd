// Package shaping declares the inter-cluster latency topology. Enforcement
// is deliberately coarse: one global (delay, loss) pair applied by the
// cluster-resident netem agent. The pairwise latency matrix persisted
// alongside it is declarative input for the placement policy's cost model
// only and is never enforced at the network layer.
package shaping

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"digital-twin-fabric/fabric/pkg/constants"
	"digital-twin-fabric/fabric/pkg/topology"
)

const rolloutPollInterval = 3 * time.Second

// Declarator applies the uniform shaping parameters to one cluster's
// shaping agent and persists the declarative latency matrix.
type Declarator struct {
	DelayMs int
	LossPct float64

	// RolloutTimeout bounds the shaping agent rollout; zero takes the
	// fabric default.
	RolloutTimeout time.Duration
}

func (d *Declarator) rolloutTimeout() time.Duration {
	if d.RolloutTimeout > 0 {
		return d.RolloutTimeout
	}
	return constants.ShaperRolloutTimeout
}

// Apply writes the (delay, loss) pair into the shaping agent's ConfigMap,
// rolls the agent DaemonSet so every pod picks it up, and waits for the
// rollout to settle. The agent is an external collaborator: a cluster
// without it is an error the caller decides how to treat.
func (d *Declarator) Apply(ctx context.Context, client kubernetes.Interface, cluster string) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      constants.ShaperConfigMap,
			Namespace: constants.KubeSystemNamespace,
		},
		Data: map[string]string{
			"TC_DELAY_MS": strconv.Itoa(d.DelayMs),
			"TC_LOSS_PCT": strconv.FormatFloat(d.LossPct, 'f', -1, 64),
		},
	}
	if err := createOrUpdateConfigMap(ctx, client, cm); err != nil {
		return fmt.Errorf("writing shaper config for %s: %w", cluster, err)
	}

	ds := client.AppsV1().DaemonSets(constants.KubeSystemNamespace)
	if _, err := ds.Get(ctx, constants.ShaperDaemonSet, metav1.GetOptions{}); err != nil {
		return fmt.Errorf("shaping agent missing in cluster %s: %w", cluster, err)
	}

	// Rolling the template annotation restarts every agent pod, which
	// re-reads the ConfigMap on startup.
	patch, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			"template": map[string]interface{}{
				"metadata": map[string]interface{}{
					"annotations": map[string]string{
						"fabric.dt/restartedAt": time.Now().Format(time.RFC3339),
					},
				},
			},
		},
	})
	if err != nil {
		return err
	}
	if _, err := ds.Patch(ctx, constants.ShaperDaemonSet, types.StrategicMergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("rolling shaping agent in %s: %w", cluster, err)
	}

	if err := d.waitForRollout(ctx, client); err != nil {
		return fmt.Errorf("shaping agent rollout in %s: %w", cluster, err)
	}

	klog.Infof("Cluster %s: shaping set to delay=%dms loss=%v%%", cluster, d.DelayMs, d.LossPct)
	return nil
}

func (d *Declarator) waitForRollout(ctx context.Context, client kubernetes.Interface) error {
	return wait.PollUntilContextTimeout(ctx, rolloutPollInterval, d.rolloutTimeout(), true,
		func(ctx context.Context) (bool, error) {
			ds, err := client.AppsV1().DaemonSets(constants.KubeSystemNamespace).
				Get(ctx, constants.ShaperDaemonSet, metav1.GetOptions{})
			if err != nil {
				klog.V(3).Infof("Shaper rollout check: %v", err)
				return false, nil
			}
			if ds.Status.ObservedGeneration < ds.Generation {
				return false, nil
			}
			desired := ds.Status.DesiredNumberScheduled
			return ds.Status.UpdatedNumberScheduled >= desired && ds.Status.NumberReady >= desired, nil
		})
}

// PersistMatrix writes the pairwise latency matrix into the cluster as a
// ConfigMap keyed by that cluster as origin, with overwrite semantics.
func (d *Declarator) PersistMatrix(ctx context.Context, client kubernetes.Interface, origin string, m topology.LatencyMatrix) error {
	doc, err := m.Document(origin)
	if err != nil {
		return err
	}
	out, err := doc.RenderYAML()
	if err != nil {
		return err
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      constants.MatrixConfigMap,
			Namespace: constants.KubeSystemNamespace,
		},
		Data: map[string]string{constants.MatrixFileKey: string(out)},
	}
	if err := createOrUpdateConfigMap(ctx, client, cm); err != nil {
		return fmt.Errorf("persisting latency matrix for %s: %w", origin, err)
	}
	klog.V(2).Infof("Persisted latency matrix with origin %s", origin)
	return nil
}

func createOrUpdateConfigMap(ctx context.Context, client kubernetes.Interface, cm *corev1.ConfigMap) error {
	cms := client.CoreV1().ConfigMaps(cm.Namespace)
	if _, err := cms.Create(ctx, cm, metav1.CreateOptions{}); err == nil {
		return nil
	} else if !apierrors.IsAlreadyExists(err) {
		return err
	}
	_, err := cms.Update(ctx, cm, metav1.UpdateOptions{})
	return err
}
