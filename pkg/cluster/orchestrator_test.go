package cluster_test

import (
	"context"
	"errors"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"digital-twin-fabric/fabric/pkg/cluster"
	"digital-twin-fabric/fabric/pkg/constants"
	"digital-twin-fabric/fabric/pkg/topology"
)

type fakeBackend struct {
	existing  []string
	created   []cluster.CreateOptions
	merged    []string
	createErr error
}

func (b *fakeBackend) ListClusters(_ context.Context) ([]string, error) {
	return append([]string(nil), b.existing...), nil
}

func (b *fakeBackend) CreateCluster(_ context.Context, opts cluster.CreateOptions) error {
	if b.createErr != nil {
		return b.createErr
	}
	b.created = append(b.created, opts)
	b.existing = append(b.existing, opts.Name)
	return nil
}

func (b *fakeBackend) DeleteCluster(_ context.Context, name string) error {
	out := b.existing[:0]
	for _, n := range b.existing {
		if n != name {
			out = append(out, n)
		}
	}
	b.existing = out
	return nil
}

func (b *fakeBackend) MergeKubeconfig(_ context.Context, name string) error {
	b.merged = append(b.merged, name)
	return nil
}

type fakeEnsurer struct {
	calls [][2]string
	err   error
}

func (e *fakeEnsurer) EnsureNetwork(_ context.Context, name, subnet string) error {
	if e.err != nil {
		return e.err
	}
	e.calls = append(e.calls, [2]string{name, subnet})
	return nil
}

func readyNode(name string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func notReadyNode(name string) *corev1.Node {
	n := readyNode(name)
	n.Status.Conditions[0].Status = corev1.ConditionFalse
	return n
}

func labSpec() topology.ClusterSpec {
	return topology.ClusterSpec{
		Name: "lab", Type: topology.Lab, ClusterID: 13,
		Servers: 1, Agents: 1,
		NetworkCIDR: "172.30.13.0/24",
		PodCIDR:     "10.72.0.0/16", ServiceCIDR: "10.73.0.0/16",
	}
}

type harness struct {
	backend   *fakeBackend
	ensurer   *fakeEnsurer
	annotated []string
	addons    []string
	orch      *cluster.Orchestrator
}

func newHarness(t *testing.T, backend *fakeBackend, ensurer *fakeEnsurer, client kubernetes.Interface, withAddon bool) *harness {
	t.Helper()
	h := &harness{backend: backend, ensurer: ensurer}
	cfg := cluster.Config{
		Backend:  backend,
		Networks: ensurer,
		Clients: func(name string) (kubernetes.Interface, error) {
			return client, nil
		},
		Annotate: func(_ context.Context, _ kubernetes.Interface, spec topology.ClusterSpec) error {
			h.annotated = append(h.annotated, spec.Name)
			return nil
		},
		ReadyTimeout: 50 * time.Millisecond,
	}
	if withAddon {
		cfg.MetricsAddon = func(_ context.Context, name string) error {
			h.addons = append(h.addons, name)
			return nil
		}
	}
	h.orch = cluster.NewOrchestrator(cfg)
	return h
}

func TestProvision_CreateFlow(t *testing.T) {
	backend := &fakeBackend{}
	ensurer := &fakeEnsurer{}
	client := fake.NewSimpleClientset(readyNode("k3d-lab-server-0"), readyNode("k3d-lab-agent-0"))
	h := newHarness(t, backend, ensurer, client, true)

	res := h.orch.Provision(context.Background(), labSpec())

	if res.Outcome != constants.OutcomeCreated {
		t.Fatalf("outcome = %s (%v), want created", res.Outcome, res.Err)
	}
	if res.Phase != cluster.PhaseAnnotated {
		t.Errorf("phase = %s, want Annotated", res.Phase)
	}

	if len(ensurer.calls) != 1 || ensurer.calls[0] != [2]string{"dt-lab", "172.30.13.0/24"} {
		t.Errorf("network calls = %v", ensurer.calls)
	}

	if len(backend.created) != 1 {
		t.Fatalf("created = %v, want one cluster", backend.created)
	}
	opts := backend.created[0]
	if opts.Name != "lab" || opts.Servers != 1 || opts.Agents != 1 {
		t.Errorf("create opts = %+v", opts)
	}
	if opts.Network != "dt-lab" || opts.PodCIDR != "10.72.0.0/16" || opts.ServiceCIDR != "10.73.0.0/16" {
		t.Errorf("create opts CIDRs/network = %+v", opts)
	}
	if opts.Timeout != constants.CreateTimeout {
		t.Errorf("create timeout = %s, want %s", opts.Timeout, constants.CreateTimeout)
	}

	if len(h.annotated) != 1 || h.annotated[0] != "lab" {
		t.Errorf("annotated = %v, want [lab]", h.annotated)
	}
	if len(h.addons) != 1 || h.addons[0] != "lab" {
		t.Errorf("addons = %v, want [lab]", h.addons)
	}
	if len(backend.merged) != 1 {
		t.Errorf("kubeconfig merged = %v, want [lab]", backend.merged)
	}
}

func TestProvision_SkipsExisting(t *testing.T) {
	backend := &fakeBackend{existing: []string{"lab"}}
	ensurer := &fakeEnsurer{}
	h := newHarness(t, backend, ensurer, fake.NewSimpleClientset(), false)

	res := h.orch.Provision(context.Background(), labSpec())

	if res.Outcome != constants.OutcomeSkipped || res.Phase != cluster.PhaseSkipped {
		t.Errorf("outcome/phase = %s/%s, want skipped/Skipped", res.Outcome, res.Phase)
	}
	if len(backend.created) != 0 {
		t.Error("skip path must not create clusters")
	}
	if len(ensurer.calls) != 0 {
		t.Error("skip path must not touch networks")
	}
}

func TestProvision_SecondRunSkips(t *testing.T) {
	backend := &fakeBackend{}
	ensurer := &fakeEnsurer{}
	client := fake.NewSimpleClientset(readyNode("a"), readyNode("b"))
	h := newHarness(t, backend, ensurer, client, false)

	first := h.orch.Provision(context.Background(), labSpec())
	second := h.orch.Provision(context.Background(), labSpec())

	if first.Outcome != constants.OutcomeCreated {
		t.Fatalf("first outcome = %s", first.Outcome)
	}
	if second.Outcome != constants.OutcomeSkipped {
		t.Errorf("second outcome = %s, want skipped", second.Outcome)
	}
	if len(backend.created) != 1 {
		t.Errorf("created %d clusters across two runs, want 1", len(backend.created))
	}
}

func TestProvision_NetworkFailureIsFatalForCluster(t *testing.T) {
	backend := &fakeBackend{}
	ensurer := &fakeEnsurer{err: errors.New("subnet contested")}
	h := newHarness(t, backend, ensurer, fake.NewSimpleClientset(), false)

	res := h.orch.Provision(context.Background(), labSpec())

	if res.Outcome != constants.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", res.Outcome)
	}
	if res.Err == nil {
		t.Error("expected error in result")
	}
	if len(backend.created) != 0 {
		t.Error("cluster must not be created when its network cannot be allocated")
	}
}

func TestProvision_CreateFailure(t *testing.T) {
	backend := &fakeBackend{createErr: errors.New("containerd exploded")}
	ensurer := &fakeEnsurer{}
	h := newHarness(t, backend, ensurer, fake.NewSimpleClientset(), false)

	res := h.orch.Provision(context.Background(), labSpec())

	if res.Outcome != constants.OutcomeFailed || res.Phase != cluster.PhaseProvisioning {
		t.Errorf("outcome/phase = %s/%s, want failed/Provisioning", res.Outcome, res.Phase)
	}
	if len(h.annotated) != 0 {
		t.Error("failed cluster must not be annotated")
	}
}

func TestProvision_ReadinessTimeoutNonFatal(t *testing.T) {
	backend := &fakeBackend{}
	ensurer := &fakeEnsurer{}
	client := fake.NewSimpleClientset(notReadyNode("k3d-lab-server-0"))
	h := newHarness(t, backend, ensurer, client, false)

	res := h.orch.Provision(context.Background(), labSpec())

	if res.Outcome != constants.OutcomeCreated {
		t.Fatalf("readiness timeout must not fail the cluster: outcome = %s (%v)", res.Outcome, res.Err)
	}
	if len(h.annotated) != 1 {
		t.Error("annotation must still run best-effort after a readiness timeout")
	}
}

func TestProvision_AnnotationFailureNonFatal(t *testing.T) {
	backend := &fakeBackend{}
	ensurer := &fakeEnsurer{}
	client := fake.NewSimpleClientset(readyNode("a"), readyNode("b"))
	h := newHarness(t, backend, ensurer, client, false)
	cfg := cluster.Config{
		Backend:  backend,
		Networks: ensurer,
		Clients:  func(string) (kubernetes.Interface, error) { return client, nil },
		Annotate: func(context.Context, kubernetes.Interface, topology.ClusterSpec) error {
			return errors.New("node gone")
		},
		ReadyTimeout: 50 * time.Millisecond,
	}
	h.orch = cluster.NewOrchestrator(cfg)

	res := h.orch.Provision(context.Background(), labSpec())

	if res.Outcome != constants.OutcomeCreated {
		t.Errorf("annotation failure must not fail the cluster: outcome = %s", res.Outcome)
	}
	if res.Phase == cluster.PhaseAnnotated {
		t.Error("phase should not report Annotated when annotation failed")
	}
}
