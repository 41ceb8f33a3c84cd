package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"digital-twin-fabric/fabric/pkg/annotate"
	"digital-twin-fabric/fabric/pkg/cluster"
	"digital-twin-fabric/fabric/pkg/constants"
	"digital-twin-fabric/fabric/pkg/fabric"
	"digital-twin-fabric/fabric/pkg/network"
	"digital-twin-fabric/fabric/pkg/shaping"
	"digital-twin-fabric/fabric/pkg/signals"
	"digital-twin-fabric/fabric/pkg/topology"
	"digital-twin-fabric/fabric/pkg/util"
)

var (
	kubeconfig  string
	dockerHost  string
	clean       bool
	skipMetrics bool
	delayMs     int
	lossPct     float64
	matrixOut   string
	metricsAddr string
)

func main() {
	klog.InitFlags(nil)
	flag.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (defaults to the standard loading rules)")
	flag.StringVar(&dockerHost, "docker-host", util.GetEnvOrDefault("DOCKER_HOST", ""), "Docker daemon address (defaults to the environment)")
	flag.BoolVar(&clean, "clean", false, "Delete all fleet clusters before provisioning")
	flag.BoolVar(&skipMetrics, "skip-metrics", false, "Skip metrics-server installation")
	flag.IntVar(&delayMs, "delay-ms", util.GetEnvInt("FABRIC_DELAY_MS", 20), "Uniform netem delay applied in every cluster (ms)")
	flag.Float64Var(&lossPct, "loss-pct", util.GetEnvFloat("FABRIC_LOSS_PCT", 0.1), "Uniform netem packet loss applied in every cluster (%)")
	flag.StringVar(&matrixOut, "matrix-out", util.GetEnvOrDefault("FABRIC_MATRIX_OUT", "deploy/latency-matrix.yaml"), "Local path for the latency matrix artifact (empty disables)")
	flag.StringVar(&metricsAddr, "metrics-addr", util.GetEnvOrDefault("FABRIC_METRICS_ADDR", ""), "Address for the Prometheus /metrics endpoint (empty disables)")
	flag.Parse()

	ctx := signals.SetupSignalContext()

	dockerOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		dockerOpts = append(dockerOpts, client.WithHost(dockerHost))
	}
	docker, err := client.NewClientWithOpts(dockerOpts...)
	if err != nil {
		klog.Errorf("Building docker client: %v", err)
		os.Exit(1)
	}
	defer docker.Close()

	if err := fabric.CheckEnvironment(ctx, docker); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	backend := &cluster.K3dBackend{}
	clients := func(name string) (kubernetes.Interface, error) {
		cfg, err := restConfigFor(name)
		if err != nil {
			return nil, err
		}
		return kubernetes.NewForConfig(cfg)
	}

	var addon cluster.AddonFunc
	if !skipMetrics {
		addon = installAndVerifyMetrics
	}

	orchestrator := cluster.NewOrchestrator(cluster.Config{
		Backend:      backend,
		Networks:     network.NewAllocator(docker),
		Clients:      clients,
		Annotate:     annotate.AnnotateCluster,
		MetricsAddon: addon,
	})

	driver := &fabric.Driver{
		Specs:        topology.DefaultFleet(),
		Backend:      backend,
		Orchestrator: orchestrator,
		Clients:      clients,
		Shaper:       &shaping.Declarator{DelayMs: delayMs, LossPct: lossPct},
		Matrix:       topology.DefaultMatrix(),
		MatrixPath:   matrixOut,
		VerifyNetwork: func(ctx context.Context, networkName string) error {
			return shaping.VerifyDelay(ctx, docker, networkName, delayMs, shaping.MeasureRTT)
		},
	}

	summary, err := driver.Run(ctx, fabric.Options{Clean: clean})
	if err != nil {
		klog.Errorf("Fabric run aborted: %v", err)
		os.Exit(1)
	}
	if summary.Failed() {
		os.Exit(1)
	}
}

// restConfigFor builds a rest config for one cluster by overriding the
// current context with the one k3d registered during kubeconfig merge.
func restConfigFor(name string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cluster.ContextName(name)}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// installAndVerifyMetrics applies the metrics-server manifest and waits for
// the metrics API to start answering.
func installAndVerifyMetrics(ctx context.Context, name string) error {
	if err := cluster.InstallMetricsAddon(ctx, name); err != nil {
		return err
	}
	cfg, err := restConfigFor(name)
	if err != nil {
		return err
	}
	mc, err := metricsv.NewForConfig(cfg)
	if err != nil {
		return err
	}
	return cluster.VerifyMetricsAPI(ctx, mc, constants.MetricsVerifyTimeout)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	klog.Infof("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.Errorf("Metrics server: %v", err)
	}
}
