package shaping

import (
	"context"
	"fmt"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/go-ping/ping"
	"k8s.io/klog/v2"
)

// ProbeFunc measures round-trip time and loss to a target address.
type ProbeFunc func(ctx context.Context, target string) (rtt time.Duration, lossPct float64, err error)

// NetworkInspector is the slice of the Docker client the verifier needs.
type NetworkInspector interface {
	NetworkInspect(ctx context.Context, networkID string, options dockertypes.NetworkInspectOptions) (dockertypes.NetworkResource, error)
}

// MeasureRTT performs a short ICMP probe against target. Without
// CAP_NET_RAW the pinger falls back to unprivileged UDP on most platforms.
func MeasureRTT(ctx context.Context, target string) (time.Duration, float64, error) {
	pinger, err := ping.NewPinger(target)
	if err != nil {
		return 0, 0, fmt.Errorf("building pinger for %s: %w", target, err)
	}
	pinger.SetPrivileged(false)
	pinger.Count = 3
	pinger.Timeout = 3 * time.Second
	pinger.Interval = 300 * time.Millisecond

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return 0, 0, fmt.Errorf("probing %s: %w", target, err)
	}
	close(done)

	stats := pinger.Statistics()
	return stats.AvgRtt, stats.PacketLoss, nil
}

// VerifyDelay measures RTT to a container on the cluster's fabric network
// and compares it against the declared uniform delay. The check is advisory:
// a measured RTT below the declared delay means the shaping agent is likely
// not intercepting traffic, which is logged for the operator but never fails
// the run.
func VerifyDelay(ctx context.Context, docker NetworkInspector, networkName string, delayMs int, probe ProbeFunc) error {
	nw, err := docker.NetworkInspect(ctx, networkName, dockertypes.NetworkInspectOptions{})
	if err != nil {
		return fmt.Errorf("inspecting network %s: %w", networkName, err)
	}

	var target string
	for _, ep := range nw.Containers {
		if ep.IPv4Address == "" {
			continue
		}
		// Endpoint addresses come back in CIDR notation.
		target = strings.SplitN(ep.IPv4Address, "/", 2)[0]
		break
	}
	if target == "" {
		return fmt.Errorf("network %s has no attached containers to probe", networkName)
	}

	rtt, loss, err := probe(ctx, target)
	if err != nil {
		return err
	}

	if rtt < time.Duration(delayMs)*time.Millisecond {
		klog.Warningf("Network %s: measured RTT %s below declared delay %dms, shaping may not be active",
			networkName, rtt, delayMs)
	} else {
		klog.Infof("Network %s: measured RTT %s (declared delay %dms, loss %.1f%%)",
			networkName, rtt, delayMs, loss)
	}
	return nil
}
