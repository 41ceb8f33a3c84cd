package fabric

import (
	"context"
	"fmt"
	"os/exec"

	dockertypes "github.com/docker/docker/api/types"
)

// EnvironmentError reports a missing prerequisite. It is fatal: the run
// aborts before any cluster work begins and the process exits non-zero.
type EnvironmentError struct {
	Missing string
	Err     error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment check failed: %s: %v", e.Missing, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// DaemonPinger is the liveness slice of the Docker client.
type DaemonPinger interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
}

var requiredBinaries = []string{"docker", "k3d", "kubectl"}

// CheckEnvironment verifies every external collaborator is reachable before
// any cluster work: required binaries on PATH and a responsive Docker daemon.
func CheckEnvironment(ctx context.Context, daemon DaemonPinger) error {
	for _, bin := range requiredBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			return &EnvironmentError{Missing: bin, Err: err}
		}
	}
	if _, err := daemon.Ping(ctx); err != nil {
		return &EnvironmentError{Missing: "docker daemon", Err: err}
	}
	return nil
}
