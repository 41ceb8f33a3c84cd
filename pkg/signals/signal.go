package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalContext returns a context cancelled on SIGINT or SIGTERM. The
// sequential provisioning run has no finer-grained cancellation, so the whole
// run shares this one context. A second signal terminates the process with
// exit code 1.
func SetupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)

	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()

		<-sigCh
		os.Exit(1)
	}()

	return ctx
}
