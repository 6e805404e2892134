package daemon

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext derives the watcher's run context: cancelled on SIGTERM
// or SIGINT, so Ctrl-C in a foreground run and a service-manager stop
// both tear the pipeline down through the same shutdown path.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}
