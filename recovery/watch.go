package recovery

import (
	"context"

	"github.com/usorama/engg-context-gateway/health"
)

// Watch subscribes to monitor and evaluates every probe result against e's
// rule table, mirroring the breaker package's Cascade helper. Runs until ctx
// is cancelled.
func Watch(ctx context.Context, monitor *health.Monitor, e *Engine) {
	ch := monitor.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-ch:
				if !ok {
					return
				}
				if snap, found := monitor.Snapshot(res.Service); found {
					e.Evaluate(ctx, snap)
				}
			}
		}
	}()
}
