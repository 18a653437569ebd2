package breaker

import (
	"context"

	"github.com/usorama/engg-context-gateway/health"
)

// Cascade subscribes to a health.Monitor and forces the matching breaker
// open on an unhealthy transition, clearing the latch once the service
// recovers to healthy. Runs until ctx is cancelled.
func Cascade(ctx context.Context, monitor *health.Monitor, breakers map[string]*CircuitBreaker) {
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
				b, found := breakers[res.Service]
				if !found {
					continue
				}
				switch res.Status {
				case health.StatusUnhealthy:
					b.ForceOpen()
				case health.StatusHealthy:
					b.Reset()
				}
			}
		}
	}()
}
